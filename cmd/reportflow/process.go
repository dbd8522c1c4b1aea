package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/reportflow/reportflow/pkg/event"
	"github.com/reportflow/reportflow/pkg/pipeline"
)

var processCmd = &cobra.Command{
	Use:   "process [path]",
	Short: "Process a single file",
	Long: `Run the metrics pipeline for one file in the configured container,
exactly as if a notification for it had arrived.

Examples:
  reportflow process raw-data/orders.csv
  reportflow process raw-data/orders.csv --verbose`,
	Args: cobra.ExactArgs(1),
	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	ref := event.FileReference{Container: a.cfg.Input.Container, Path: args[0]}
	result := a.processor.Process(ctx, ref)

	switch result.Outcome {
	case pipeline.OutcomeCompleted:
		fmt.Printf("completed: %s -> %s\n", ref.String(), result.OutputFile)
		if result.Report != nil {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			enc.Encode(result.Report)
		}
		return nil
	case pipeline.OutcomeDuplicate:
		fmt.Printf("already processed: %s (report at %s)\n", ref.String(), result.OutputFile)
		return nil
	case pipeline.OutcomeSkipped:
		fmt.Printf("skipped: %s (%s)\n", ref.String(), result.Reason)
		return nil
	}

	return fmt.Errorf("processing %s failed: %w", ref.String(), result.Err)
}
