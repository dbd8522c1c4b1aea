package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/reportflow/reportflow/pkg/event"
	"github.com/reportflow/reportflow/pkg/tracking"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status [path]",
	Short: "Show the processing record for a file",
	Long: `Look up a file's tracking record and whether its report object exists.

Examples:
  reportflow status raw-data/orders.csv
  reportflow status raw-data/orders.csv --json`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the raw record as JSON")

	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	ref := event.FileReference{Container: a.cfg.Input.Container, Path: args[0]}
	record, err := a.tracker.Get(ctx, a.gate.Key(ref))
	if err != nil {
		if errors.Is(err, tracking.ErrNotFound) {
			fmt.Printf("%s: never processed\n", ref.String())
			return nil
		}
		return fmt.Errorf("failed to read record: %w", err)
	}

	if statusJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(record)
	}

	fmt.Printf("file:    %s\n", record.InputPath)
	fmt.Printf("status:  %s\n", record.Status)
	if record.OutputPath != "" {
		fmt.Printf("report:  %s\n", record.OutputPath)
		exists, err := a.store.Exists(ctx, ref.Container, record.OutputPath)
		if err == nil {
			fmt.Printf("present: %v\n", exists)
		}
	}
	if record.Metrics != nil {
		fmt.Printf("rows:    %d\n", record.Metrics.RowCount)
		fmt.Printf("columns: %d\n", record.Metrics.ColumnCount)
	}
	if record.ProcessedAt != nil {
		fmt.Printf("processed at: %s\n", record.ProcessedAt.Format("2006-01-02 15:04:05 MST"))
	}
	return nil
}
