package main

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/reportflow/reportflow/pkg/event"
	"github.com/reportflow/reportflow/pkg/pipeline"
)

var (
	backfillWorkers int
	backfillDryRun  bool
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Process all files under the input prefix",
	Long: `Scan the configured container and run the pipeline for every eligible
file. Files with an existing completed record are skipped, so a backfill
can be re-run safely at any time.

Examples:
  reportflow backfill
  reportflow backfill --workers 8
  reportflow backfill --dry-run`,
	RunE: runBackfill,
}

func init() {
	backfillCmd.Flags().IntVar(&backfillWorkers, "workers", 4, "Number of files to process concurrently")
	backfillCmd.Flags().BoolVar(&backfillDryRun, "dry-run", false, "List eligible files without processing")

	rootCmd.AddCommand(backfillCmd)
}

func runBackfill(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	keys, err := a.store.List(ctx, a.cfg.Input.Container, a.cfg.Input.Prefix+"/")
	if err != nil {
		return fmt.Errorf("failed to list %s/%s: %w", a.cfg.Input.Container, a.cfg.Input.Prefix, err)
	}

	var eligible []string
	for _, key := range keys {
		if strings.HasSuffix(strings.ToLower(key), strings.ToLower(a.cfg.Input.Suffix)) {
			eligible = append(eligible, key)
		}
	}

	if backfillDryRun {
		for _, key := range eligible {
			fmt.Println(key)
		}
		fmt.Printf("%d eligible files\n", len(eligible))
		return nil
	}

	if len(eligible) == 0 {
		fmt.Println("no eligible files")
		return nil
	}

	bar := progressbar.Default(int64(len(eligible)), "processing")

	var completed, skipped, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(backfillWorkers)

	for _, key := range eligible {
		key := key
		g.Go(func() error {
			ref := event.FileReference{Container: a.cfg.Input.Container, Path: key}
			result := a.processor.Process(gctx, ref)
			switch result.Outcome {
			case pipeline.OutcomeCompleted:
				completed.Add(1)
			case pipeline.OutcomeDuplicate, pipeline.OutcomeSkipped:
				skipped.Add(1)
			default:
				failed.Add(1)
				a.logger.Error("backfill failed for file", "file", ref.String(), "error", result.Err)
			}
			bar.Add(1)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	fmt.Printf("\ncompleted %d, skipped %d, failed %d\n",
		completed.Load(), skipped.Load(), failed.Load())
	if failed.Load() > 0 {
		return fmt.Errorf("%d files failed", failed.Load())
	}
	return nil
}
