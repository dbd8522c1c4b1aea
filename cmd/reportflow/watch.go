package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/reportflow/reportflow/pkg/event"
	"github.com/reportflow/reportflow/pkg/pipeline"
)

var watchSettle time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch a local directory and process new files",
	Long: `Watch the local storage directory and run the pipeline whenever a new
file appears under the input prefix. Requires the local storage backend;
this stands in for storage notifications during development.

Examples:
  reportflow watch
  reportflow watch --settle 2s`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchSettle, "settle", time.Second, "Quiet period before a changed file is processed")

	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.cfg.Storage.Backend != "local" {
		return fmt.Errorf("watch requires the local storage backend, got %q", a.cfg.Storage.Backend)
	}

	watchDir := filepath.Join(a.cfg.Storage.Dir, a.cfg.Input.Container, a.cfg.Input.Prefix)
	if err := os.MkdirAll(watchDir, 0o755); err != nil {
		return fmt.Errorf("failed to create watch directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(watchDir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", watchDir, err)
	}

	a.logger.Info("watching for new files", "dir", watchDir)

	// A file being copied in produces a burst of writes. Track the last
	// event per path and process once the burst goes quiet.
	pending := make(map[string]time.Time)
	ticker := time.NewTicker(settleInterval(watchSettle))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			name := ev.Name
			if !strings.HasSuffix(strings.ToLower(name), strings.ToLower(a.cfg.Input.Suffix)) {
				continue
			}
			if strings.HasSuffix(name, ".tmp") {
				continue
			}
			pending[name] = time.Now()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			a.logger.Error("watcher error", "error", err)

		case <-ticker.C:
			now := time.Now()
			for name, last := range pending {
				if now.Sub(last) < watchSettle {
					continue
				}
				delete(pending, name)
				watchProcess(ctx, a, name)
			}
		}
	}
}

// settleInterval derives the poll interval from the settle duration.
// The ticker needs a positive period, so a zero or tiny --settle value
// still polls rather than panicking.
func settleInterval(settle time.Duration) time.Duration {
	const min = 50 * time.Millisecond
	interval := settle / 2
	if interval < min {
		return min
	}
	return interval
}

func watchProcess(ctx context.Context, a *app, name string) {
	rel, err := filepath.Rel(filepath.Join(a.cfg.Storage.Dir, a.cfg.Input.Container), name)
	if err != nil {
		a.logger.Error("could not resolve watched path", "path", name, "error", err)
		return
	}

	ref := event.FileReference{
		Container: a.cfg.Input.Container,
		Path:      filepath.ToSlash(rel),
	}

	result := a.processor.Process(ctx, ref)
	switch result.Outcome {
	case pipeline.OutcomeCompleted:
		a.logger.Info("report written", "file", ref.String(), "output", result.OutputFile)
	case pipeline.OutcomeDuplicate:
		a.logger.Info("already processed", "file", ref.String())
	case pipeline.OutcomeSkipped:
		a.logger.Info("skipped", "file", ref.String(), "reason", result.Reason)
	default:
		a.logger.Error("processing failed", "file", ref.String(), "error", result.Err)
	}
}
