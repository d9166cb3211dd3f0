package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/rxscan/internal/async"
	"github.com/joseph-ayodele/rxscan/internal/ingest"
)

var (
	watchEmail    string
	watchWorkers  int
	watchDebounce time.Duration
	watchInitial  bool
)

var watchCmd = &cobra.Command{
	Use:   "watch <dir>...",
	Short: "Watch directories and extract documents as they arrive",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		q := async.NewProcessorQueue(a.Extract, logger, async.WithWorkers(watchWorkers))
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			q.Shutdown(shutdownCtx)
		}()

		events, errs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
			Roots:       args,
			InitialScan: watchInitial,
			SkipHidden:  true,
			Debounce:    watchDebounce,
		}, logger)
		if err != nil {
			return err
		}
		logger.Info("watching for documents", "roots", args)

		// path -> content hash of the last version queued
		seen := map[string]string{}
		for {
			select {
			case path, ok := <-events:
				if !ok {
					return nil
				}
				sum, err := ingest.Fingerprint(path)
				if err != nil {
					logger.Warn("skipping unreadable file", "path", path, "error", err)
					continue
				}
				if seen[path] == sum {
					logger.Debug("unchanged file, skipping", "path", path)
					continue
				}
				if err := q.Enqueue(ctx, async.Job{Path: path, Submitter: optionalEmail(watchEmail)}); err != nil {
					logger.Warn("failed to enqueue", "path", path, "error", err)
					continue
				}
				seen[path] = sum
			case err, ok := <-errs:
				if !ok {
					errs = nil
					continue
				}
				logger.Warn("watcher reported error", "error", err)
			case <-ctx.Done():
				logger.Info("shutting down watcher")
				return nil
			}
		}
	},
}

func init() {
	watchCmd.Flags().StringVarP(&watchEmail, "email", "e", "", "submitter email applied to every document")
	watchCmd.Flags().IntVarP(&watchWorkers, "workers", "w", 2, "concurrent extractions")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 750*time.Millisecond, "quiet period before a changed file is processed")
	watchCmd.Flags().BoolVar(&watchInitial, "initial-scan", true, "process files already present at start")
	rootCmd.AddCommand(watchCmd)
}
