package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/rxscan/internal/async"
	"github.com/joseph-ayodele/rxscan/internal/common"
	"github.com/joseph-ayodele/rxscan/internal/ingest"
)

var (
	batchEmail      string
	batchWorkers    int
	batchJobTimeout time.Duration
	batchSkipHidden bool
)

type batchSummary struct {
	mu        sync.Mutex
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	ImageIDs  map[string]string `json:"image_ids"`
	Errors    map[string]string `json:"errors,omitempty"`
}

func newBatchSummary() *batchSummary {
	return &batchSummary{ImageIDs: map[string]string{}, Errors: map[string]string{}}
}

func (s *batchSummary) add(r async.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.Err != nil {
		s.Failed++
		s.Errors[r.Job.Path] = fmt.Sprintf("%s: %v", common.CodeOf(r.Err), r.Err)
		return
	}
	s.Succeeded++
	s.ImageIDs[r.Job.Path] = r.Extraction.ImageID
}

var batchCmd = &cobra.Command{
	Use:   "batch <dir>",
	Short: "Extract every supported document under a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		a, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		summary := newBatchSummary()
		q := async.NewProcessorQueue(a.Extract, logger,
			async.WithWorkers(batchWorkers),
			async.WithProcessTimeout(batchJobTimeout),
			async.WithResultHandler(summary.add),
		)

		start := time.Now()
		results, stats, walkErr := ingest.IngestDirectory(ctx, q, args[0], optionalEmail(batchEmail), batchSkipHidden)
		// queued documents still finish after an interrupt, each bounded by --job-timeout
		q.Shutdown(context.Background())

		for _, r := range results {
			summary.Failed++
			summary.Errors[r.Path] = r.Err
		}
		logger.Info("batch complete",
			"scanned", stats.Scanned,
			"matched", stats.Matched,
			"succeeded", summary.Succeeded,
			"failed", summary.Failed,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		if err := printJSON(summary); err != nil {
			return err
		}
		if walkErr != nil {
			return walkErr
		}
		if summary.Failed > 0 {
			return fmt.Errorf("%d of %d documents failed", summary.Failed, stats.Matched)
		}
		return nil
	},
}

func init() {
	batchCmd.Flags().StringVarP(&batchEmail, "email", "e", "", "submitter email applied to every document")
	batchCmd.Flags().IntVarP(&batchWorkers, "workers", "w", 4, "concurrent extractions")
	batchCmd.Flags().DurationVar(&batchJobTimeout, "job-timeout", 3*time.Minute, "timeout per document")
	batchCmd.Flags().BoolVar(&batchSkipHidden, "skip-hidden", true, "skip dot files and directories")
	rootCmd.AddCommand(batchCmd)
}
