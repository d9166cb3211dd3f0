package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/rxscan/internal/async"
)

// IngestDirectory walks root, skips hidden entries if requested, and enqueues
// every supported document. Returns per-file results for walk or enqueue
// failures plus aggregate stats.
func IngestDirectory(ctx context.Context, q Enqueuer, root string, submitter *string, skipHidden bool) ([]FileResult, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root_path is required")
	}

	var results []FileResult
	var stats DirStats

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			results = append(results, FileResult{Path: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if skipHidden && path != root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !AllowedExt(filepath.Ext(path)) {
			return nil
		}
		stats.Matched++

		if err := q.Enqueue(ctx, async.Job{Path: path, Submitter: submitter}); err != nil {
			results = append(results, FileResult{Path: path, Err: err.Error()})
			stats.Failed++
			if errors.Is(err, async.ErrQueueClosed) || ctx.Err() != nil {
				return err
			}
			return nil
		}
		stats.Queued++
		return nil
	})

	if err != nil {
		return results, stats, fmt.Errorf("walk: %w", err)
	}
	return results, stats, nil
}
