package ingest

import (
	"context"

	"github.com/joseph-ayodele/rxscan/internal/async"
)

// FileResult is the per-file outcome of a directory walk.
type FileResult struct {
	Path string
	Err  string
}

// DirStats summarizes a directory walk.
type DirStats struct {
	Scanned uint32
	Matched uint32
	Queued  uint32
	Failed  uint32
}

// Enqueuer is the part of the worker queue a walk needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, job async.Job) error
}
