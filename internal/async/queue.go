package async

import (
	"context"
	"errors"
	"time"

	"github.com/joseph-ayodele/rxscan/internal/entity"
)

var ErrQueueClosed = errors.New("queue is shutting down")

// Job is one file waiting to be extracted.
type Job struct {
	Path        string
	Submitter   *string
	SubmittedAt time.Time
}

// Result is what a worker reports once a job has finished, successfully or not.
type Result struct {
	Job        Job
	Extraction *entity.Extraction
	Err        error
	Duration   time.Duration
	WorkerID   int
}

// Processor runs the pipeline for a file on disk.
type Processor interface {
	ExtractFile(ctx context.Context, path string, submitter *string) (*entity.Extraction, error)
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}
