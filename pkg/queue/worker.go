package queue

import (
	"context"
	"log/slog"
	"time"
)

// Outcome is what a Handler reports for a processed job.
type Outcome struct {
	Width  int
	Height int
}

// Handler processes one job. A returned error becomes the result's Error field;
// the job is still acknowledged.
type Handler func(ctx context.Context, job *JobMessage) (Outcome, error)

// Worker consumes jobs, runs a Handler and publishes results.
type Worker struct {
	streams    *Streams
	consumer   string
	handler    Handler
	block      time.Duration
	visibility time.Duration
	claimCount int
	logger     *slog.Logger
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithBlock sets how long a read waits on an empty stream.
func WithBlock(d time.Duration) WorkerOption {
	return func(w *Worker) { w.block = d }
}

// WithVisibility sets how long a job may stay unacknowledged before it is claimed.
func WithVisibility(d time.Duration) WorkerOption {
	return func(w *Worker) { w.visibility = d }
}

// WithWorkerLogger sets the logger for job records.
func WithWorkerLogger(l *slog.Logger) WorkerOption {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

// NewWorker returns a worker reading jobs as consumer and passing them to handler.
func NewWorker(streams *Streams, consumer string, handler Handler, opts ...WorkerOption) *Worker {
	w := &Worker{
		streams:    streams,
		consumer:   consumer,
		handler:    handler,
		block:      5 * time.Second,
		visibility: 30 * time.Second,
		claimCount: 50,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run processes jobs until ctx is cancelled. Transient Redis errors are logged
// and retried; Run returns nil once ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.streams.EnsureGroups(ctx); err != nil {
		return err
	}
	w.logger.Info("worker: ready", "consumer", w.consumer)

	for ctx.Err() == nil {
		if _, err := w.Step(ctx); err != nil && ctx.Err() == nil {
			w.logger.Warn("worker: step failed", "error", err)
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
			}
		}
	}
	w.logger.Info("worker: stopping", "consumer", w.consumer)
	return nil
}

// Step claims stale jobs, then reads and handles at most one new job.
// It returns how many jobs were handled.
func (w *Worker) Step(ctx context.Context) (int, error) {
	handled := 0

	claimed, err := w.streams.ClaimStaleJobs(ctx, w.consumer, w.visibility, w.claimCount)
	if err != nil {
		w.logger.Warn("worker: claim stale", "error", err)
	}
	for _, c := range claimed {
		w.logger.Info("worker: claimed stale job", "id", c.ID)
		if err := w.process(ctx, c.ID, c.Job); err != nil {
			return handled, err
		}
		handled++
	}

	id, job, err := w.streams.ReadJob(ctx, w.consumer, w.block)
	if id == "" {
		return handled, err
	}
	if err != nil {
		w.logger.Warn("worker: read job", "id", id, "error", err)
	}
	if err := w.process(ctx, id, job); err != nil {
		return handled, err
	}
	return handled + 1, nil
}

func (w *Worker) process(ctx context.Context, id string, job *JobMessage) error {
	if job == nil || job.Type != JobTypeFile {
		w.logger.Warn("worker: invalid job", "id", id)
		return w.streams.AckJob(ctx, id)
	}

	start := time.Now()
	out, err := w.handler(ctx, job)
	if err != nil && ctx.Err() != nil {
		// Leave the job pending for another worker.
		return err
	}

	res := &ResultMessage{
		Batch:       job.Batch,
		InputPath:   job.InputPath,
		OutputPath:  job.OutputPath,
		WorkerID:    w.consumer,
		Width:       out.Width,
		Height:      out.Height,
		ProcessTime: time.Since(start).Seconds(),
	}
	if err != nil {
		res.Error = err.Error()
		w.logger.Warn("worker: job failed", "id", id, "input", job.InputPath, "error", err)
	} else {
		w.logger.Info("worker: job done", "id", id, "input", job.InputPath, "elapsed", time.Since(start))
	}

	if _, err := w.streams.AddResult(ctx, res); err != nil {
		return err
	}
	return w.streams.AckJob(ctx, id)
}
