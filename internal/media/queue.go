package media

import (
	"context"
	"sync"
)

// Queue serializes heavy media jobs. Concurrent ComfyUI runs on one
// machine exhaust memory and get the server SIGTERMed, so at most one
// job executes at a time; the rest wait in FIFO order.
type Queue struct {
	jobs   chan queuedJob
	closed chan struct{}

	mu      sync.Mutex
	closing bool
}

type queuedJob struct {
	ctx    context.Context
	fn     func(context.Context) Result
	result chan Result
}

// NewQueue starts the single worker.
func NewQueue() *Queue {
	q := &Queue{
		jobs:   make(chan queuedJob, 64),
		closed: make(chan struct{}),
	}
	go q.worker()
	return q
}

func (q *Queue) worker() {
	for job := range q.jobs {
		// A caller may have given up while waiting its turn.
		if job.ctx.Err() != nil {
			job.result <- Result{Error: job.ctx.Err().Error()}
			continue
		}
		job.result <- job.fn(job.ctx)
	}
	close(q.closed)
}

// Do runs fn through the queue and blocks until it completes. If the
// context is cancelled before the job starts, the job is skipped.
// Submitting after Close fails the job instead of running it.
func (q *Queue) Do(ctx context.Context, fn func(context.Context) Result) Result {
	job := queuedJob{ctx: ctx, fn: fn, result: make(chan Result, 1)}

	q.mu.Lock()
	if q.closing {
		q.mu.Unlock()
		return Result{Error: "queue is closed"}
	}
	select {
	case q.jobs <- job:
		q.mu.Unlock()
	case <-ctx.Done():
		q.mu.Unlock()
		return Result{Error: ctx.Err().Error()}
	}

	// The worker drains every submitted job, even after Close, so
	// exactly one result always arrives.
	return <-job.result
}

// Close stops accepting jobs; pending submissions still complete.
// Safe to call more than once.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closing {
		return
	}
	q.closing = true
	close(q.jobs)
}
