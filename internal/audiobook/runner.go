package audiobook

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ErrRunnerClosed is returned by Submit after Shutdown.
var ErrRunnerClosed = errors.New("audiobook runner is shut down")

// Runner executes background jobs with bounded concurrency. Each job gets
// its own context, cancelled by Cancel or Shutdown.
type Runner struct {
	sem *semaphore.Weighted

	mu      sync.Mutex
	wg      sync.WaitGroup
	jobs    map[string]context.CancelFunc
	closed  bool
	baseCtx context.Context
	stop    context.CancelFunc
}

func NewRunner(workers int) *Runner {
	if workers < 1 {
		workers = 1
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Runner{
		sem:     semaphore.NewWeighted(int64(workers)),
		jobs:    map[string]context.CancelFunc{},
		baseCtx: ctx,
		stop:    stop,
	}
}

// Submit starts fn in the background under id. Submitting an id that is
// already running is a no-op.
func (r *Runner) Submit(id string, fn func(ctx context.Context)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRunnerClosed
	}
	if _, running := r.jobs[id]; running {
		return nil
	}

	ctx, cancel := context.WithCancel(r.baseCtx)
	r.jobs[id] = cancel
	r.wg.Add(1)

	go func() {
		defer r.wg.Done()
		defer r.finish(id)

		if err := r.sem.Acquire(ctx, 1); err != nil {
			fn(ctx)
			return
		}
		defer r.sem.Release(1)
		fn(ctx)
	}()
	return nil
}

func (r *Runner) finish(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cancel, ok := r.jobs[id]; ok {
		cancel()
		delete(r.jobs, id)
	}
}

// Cancel stops the job with id, if one is running.
func (r *Runner) Cancel(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cancel, ok := r.jobs[id]
	if ok {
		cancel()
	}
	return ok
}

// Running reports whether a job with id is queued or in flight.
func (r *Runner) Running(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.jobs[id]
	return ok
}

// Wait blocks until every submitted job has returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Shutdown rejects new jobs, cancels the running ones and waits for them
// to return or for ctx to expire.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.stop()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
