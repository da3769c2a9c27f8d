// Package async runs detached best-effort tasks whose failures are only logged.
package async

import (
	"context"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/zuychin03/zuychin-assistant/pkg/utils/logging"
)

// Task is a handle of a detached task. Err receives at most one error and is closed
// when the task finishes.
type Task struct {
	name  string
	errCh chan error
	done  chan struct{}
}

// Name returns the task label used in logs
func (t *Task) Name() string { return t.name }

// Err returns the error channel of the task
func (t *Task) Err() <-chan error { return t.errCh }

// Done is closed when the task finishes
func (t *Task) Done() <-chan struct{} { return t.done }

// Runner starts detached tasks and tracks them for graceful shutdown
type Runner struct {
	wg      sync.WaitGroup
	timeout time.Duration
}

// Option configures Runner
type Option func(*Runner)

// WithTimeout bounds each task. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		r.timeout = d
	}
}

// NewRunner creates a Runner. Tasks are bounded by one minute unless configured.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{timeout: time.Minute}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Go runs fn in a new goroutine. The task outlives the caller: ctx cancellation is not
// propagated, but its values (logger) are.
func (r *Runner) Go(ctx context.Context, name string, fn func(ctx context.Context) error) *Task {
	task := &Task{
		name:  name,
		errCh: make(chan error, 1),
		done:  make(chan struct{}),
	}

	taskCtx := context.WithoutCancel(ctx)
	var cancel context.CancelFunc = func() {}
	if r.timeout > 0 {
		taskCtx, cancel = context.WithTimeout(taskCtx, r.timeout)
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(task.done)
		defer close(task.errCh)
		defer cancel()

		if err := run(taskCtx, fn); err != nil {
			logging.From(ctx).Warn("background task failed", "task", name, "error", err)
			task.errCh <- err
		}
	}()

	return task
}

func run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = goerr.New("panic in background task", goerr.V("recover", rec))
		}
	}()
	return fn(ctx)
}

// Wait blocks until all started tasks finish
func (r *Runner) Wait() {
	r.wg.Wait()
}
