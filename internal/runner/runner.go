// Package runner executes indexed tasks with bounded concurrency and a fixed
// pause after each task, so bulk calls do not overwhelm the backend.
package runner

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Task runs the i-th unit of work.
type Task func(ctx context.Context, i int) error

type Runner struct {
	// Concurrency caps tasks in flight; values below 1 mean 1.
	Concurrency int
	// Delay is waited after a task finishes before its slot takes the next
	// task. No pause follows the last task.
	Delay time.Duration

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func New(concurrency int, delay time.Duration) *Runner {
	return &Runner{Concurrency: concurrency, Delay: delay}
}

// Run starts tasks 0..n-1 in order. A failing task does not stop the others;
// all task errors are returned joined. When ctx is cancelled no further tasks
// start, running ones see the cancelled context, and ctx.Err() is included in
// the result.
func (r *Runner) Run(ctx context.Context, n int, task Task) error {
	limit := r.Concurrency
	if limit < 1 {
		limit = 1
	}
	sleep := r.sleep
	if sleep == nil {
		sleep = sleepContext
	}

	// errgroup.WithContext would cancel siblings on the first failure; task
	// errors are collected instead so one bad key does not abort the run.
	var g errgroup.Group
	g.SetLimit(limit)

	errs := make([]error, n)
	var skipped atomic.Bool
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			skipped.Store(true)
			break
		}
		i := i
		g.Go(func() error {
			// The slot may free up only after ctx was cancelled.
			if ctx.Err() != nil {
				skipped.Store(true)
				return nil
			}
			errs[i] = task(ctx, i)
			if r.Delay > 0 && i < n-1 {
				_ = sleep(ctx, r.Delay)
			}
			return nil
		})
	}
	g.Wait()

	if skipped.Load() {
		errs = append(errs, ctx.Err())
	}
	return errors.Join(errs...)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
