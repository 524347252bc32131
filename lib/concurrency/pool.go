// Package concurrency provides the installer's bounded worker pool for the
// package-fetch phase (spec.md 4.G step 6: "Tasks run on a bounded worker
// pool (size = number of tasks, capped; I/O-heavy)"). The Group/Go/Wait
// shape mirrors gravitational-gravity/lib/run.Group, which wraps
// golang.org/x/sync/errgroup with a semaphore-based concurrency limit; this
// package uses x/sync/errgroup directly (as SeleniaProject-Orizon's
// internal/packagemanager/manager.go does for its dependency-fetch pool)
// rather than reimplementing the teacher's semaphoreStore abstraction.
package concurrency

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Pool runs a fixed number of tasks with at most `size` running
// concurrently, cancelling outstanding tasks on the first error.
type Pool struct {
	group *errgroup.Group
	sem   chan struct{}
}

// NewPool returns a Pool bound to ctx, allowing up to size concurrent tasks.
// A size <= 0 means unbounded, matching errgroup.Group's default behavior.
func NewPool(ctx context.Context, size int) (*Pool, context.Context) {
	group, groupCtx := errgroup.WithContext(ctx)
	p := &Pool{group: group}
	if size > 0 {
		p.sem = make(chan struct{}, size)
	}
	return p, groupCtx
}

// Go schedules fn, blocking until a slot is free if the pool is bounded.
func (p *Pool) Go(fn func() error) {
	if p.sem == nil {
		p.group.Go(fn)
		return
	}
	p.sem <- struct{}{}
	p.group.Go(func() error {
		defer func() { <-p.sem }()
		return fn()
	})
}

// Wait blocks until every scheduled task has returned, then returns the
// first non-nil error encountered, if any.
func (p *Pool) Wait() error {
	return p.group.Wait()
}
