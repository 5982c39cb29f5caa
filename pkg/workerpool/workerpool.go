// Package workerpool bounds how many tasks of one computation run at once.
//
// A Pool is a single admission limit. Every task scheduled through it, whether
// a whole-channel step or a single tile, takes one slot while it runs, so the
// total number of active tasks never exceeds Size. A task never holds a slot
// while it waits for other tasks, which keeps a bound of 1 deadlock free.
//
// Usage:
//
//	pool := workerpool.New(4)
//	batch := pool.Batch(ctx)
//	for _, r := range units {
//	    if err := batch.Go(func(ctx context.Context) error {
//	        return process(r)
//	    }); err != nil {
//	        break
//	    }
//	}
//	err := batch.Wait()
package workerpool

import (
	"context"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Pool is a shared admission limit for concurrently running tasks.
type Pool struct {
	size   int
	sem    *semaphore.Weighted
	active atomic.Int64
	peak   atomic.Int64
}

// New creates a pool admitting at most maxConcurrency tasks at a time.
// If maxConcurrency <= 0, uses GOMAXPROCS.
func New(maxConcurrency int) *Pool {
	if maxConcurrency <= 0 {
		maxConcurrency = runtime.GOMAXPROCS(0)
	}
	return &Pool{
		size: maxConcurrency,
		sem:  semaphore.NewWeighted(int64(maxConcurrency)),
	}
}

// Size returns the admission limit.
func (p *Pool) Size() int {
	return p.size
}

// Peak returns the highest number of tasks that were running at the same time.
func (p *Pool) Peak() int {
	return int(p.peak.Load())
}

func (p *Pool) acquire(ctx context.Context) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	n := p.active.Add(1)
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	return nil
}

func (p *Pool) release() {
	p.active.Add(-1)
	p.sem.Release(1)
}

// Do runs fn on the calling goroutine once a slot is free.
// It returns ctx.Err() without running fn if ctx is done first.
func (p *Pool) Do(ctx context.Context, fn func() error) error {
	if err := p.acquire(ctx); err != nil {
		return err
	}
	defer p.release()
	return fn()
}

// Batch returns a join barrier whose tasks are admitted through p.
func (p *Pool) Batch(ctx context.Context) *Batch {
	g, gctx := errgroup.WithContext(ctx)
	return &Batch{pool: p, group: g, ctx: gctx}
}

// Batch is a set of tasks that are waited for together.
// The first task error cancels the batch context.
type Batch struct {
	pool  *Pool
	group *errgroup.Group
	ctx   context.Context
}

// Context returns the batch context, cancelled on the first task error.
func (b *Batch) Context() context.Context {
	return b.ctx
}

// Go blocks until a slot is free, then runs fn on a new goroutine.
// It returns an error without scheduling fn once the batch context is done;
// callers stop dispatching at that point and call Wait.
func (b *Batch) Go(fn func(ctx context.Context) error) error {
	if err := b.pool.acquire(b.ctx); err != nil {
		return err
	}
	b.group.Go(func() error {
		defer b.pool.release()
		return fn(b.ctx)
	})
	return nil
}

// Wait blocks until every scheduled task has returned and reports the first error.
func (b *Batch) Wait() error {
	return b.group.Wait()
}
