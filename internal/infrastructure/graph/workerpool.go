package graph

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// WorkerPool bounds the number of concurrently running parallel
// branches to MaxWorkers, and rejects submissions beyond
// MaxSubmitCount immediately rather than blocking the submitter
// forever waiting for a slot that may never free up.
type WorkerPool struct {
	sem          *semaphore.Weighted
	maxSubmit    int64
	mu           sync.Mutex
	submitted    int64
}

// ErrWorkerPoolExhausted is a graph-fatal error: the branch dispatcher
// tried to submit more concurrent branches than the pool allows.
var ErrWorkerPoolExhausted = fmt.Errorf("graph: worker pool submit count exceeded")

// NewWorkerPool creates a pool with maxWorkers concurrent slots and a
// hard cap of maxSubmitCount total submissions across the pool's
// lifetime (0 means unbounded submission count, still capped on
// concurrency).
func NewWorkerPool(maxWorkers, maxSubmitCount int) *WorkerPool {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	return &WorkerPool{
		sem:       semaphore.NewWeighted(int64(maxWorkers)),
		maxSubmit: int64(maxSubmitCount),
	}
}

// RunGroup executes fns concurrently, bounded by the pool's worker
// slots. It returns the first error encountered (if any), and the
// group's context is canceled as soon as one fn errors, so sibling
// branches observe cancellation promptly.
func (p *WorkerPool) RunGroup(ctx context.Context, fns []func(context.Context) error) error {
	if p.maxSubmit > 0 {
		p.mu.Lock()
		if p.submitted+int64(len(fns)) > p.maxSubmit {
			p.mu.Unlock()
			return ErrWorkerPoolExhausted
		}
		p.submitted += int64(len(fns))
		p.mu.Unlock()
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for _, fn := range fns {
		fn := fn
		if err := p.sem.Acquire(groupCtx, 1); err != nil {
			return err
		}
		group.Go(func() error {
			defer p.sem.Release(1)
			return fn(groupCtx)
		})
	}
	return group.Wait()
}
