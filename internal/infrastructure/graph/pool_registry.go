package graph

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// PoolRegistry hands out one WorkerPool per run, scoped to the engine
// instance that owns it rather than a process-wide global map. Each
// run gets its own pool so one run's branch concurrency can never
// starve another's.
type PoolRegistry struct {
	mu             sync.Mutex
	pools          map[string]*WorkerPool
	createdAt      map[string]time.Time
	maxWorkers     int
	maxSubmitCount int
	cron           *cron.Cron
}

// NewPoolRegistry creates a registry that lazily builds a WorkerPool
// per run_id using the given limits.
func NewPoolRegistry(maxWorkers, maxSubmitCount int) *PoolRegistry {
	return &PoolRegistry{
		pools:          make(map[string]*WorkerPool),
		createdAt:      make(map[string]time.Time),
		maxWorkers:     maxWorkers,
		maxSubmitCount: maxSubmitCount,
	}
}

// PoolFor returns the WorkerPool for runID, creating it on first use.
func (r *PoolRegistry) PoolFor(runID string) *WorkerPool {
	r.mu.Lock()
	defer r.mu.Unlock()
	pool, ok := r.pools[runID]
	if !ok {
		pool = NewWorkerPool(r.maxWorkers, r.maxSubmitCount)
		r.pools[runID] = pool
		r.createdAt[runID] = time.Now()
	}
	return pool
}

// Release discards the pool for runID once its run has finished.
func (r *PoolRegistry) Release(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pools, runID)
	delete(r.createdAt, runID)
}

// sweep drops any pool older than maxAge. Under normal operation the
// driver's own deferred Release always fires first; this only catches
// pools orphaned by a run whose goroutine died (panic, process kill)
// before it could clean up after itself.
func (r *PoolRegistry) sweep(maxAge time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := time.Now().Add(-maxAge)
	for runID, at := range r.createdAt {
		if at.Before(cutoff) {
			delete(r.pools, runID)
			delete(r.createdAt, runID)
		}
	}
}

// StartCleanup schedules a periodic sweep of orphaned pools on the
// given cron schedule (standard 5-field syntax, e.g. "0 * * * *" for
// hourly), discarding anything older than maxAge. Safe to call at
// most once per registry; the returned cron.Cron keeps running until
// the caller calls Stop() on it.
func (r *PoolRegistry) StartCleanup(schedule string, maxAge time.Duration) (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() { r.sweep(maxAge) }); err != nil {
		return nil, err
	}
	c.Start()
	r.cron = c
	return c, nil
}
