package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/duragraph/duragraph/internal/domain/run"
	"github.com/duragraph/duragraph/internal/domain/workflow"
)

// CachedRunRepository wraps run.Repository with cache invalidation on
// every write. Reads still hit the database: a Run aggregate's state
// changes too often mid-execution for the cache to pay for itself.
// Nothing here writes run entries to the cache; writes only delete the
// "run:<id>" key.
type CachedRunRepository struct {
	repo  run.Repository
	cache *RedisCache
	ttl   time.Duration
}

// NewCachedRunRepository creates a cached run repository
func NewCachedRunRepository(repo run.Repository, cache *RedisCache, ttl time.Duration) *CachedRunRepository {
	if ttl == 0 {
		ttl = 5 * time.Minute
	}

	return &CachedRunRepository{
		repo:  repo,
		cache: cache,
		ttl:   ttl,
	}
}

// FindByID delegates to the underlying repository.
func (r *CachedRunRepository) FindByID(ctx context.Context, id string) (*run.Run, error) {
	runAgg, err := r.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	return runAgg, nil
}

// Save invalidates cache on write
func (r *CachedRunRepository) Save(ctx context.Context, runAgg *run.Run) error {
	if err := r.repo.Save(ctx, runAgg); err != nil {
		return err
	}

	cacheKey := fmt.Sprintf("run:%s", runAgg.ID())
	r.cache.Delete(ctx, cacheKey)

	return nil
}

// Update invalidates cache on write
func (r *CachedRunRepository) Update(ctx context.Context, runAgg *run.Run) error {
	if err := r.repo.Update(ctx, runAgg); err != nil {
		return err
	}

	cacheKey := fmt.Sprintf("run:%s", runAgg.ID())
	r.cache.Delete(ctx, cacheKey)

	return nil
}

// FindByGraphID delegates to the underlying repository.
func (r *CachedRunRepository) FindByGraphID(ctx context.Context, graphID string, limit, offset int) ([]*run.Run, error) {
	return r.repo.FindByGraphID(ctx, graphID, limit, offset)
}

// FindByStatus delegates to the underlying repository.
func (r *CachedRunRepository) FindByStatus(ctx context.Context, status run.Status, limit, offset int) ([]*run.Run, error) {
	return r.repo.FindByStatus(ctx, status, limit, offset)
}

// LoadFromEvents delegates to the underlying repository.
func (r *CachedRunRepository) LoadFromEvents(ctx context.Context, id string) (*run.Run, error) {
	return r.repo.LoadFromEvents(ctx, id)
}

// Delete invalidates cache on write
func (r *CachedRunRepository) Delete(ctx context.Context, id string) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}

	cacheKey := fmt.Sprintf("run:%s", id)
	r.cache.Delete(ctx, cacheKey)

	return nil
}

// CachedGraphRepository wraps workflow.GraphRepository with cache
// invalidation on every write. Reads delegate to the underlying
// repository; nothing here writes graph entries to the cache, and
// writes only delete the "graph:<id>" key.
type CachedGraphRepository struct {
	repo  workflow.GraphRepository
	cache *RedisCache
	ttl   time.Duration
}

// NewCachedGraphRepository creates a cached graph repository.
func NewCachedGraphRepository(repo workflow.GraphRepository, cache *RedisCache, ttl time.Duration) *CachedGraphRepository {
	if ttl == 0 {
		ttl = 15 * time.Minute
	}

	return &CachedGraphRepository{
		repo:  repo,
		cache: cache,
		ttl:   ttl,
	}
}

// FindByID delegates to the repository.
func (r *CachedGraphRepository) FindByID(ctx context.Context, id string) (*workflow.Graph, error) {
	return r.repo.FindByID(ctx, id)
}

// FindByAssistantID delegates to the repository.
func (r *CachedGraphRepository) FindByAssistantID(ctx context.Context, assistantID string) ([]*workflow.Graph, error) {
	return r.repo.FindByAssistantID(ctx, assistantID)
}

// FindByAssistantIDAndVersion delegates to the repository.
func (r *CachedGraphRepository) FindByAssistantIDAndVersion(ctx context.Context, assistantID, version string) (*workflow.Graph, error) {
	return r.repo.FindByAssistantIDAndVersion(ctx, assistantID, version)
}

// Save invalidates cache
func (r *CachedGraphRepository) Save(ctx context.Context, g *workflow.Graph) error {
	if err := r.repo.Save(ctx, g); err != nil {
		return err
	}

	cacheKey := fmt.Sprintf("graph:%s", g.ID())
	r.cache.Delete(ctx, cacheKey)

	return nil
}

// Update invalidates cache
func (r *CachedGraphRepository) Update(ctx context.Context, g *workflow.Graph) error {
	if err := r.repo.Update(ctx, g); err != nil {
		return err
	}

	cacheKey := fmt.Sprintf("graph:%s", g.ID())
	r.cache.Delete(ctx, cacheKey)

	return nil
}

// Delete invalidates cache
func (r *CachedGraphRepository) Delete(ctx context.Context, id string) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}

	cacheKey := fmt.Sprintf("graph:%s", id)
	r.cache.Delete(ctx, cacheKey)

	return nil
}
