package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/duragraph/duragraph/internal/domain/workflow"
	"github.com/redis/go-redis/v9"
)

// CarveCache memoizes Carve's result per (graph, node) pair across
// runs: a graph's node/edge set is fixed for a given version, so
// re-walking a large graph's edges on every container-node visit is
// wasted work once a workflow is under sustained load.
type CarveCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCarveCache wraps a redis client. A nil client disables caching;
// Carve then always falls through to a fresh carve.
func NewCarveCache(client *redis.Client, ttl time.Duration) *CarveCache {
	return &CarveCache{client: client, ttl: ttl}
}

type carvedPayload struct {
	Nodes []workflow.Node `json:"nodes"`
	Edges []workflow.Edge `json:"edges"`
}

func (c *CarveCache) key(g *workflow.Graph, nodeID string) string {
	return fmt.Sprintf("duragraph:carve:%s:%s:%s", g.ID(), g.Version(), nodeID)
}

// Carve returns g's sub-graph rooted at nodeID, consulting the cache
// before falling back to Carve and populating the cache on miss.
func (c *CarveCache) Carve(ctx context.Context, g *workflow.Graph, assistantID, nodeID string) (*workflow.Graph, error) {
	if c.client != nil {
		if payload, ok := c.lookup(ctx, g, nodeID); ok {
			return workflow.NewGraph(assistantID, nodeID+"-debug", "1.0.0", "carved sub-graph", payload.Nodes, payload.Edges, nil, nil)
		}
	}

	sub, err := Carve(g, assistantID, nodeID)
	if err != nil {
		return nil, err
	}
	if c.client != nil {
		c.store(ctx, g, nodeID, carvedPayload{Nodes: sub.Nodes(), Edges: sub.Edges()})
	}
	return sub, nil
}

func (c *CarveCache) lookup(ctx context.Context, g *workflow.Graph, nodeID string) (carvedPayload, bool) {
	raw, err := c.client.Get(ctx, c.key(g, nodeID)).Bytes()
	if err != nil {
		return carvedPayload{}, false
	}
	var payload carvedPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return carvedPayload{}, false
	}
	return payload, true
}

func (c *CarveCache) store(ctx context.Context, g *workflow.Graph, nodeID string, payload carvedPayload) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	c.client.Set(ctx, c.key(g, nodeID), raw, c.ttl)
}
