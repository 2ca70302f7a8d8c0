package execution

import (
	"fmt"
	"sync"
)

// Registry maps (NodeType, Version) to a Constructor. Lookups fail fast
// on unknown types: the graph driver looks up every node when a run
// starts, before any node executes.
type Registry struct {
	mu           sync.RWMutex
	constructors map[NodeType]map[string]Constructor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{constructors: make(map[NodeType]map[string]Constructor)}
}

// Register adds a constructor for (nodeType, version). Registering the
// same pair twice overwrites the prior entry.
func (r *Registry) Register(nodeType NodeType, version string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	versions, ok := r.constructors[nodeType]
	if !ok {
		versions = make(map[string]Constructor)
		r.constructors[nodeType] = versions
	}
	versions[version] = ctor
}

// Lookup resolves (nodeType, version) to a Constructor.
func (r *Registry) Lookup(nodeType NodeType, version string) (Constructor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	versions, ok := r.constructors[nodeType]
	if !ok {
		return nil, fmt.Errorf("execution: unknown node type %q", nodeType)
	}
	ctor, ok := versions[version]
	if !ok {
		return nil, fmt.Errorf("execution: unknown version %q for node type %q", version, nodeType)
	}
	return ctor, nil
}

// Build resolves the constructor for the node config and invokes it.
func (r *Registry) Build(nodeType NodeType, version string, params ConstructorParams) (Node, error) {
	ctor, err := r.Lookup(nodeType, version)
	if err != nil {
		return nil, err
	}
	return ctor(params)
}
