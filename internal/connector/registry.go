package connector

import (
	"fmt"
	"sort"
	"sync"
)

type Factory func(conn Connection, opts Options) Connector

// Registry maps engine types to connector constructors.
type Registry struct {
	mu        sync.RWMutex
	opts      Options
	factories map[EngineType]Factory
}

func NewRegistry(opts Options) *Registry {
	return &Registry{opts: opts, factories: map[EngineType]Factory{}}
}

func (r *Registry) Register(engine EngineType, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[engine] = factory
}

// For returns a connector for conn. Engine names are matched case-insensitively.
func (r *Registry) For(conn Connection) (Connector, error) {
	engine, err := ParseEngineType(string(conn.EngineType))
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	factory, ok := r.factories[engine]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEngine, engine)
	}
	conn.EngineType = engine
	return factory(conn, r.opts), nil
}

func (r *Registry) Engines() []EngineType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	engines := make([]EngineType, 0, len(r.factories))
	for engine := range r.factories {
		engines = append(engines, engine)
	}
	sort.Slice(engines, func(i, j int) bool { return engines[i] < engines[j] })
	return engines
}
