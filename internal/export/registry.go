package export

import (
	"fmt"
	"sort"
	"sync"
)

// Registry resolves an export contract by its triple
type Registry struct {
	mu        sync.RWMutex
	exporters map[Key]Exporter
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		exporters: make(map[Key]Exporter),
	}
}

// Register adds a contract; a triple can only be registered once
func (r *Registry) Register(exporter Exporter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := exporter.Key()
	if key.EntityType == "" || key.RemoteModel == "" || key.Variant == "" {
		return fmt.Errorf("exporter key %q is incomplete", key)
	}

	if _, exists := r.exporters[key]; exists {
		return fmt.Errorf("exporter %s is already registered", key)
	}

	r.exporters[key] = exporter
	return nil
}

// MustRegister registers every contract and panics on a wiring mistake
func (r *Registry) MustRegister(exporters ...Exporter) {
	for _, e := range exporters {
		if err := r.Register(e); err != nil {
			panic(err)
		}
	}
}

// Get returns the contract for key
func (r *Registry) Get(key Key) (Exporter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exporter, exists := r.exporters[key]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownExporter, key)
	}

	return exporter, nil
}

// Keys lists registered triples in a stable order
func (r *Registry) Keys() []Key {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]Key, 0, len(r.exporters))
	for k := range r.exporters {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}
