package schema

import (
	"fmt"
	"sort"
	"sync"
)

// Registry is the in-memory name -> schema map the sync manager resolves
// schemas from during a run. Reads dominate; writes happen at load and
// register time under an exclusive lock.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]*TableSchema
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{schemas: make(map[string]*TableSchema)}
}

// Register adds or replaces a schema. Insertion order is irrelevant.
func (r *Registry) Register(ts *TableSchema) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[ts.TableName] = ts
}

// Get returns the schema for name.
func (r *Registry) Get(name string) (*TableSchema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ts, ok := r.schemas[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, name)
	}
	return ts, nil
}

// Has reports whether a schema is registered under name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.schemas[name]
	return ok
}

// ListTables returns the registered table names in sorted order.
func (r *Registry) ListTables() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.schemas))
	for name := range r.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetDisabled flips the disabled flag on a registered table's sync policy.
// Used when the remote refuses access to a table.
func (r *Registry) SetDisabled(name string, disabled bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	ts, ok := r.schemas[name]
	if !ok {
		return false
	}
	if ts.SyncConfig == nil {
		ts.SyncConfig = DefaultSyncConfig()
	}
	ts.SyncConfig.Disabled = disabled
	return true
}
