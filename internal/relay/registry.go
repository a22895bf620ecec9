package relay

import (
	"sort"
	"sync"

	"watchalong/internal/protocol"
)

// Registry defines the concurrency-safe contract for the set of live origins.
type Registry interface {
	// Add registers o under a fresh identifier and returns it.
	Add(o *Origin) int64

	// Remove deregisters an origin. Removing an unknown id is a no-op.
	Remove(id int64) (*Origin, bool)

	// Get returns the origin registered under id.
	Get(id int64) (*Origin, bool)

	// List returns a snapshot of every live origin ordered by identifier.
	List() []protocol.ServerInfo

	// Count returns the number of live origins.
	Count() int

	// ViewerCount returns the number of admitted viewers across all origins.
	ViewerCount() int
}

// InMemoryRegistry is the process-local Registry.
type InMemoryRegistry struct {
	mu      sync.RWMutex
	origins map[int64]*Origin
	lastID  int64
}

// NewInMemoryRegistry returns an empty registry.
func NewInMemoryRegistry() *InMemoryRegistry {
	return &InMemoryRegistry{origins: make(map[int64]*Origin)}
}

// Add implements Registry.Add.
func (r *InMemoryRegistry) Add(o *Origin) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastID++
	o.ID = r.lastID
	r.origins[o.ID] = o
	return o.ID
}

// Remove implements Registry.Remove.
func (r *InMemoryRegistry) Remove(id int64) (*Origin, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.origins[id]
	if ok {
		delete(r.origins, id)
	}
	return o, ok
}

// Get implements Registry.Get.
func (r *InMemoryRegistry) Get(id int64) (*Origin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.origins[id]
	return o, ok
}

// List implements Registry.List.
func (r *InMemoryRegistry) List() []protocol.ServerInfo {
	r.mu.RLock()
	origins := make([]*Origin, 0, len(r.origins))
	for _, o := range r.origins {
		origins = append(origins, o)
	}
	r.mu.RUnlock()

	sort.Slice(origins, func(i, j int) bool { return origins[i].ID < origins[j].ID })

	out := make([]protocol.ServerInfo, 0, len(origins))
	for _, o := range origins {
		out = append(out, o.ServerInfo())
	}
	return out
}

// Count implements Registry.Count.
func (r *InMemoryRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.origins)
}

// ViewerCount implements Registry.ViewerCount.
func (r *InMemoryRegistry) ViewerCount() int {
	r.mu.RLock()
	origins := make([]*Origin, 0, len(r.origins))
	for _, o := range r.origins {
		origins = append(origins, o)
	}
	r.mu.RUnlock()

	n := 0
	for _, o := range origins {
		n += o.coord.ViewerCount()
	}
	return n
}
