package transport

import (
	"sort"
	"sync"
)

// Registry indexes live connections by id. The accept path inserts, the
// disconnect path removes, and broadcast iterates a snapshot; all three
// may run concurrently.
type Registry struct {
	mu     sync.Mutex
	nextID uint64
	conns  map[uint64]*Conn
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[uint64]*Conn)}
}

// NextID issues a fresh id. Ids start at 1, strictly increase, and are
// never reused for the registry's lifetime.
func (r *Registry) NextID() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	return r.nextID
}

func (r *Registry) Add(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c.ID()] = c
}

func (r *Registry) Remove(id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[id]; !ok {
		return false
	}
	delete(r.conns, id)
	return true
}

func (r *Registry) Get(id uint64) (*Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[id]
	return c, ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// Snapshot returns the registered conns ordered by id.
func (r *Registry) Snapshot() []*Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Drain empties the registry and returns what it held.
func (r *Registry) Drain() []*Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Conn, 0, len(r.conns))
	for id, c := range r.conns {
		out = append(out, c)
		delete(r.conns, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}
