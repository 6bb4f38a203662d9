package client

import (
	"sort"
	"sync"
)

// registry holds callbacks keyed by registration order.
type registry[T any] struct {
	mu   sync.Mutex
	next int
	fns  map[int]T
}

// add registers fn and returns a function that removes it. The returned
// function is safe to call more than once.
func (r *registry[T]) add(fn T) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.fns == nil {
		r.fns = make(map[int]T)
	}
	id := r.next
	r.next++
	r.fns[id] = fn

	return func() {
		r.mu.Lock()
		delete(r.fns, id)
		r.mu.Unlock()
	}
}

// snapshot returns the registered callbacks in registration order.
func (r *registry[T]) snapshot() []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]int, 0, len(r.fns))
	for id := range r.fns {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	out := make([]T, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.fns[id])
	}
	return out
}
