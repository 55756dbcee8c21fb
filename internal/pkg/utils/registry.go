package utils

import (
	"fmt"
	"sort"
	"sync"
)

// Registry keeps a dynamic set of subscribers. Subscribers are returned in the order
// they were added.
type Registry[T any] struct {
	mutex   sync.Mutex
	next    int64
	entries map[int64]T
}

func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{
		entries: make(map[int64]T),
	}
}

// Add registers v and returns its ID and a function that removes it again.
// The remove function is safe to call more than once.
func (r *Registry[T]) Add(v T) (int64, func()) {
	r.mutex.Lock()
	id := r.next
	r.next++
	r.entries[id] = v
	r.mutex.Unlock()

	var once sync.Once
	return id, func() {
		once.Do(func() {
			_ = r.Remove(id)
		})
	}
}

// Remove unregisters subscriber with given ID
func (r *Registry[T]) Remove(id int64) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, ok := r.entries[id]; !ok {
		return fmt.Errorf("subscriber id %d not found", id)
	}
	delete(r.entries, id)
	return nil
}

// Snapshot returns a copy of current subscribers, callers may iterate it without holding any lock.
func (r *Registry[T]) Snapshot() []T {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	ids := make([]int64, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]T, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.entries[id])
	}
	return out
}

func (r *Registry[T]) Len() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.entries)
}

// Clear removes every subscriber.
func (r *Registry[T]) Clear() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.entries = make(map[int64]T)
}
