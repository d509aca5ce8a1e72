// Package registry keeps the in-flight battles and tournaments of a running
// arena, keyed by opaque IDs.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// NewID returns prefix + "_" + a random UUID.
func NewID(prefix string) string {
	if prefix == "" {
		return uuid.NewString()
	}
	return prefix + "_" + uuid.NewString()
}

type item[T any] struct {
	val     T
	created time.Time
}

type Registry[T any] struct {
	mu    sync.RWMutex
	items map[string]*item[T]
	now   func() time.Time
}

func New[T any]() *Registry[T] {
	return &Registry[T]{items: make(map[string]*item[T]), now: time.Now}
}

// Put stores v under id, replacing any previous value.
func (r *Registry[T]) Put(id string, v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if it, ok := r.items[id]; ok {
		it.val = v
		return
	}
	r.items[id] = &item[T]{val: v, created: r.now()}
}

func (r *Registry[T]) Get(id string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	it, ok := r.items[id]
	if !ok {
		var zero T
		return zero, false
	}
	return it.val, true
}

// List returns every value, oldest first.
func (r *Registry[T]) List() []T {
	r.mu.RLock()
	its := make([]*item[T], 0, len(r.items))
	for _, it := range r.items {
		its = append(its, it)
	}
	r.mu.RUnlock()
	sort.Slice(its, func(i, j int) bool { return its[i].created.Before(its[j].created) })
	out := make([]T, len(its))
	for i, it := range its {
		out[i] = it.val
	}
	return out
}

func (r *Registry[T]) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
}

func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Evict removes values that finished at least olderThan ago. finishedAt
// reports a value's finish time, or false while it is still running. It
// returns the evicted IDs.
func (r *Registry[T]) Evict(olderThan time.Duration, finishedAt func(T) (time.Time, bool)) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.now().Add(-olderThan)
	var out []string
	for id, it := range r.items {
		at, done := finishedAt(it.val)
		if !done || at.After(cutoff) {
			continue
		}
		delete(r.items, id)
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
