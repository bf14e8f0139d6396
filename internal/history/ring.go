// Package history keeps a bounded FIFO of recent items.
package history

import "iter"

// DefaultCapacity is the number of observations kept per pipeline.
const DefaultCapacity = 10

// Ring is a fixed-capacity FIFO. Pushing onto a full ring evicts the oldest item.
type Ring[T any] struct {
	items []T
	start int
	size  int
}

// New creates a ring holding at most capacity items (minimum 1).
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{items: make([]T, capacity)}
}

// Push appends item, evicting the oldest item when full.
func (r *Ring[T]) Push(item T) {
	if r.size < len(r.items) {
		r.items[(r.start+r.size)%len(r.items)] = item
		r.size++
		return
	}
	r.items[r.start] = item
	r.start = (r.start + 1) % len(r.items)
}

// Len returns the number of items held.
func (r *Ring[T]) Len() int {
	return r.size
}

// Cap returns the ring capacity.
func (r *Ring[T]) Cap() int {
	return len(r.items)
}

// All iterates oldest to newest.
func (r *Ring[T]) All() iter.Seq2[int, T] {
	return func(yield func(int, T) bool) {
		for i := 0; i < r.size; i++ {
			if !yield(i, r.items[(r.start+i)%len(r.items)]) {
				return
			}
		}
	}
}

// Items returns the held items oldest to newest.
func (r *Ring[T]) Items() []T {
	out := make([]T, 0, r.size)
	for _, item := range r.All() {
		out = append(out, item)
	}
	return out
}

// Newest returns the most recently pushed item.
func (r *Ring[T]) Newest() (T, bool) {
	var zero T
	if r.size == 0 {
		return zero, false
	}
	return r.items[(r.start+r.size-1)%len(r.items)], true
}
