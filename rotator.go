package aasdk

import (
	"sync"
)

type Rotator[T any] interface {
	// Next returns the next item in the rotation.
	Next() T

	// Add adds a new item to the rotation.
	Add(item T) error

	// Count returns the number of items available.
	Count() int
}

// RoundRobin hands out items in insertion order, wrapping around.
type RoundRobin[T any] struct {
	items []T
	index int
	mu    sync.Mutex
}

var _ Rotator[Signer] = (*RoundRobin[Signer])(nil)

func NewRoundRobin[T any](items []T) *RoundRobin[T] {
	return &RoundRobin[T]{items: append([]T(nil), items...)}
}

// NewRoundRobinSignerProvider rotates bundle executors.
func NewRoundRobinSignerProvider(signers []Signer) Rotator[Signer] {
	return NewRoundRobin(signers)
}

// Next returns the zero value when the rotation is empty.
func (r *RoundRobin[T]) Next() T {
	r.mu.Lock()
	defer r.mu.Unlock()
	var zero T
	if len(r.items) == 0 {
		return zero
	}
	current := r.items[r.index]
	r.index = (r.index + 1) % len(r.items)
	return current
}

func (r *RoundRobin[T]) Add(item T) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items = append(r.items, item)
	return nil
}

func (r *RoundRobin[T]) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.items)
}
