package utils

import (
	"sync"

	"go.uber.org/atomic"
)

// Slot is a single-value mailbox with "latest value wins" semantics. Producers overwrite whatever
// value has not been consumed yet; the consumer takes the value and empties the slot. Reads and
// writes are guarded so a consumer always sees a value exactly as it was put, never a partially
// written one.
//
// The zero value is not usable; construct with NewSlot.
type Slot[T any] struct {
	mu    sync.Mutex
	value T
	full  bool

	// ready has capacity one and is non-empty while the slot holds a value. It lets a consumer
	// select on new values without polling.
	ready chan struct{}

	puts  atomic.Uint64
	drops atomic.Uint64
}

// NewSlot returns an empty slot.
func NewSlot[T any]() *Slot[T] {
	return &Slot[T]{ready: make(chan struct{}, 1)}
}

// Put stores v, replacing any unconsumed value. It never blocks.
func (s *Slot[T]) Put(v T) {
	s.mu.Lock()
	if s.full {
		s.drops.Inc()
	}
	s.value = v
	s.full = true
	select {
	case s.ready <- struct{}{}:
	default:
	}
	s.mu.Unlock()

	s.puts.Inc()
}

// Take removes and returns the current value. ok is false if the slot was empty.
func (s *Slot[T]) Take() (v T, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.full {
		return v, false
	}
	v = s.value
	var zero T
	s.value = zero
	s.full = false
	select {
	case <-s.ready:
	default:
	}
	return v, true
}

// Ready returns a channel that has a pending receive while the slot holds a value. A receive
// from it does not consume the value; call Take afterwards.
func (s *Slot[T]) Ready() <-chan struct{} {
	return s.ready
}

// SlotStats are lifetime counters of a slot.
type SlotStats struct {
	Puts  uint64
	Drops uint64
}

// Stats returns how many values were put and how many were overwritten before being taken.
func (s *Slot[T]) Stats() SlotStats {
	return SlotStats{Puts: s.puts.Load(), Drops: s.drops.Load()}
}
