// Package watch implements a versioned single-value broadcaster.
//
// A Value holds the latest snapshot of some state. Writers replace the
// snapshot; readers subscribe and are woken on change, but only ever observe
// the newest snapshot. There is no backlog: a slow reader that misses three
// updates sees the third one, once.
package watch

import (
	"context"
	"sync"
)

var closedCh = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

type Value[T any] struct {
	mu      sync.Mutex
	val     T
	version uint64
	// changed is closed and replaced on every Store.
	changed chan struct{}
}

func New[T any](initial T) *Value[T] {
	return &Value[T]{val: initial, changed: make(chan struct{})}
}

func (v *Value[T]) Load() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.val
}

// Version increases by one for every published snapshot.
func (v *Value[T]) Version() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.version
}

func (v *Value[T]) Store(val T) {
	v.Update(func(T) T { return val })
}

// Update publishes fn(current) as the new snapshot. fn runs under the value's
// lock, so concurrent Updates never interleave their read-modify-write.
func (v *Value[T]) Update(fn func(T) T) T {
	v.mu.Lock()
	v.val = fn(v.val)
	v.version++
	close(v.changed)
	v.changed = make(chan struct{})
	out := v.val
	v.mu.Unlock()
	return out
}

// Subscribe returns a reader positioned at the current version: the first
// Changed channel fires on the next Store.
func (v *Value[T]) Subscribe() *Subscription[T] {
	v.mu.Lock()
	defer v.mu.Unlock()
	return &Subscription[T]{v: v, seen: v.version}
}

type Subscription[T any] struct {
	v    *Value[T]
	mu   sync.Mutex
	seen uint64
}

// Changed returns a channel that is closed once a snapshot newer than the
// last one returned by Load exists.
func (s *Subscription[T]) Changed() <-chan struct{} {
	s.mu.Lock()
	seen := s.seen
	s.mu.Unlock()

	s.v.mu.Lock()
	defer s.v.mu.Unlock()
	if s.v.version > seen {
		return closedCh
	}
	return s.v.changed
}

// Load returns the latest snapshot and marks it as seen.
func (s *Subscription[T]) Load() T {
	s.v.mu.Lock()
	val, version := s.v.val, s.v.version
	s.v.mu.Unlock()

	s.mu.Lock()
	s.seen = version
	s.mu.Unlock()
	return val
}

// Next blocks until a snapshot newer than the last seen one is published and
// returns it.
func (s *Subscription[T]) Next(ctx context.Context) (T, error) {
	select {
	case <-s.Changed():
		return s.Load(), nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
