// Package syncutil holds locking primitives that respect context cancellation.
package syncutil

import (
	"context"
)

// ContextMutex is a mutex built on a one-slot channel, so a waiter can give
// up when its context is done. The zero value is not usable; call
// NewContextMutex.
type ContextMutex struct {
	ch chan struct{}
}

// NewContextMutex returns an unlocked mutex.
func NewContextMutex() *ContextMutex {
	m := &ContextMutex{ch: make(chan struct{}, 1)}
	m.ch <- struct{}{}
	return m
}

// Lock acquires the mutex or returns ctx.Err(). On success the caller
// MUST call the returned unlock exactly once.
func (m *ContextMutex) Lock(ctx context.Context) (unlock func(), err error) {
	// Prefer an already cancelled context over a free lock.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	select {
	case <-m.ch:
		return func() { m.ch <- struct{}{} }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryLock acquires the mutex only if it is free.
func (m *ContextMutex) TryLock() (unlock func(), ok bool) {
	select {
	case <-m.ch:
		return func() { m.ch <- struct{}{} }, true
	default:
		return nil, false
	}
}
