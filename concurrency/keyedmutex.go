// Package concurrency holds small concurrency primitives shared
// across the core, adapted from the Alfred gateway's
// middleware.KeyedMutex and middleware.Semaphore (stripped of their
// HTTP/org-tenancy framing; kept as general-purpose primitives).
package concurrency

import (
	"sync"
	"sync/atomic"
)

// KeyedMutex serializes access per key without a global lock. The
// response cache exposes it as cache.Store.WithLock, for callers that
// want to keep two requests producing the same content hash from both
// paying for the same upstream call; modelclient.Client does not call
// WithLock.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyEntry
}

type keyEntry struct {
	mu      sync.Mutex
	waiters int32
}

// NewKeyedMutex creates an empty per-key mutex manager.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyEntry)}
}

// Lock acquires the lock for key, returning an unlock function. The
// entry is garbage-collected once the last waiter releases it.
func (km *KeyedMutex) Lock(key string) func() {
	km.mu.Lock()
	entry, ok := km.locks[key]
	if !ok {
		entry = &keyEntry{}
		km.locks[key] = entry
	}
	atomic.AddInt32(&entry.waiters, 1)
	km.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()
		km.mu.Lock()
		if atomic.AddInt32(&entry.waiters, -1) == 0 {
			delete(km.locks, key)
		}
		km.mu.Unlock()
	}
}

// Semaphore provides bounded concurrency control per key: at most
// limit holders per key at a time. The match package does not use it;
// its worker pool is a plain buffered channel.
type Semaphore struct {
	mu    sync.Mutex
	semas map[string]chan struct{}
	limit int
}

// NewSemaphore creates a Semaphore allowing up to limit concurrent
// holders per key.
func NewSemaphore(limit int) *Semaphore {
	return &Semaphore{semas: make(map[string]chan struct{}), limit: limit}
}

// Acquire blocks until a slot for key is available and returns a
// release function.
func (s *Semaphore) Acquire(key string) func() {
	s.mu.Lock()
	ch, ok := s.semas[key]
	if !ok {
		ch = make(chan struct{}, s.limit)
		s.semas[key] = ch
	}
	s.mu.Unlock()

	ch <- struct{}{}
	return func() { <-ch }
}
