package controller

import (
	"context"
	"sync"

	"replied/internal/models"
)

type keyedEntry[T any] struct {
	val  T
	refs int
}

// keyed is a reference-counted registry: an entry lives while at least one
// caller holds it.
type keyed[T any] struct {
	mu      sync.Mutex
	entries map[string]*keyedEntry[T]
	create  func() T
}

func newKeyed[T any](create func() T) *keyed[T] {
	return &keyed[T]{entries: make(map[string]*keyedEntry[T]), create: create}
}

func (k *keyed[T]) acquire(key string) T {
	k.mu.Lock()
	defer k.mu.Unlock()
	e, ok := k.entries[key]
	if !ok {
		e = &keyedEntry[T]{val: k.create()}
		k.entries[key] = e
	}
	e.refs++
	return e.val
}

func (k *keyed[T]) release(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e, ok := k.entries[key]
	if !ok {
		return
	}
	e.refs--
	if e.refs <= 0 {
		delete(k.entries, key)
	}
}

func (k *keyed[T]) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}

// KeyedMutex serializes work per key. Waiting honours the caller's context.
type KeyedMutex struct {
	locks *keyed[chan struct{}]
}

// NewKeyedMutex returns an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: newKeyed(func() chan struct{} { return make(chan struct{}, 1) })}
}

// Lock blocks until key is free or ctx is done. The returned func releases it.
func (m *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	ch := m.locks.acquire(key)
	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		m.locks.release(key)
		return nil, models.NewStaleError(ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-ch
			m.locks.release(key)
		})
	}, nil
}

// Len is the number of keys currently held or waited on.
func (m *KeyedMutex) Len() int {
	return m.locks.size()
}
