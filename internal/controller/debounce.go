package controller

import (
	"context"
	"errors"
	"sync"
	"time"

	"replied/internal/models"
)

// ErrSuperseded is the cause of a stale error when a newer call replaced a
// pending debounced one.
var ErrSuperseded = errors.New("superseded by a newer call")

// Debouncer lets only the last of a burst of calls proceed once the burst
// has been quiet for the configured delay.
type Debouncer struct {
	delay time.Duration

	mu      sync.Mutex
	pending chan struct{}
}

// NewDebouncer returns a Debouncer with the given quiet period.
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

// Wait blocks for the quiet period. It returns nil when no newer call arrived
// meanwhile, and a stale error when one did or ctx ended first.
func (d *Debouncer) Wait(ctx context.Context) error {
	mine := make(chan struct{})

	d.mu.Lock()
	if d.pending != nil {
		close(d.pending)
	}
	d.pending = mine
	d.mu.Unlock()

	timer := time.NewTimer(d.delay)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-mine:
		return models.NewStaleError(ErrSuperseded)
	case <-ctx.Done():
		d.forget(mine)
		return models.NewStaleError(ctx.Err())
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	select {
	case <-mine:
		return models.NewStaleError(ErrSuperseded)
	default:
	}
	d.pending = nil
	return nil
}

func (d *Debouncer) forget(ch chan struct{}) {
	d.mu.Lock()
	if d.pending == ch {
		d.pending = nil
	}
	d.mu.Unlock()
}

// Debouncers keeps one Debouncer per key while callers are waiting on it,
// e.g. one per browser session and input field.
type Debouncers struct {
	set *keyed[*Debouncer]
}

// NewDebouncers returns a keyed set with the given quiet period.
func NewDebouncers(delay time.Duration) *Debouncers {
	return &Debouncers{set: newKeyed(func() *Debouncer { return NewDebouncer(delay) })}
}

// Wait is Debouncer.Wait for the debouncer of key.
func (s *Debouncers) Wait(ctx context.Context, key string) error {
	d := s.set.acquire(key)
	defer s.set.release(key)
	return d.Wait(ctx)
}
