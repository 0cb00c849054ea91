package auth

import (
	"context"
	"sync"
	"time"

	"replied/internal/models"
	"replied/internal/observability"
)

// RefreshWindow is how close to expiry an access token is rotated.
const RefreshWindow = 60 * time.Second

// Listener receives auth state changes. sess is nil for SIGNED_OUT.
type Listener func(event models.AuthEvent, sess *models.Session)

// Provider is the session source a resolver is built on.
type Provider interface {
	// Session returns the current session, or nil when signed out.
	Session(ctx context.Context) (*models.Session, error)
	// OnAuthStateChange registers fn and returns the function that removes it.
	OnAuthStateChange(fn Listener) (unsubscribe func())
	// SignOut clears the session and notifies listeners.
	SignOut(ctx context.Context) error
}

// listeners is a registry of callbacks safe for concurrent use.
type listeners struct {
	mu   sync.Mutex
	next int
	fns  map[int]Listener
}

func (l *listeners) add(fn Listener) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = make(map[int]Listener)
	}
	id := l.next
	l.next++
	l.fns[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.fns, id)
			l.mu.Unlock()
		})
	}
}

func (l *listeners) emit(event models.AuthEvent, sess *models.Session) {
	l.mu.Lock()
	fns := make([]Listener, 0, len(l.fns))
	for _, fn := range l.fns {
		fns = append(fns, fn)
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(event, sess)
	}
}

func (l *listeners) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.fns)
}

// refreshIfDue rotates sess when it is inside RefreshWindow. It fails only
// when the token has already expired and cannot be rotated.
func refreshIfDue(ctx context.Context, r Refresher, sess *models.Session, now time.Time) (out *models.Session, refreshed bool, err error) {
	if sess == nil || !sess.ExpiresWithin(now, RefreshWindow) {
		return sess, false, nil
	}
	if r == nil || sess.RefreshToken == "" {
		if sess.ExpiresAt.After(now) {
			return sess, false, nil
		}
		return nil, false, models.NewUnauthenticatedError("session expired")
	}

	fresh, err := r.Refresh(ctx, sess.RefreshToken)
	if err != nil {
		if sess.ExpiresAt.After(now) {
			observability.For("auth").Warn(ctx, "token refresh failed, using current token", map[string]any{"error": err.Error()})
			return sess, false, nil
		}
		return nil, false, err
	}
	if fresh.User.ID == "" {
		fresh.User = sess.User
	}
	return fresh, true, nil
}
