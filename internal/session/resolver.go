// Package session resolves who the viewer is and where they may go.
package session

import (
	"context"
	"sync"

	"replied/internal/auth"
	"replied/internal/models"
	"replied/internal/observability"
)

// UsernameState is the tri-state answer to "has this user claimed a username".
type UsernameState int

const (
	UsernameUnknown UsernameState = iota
	UsernamePresent
	UsernameAbsent
)

func (u UsernameState) String() string {
	switch u {
	case UsernamePresent:
		return "present"
	case UsernameAbsent:
		return "absent"
	}
	return "unknown"
}

// ProfileChecker reports whether userID has a profile with a non-empty username.
type ProfileChecker interface {
	HasUsername(ctx context.Context, userID string) (bool, error)
}

// CheckerFunc adapts a function to ProfileChecker.
type CheckerFunc func(ctx context.Context, userID string) (bool, error)

// HasUsername implements ProfileChecker.
func (f CheckerFunc) HasUsername(ctx context.Context, userID string) (bool, error) {
	return f(ctx, userID)
}

// State is a snapshot of the resolver.
type State struct {
	Loaded   bool
	Session  *models.Session
	Username UsernameState
}

// Authenticated reports whether a session is present.
func (s State) Authenticated() bool {
	return s.Session != nil
}

// UserID is empty when signed out.
func (s State) UserID() string {
	return s.Session.UserID()
}

// Settled reports whether both the session and the username are known.
func (s State) Settled() bool {
	if !s.Loaded {
		return false
	}
	return !s.Authenticated() || s.Username != UsernameUnknown
}

// Resolver tracks one viewer's session and username for as long as it is
// open. It is passed explicitly to each consumer.
type Resolver struct {
	provider auth.Provider
	checker  ProfileChecker
	log      *observability.ComponentLogger

	mu          sync.Mutex
	state       State
	gen         uint64
	changed     chan struct{}
	unsubscribe func()
	closed      bool
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewResolver returns a resolver; call Start before reading it.
func NewResolver(provider auth.Provider, checker ProfileChecker) *Resolver {
	return &Resolver{
		provider: provider,
		checker:  checker,
		log:      observability.For("session"),
		changed:  make(chan struct{}),
	}
}

// Start reads the current session and subscribes to auth changes. A failed
// session read leaves the viewer unauthenticated.
func (r *Resolver) Start(ctx context.Context) {
	r.mu.Lock()
	if r.ctx != nil {
		r.mu.Unlock()
		return
	}
	r.ctx, r.cancel = context.WithCancel(context.WithoutCancel(ctx))
	r.mu.Unlock()

	unsubscribe := r.provider.OnAuthStateChange(r.onAuthEvent)
	r.mu.Lock()
	r.unsubscribe = unsubscribe
	r.mu.Unlock()

	sess, err := r.provider.Session(ctx)
	if err != nil {
		r.log.Warn(ctx, "session read failed, treating viewer as signed out", map[string]any{"error": err.Error()})
		sess = nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.Loaded {
		// An auth event already settled the session.
		return
	}
	r.state.Loaded = true
	r.applyLocked(sess, true)
}

func (r *Resolver) onAuthEvent(event models.AuthEvent, sess *models.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.state.Loaded = true
	if event == models.EventSignedOut {
		sess = nil
	}
	r.applyLocked(sess, event == models.EventSignedIn)
}

// applyLocked installs sess and starts a username check when the user changed.
func (r *Resolver) applyLocked(sess *models.Session, recheck bool) {
	prevUser := r.state.UserID()
	r.state.Session = sess

	switch {
	case sess == nil:
		r.gen++
		r.state.Username = UsernameAbsent
	case recheck || sess.UserID() != prevUser || r.state.Username == UsernameUnknown:
		r.gen++
		r.state.Username = UsernameUnknown
		go r.checkUsername(r.gen, sess.UserID())
	}
	r.broadcastLocked()
}

func (r *Resolver) checkUsername(gen uint64, userID string) {
	ok, err := r.checker.HasUsername(r.ctx, userID)
	if err != nil {
		r.log.Warn(r.ctx, "username lookup failed", map[string]any{"error": err.Error()})
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || gen != r.gen {
		return
	}
	if err == nil && ok {
		r.state.Username = UsernamePresent
	} else {
		r.state.Username = UsernameAbsent
	}
	r.broadcastLocked()
}

func (r *Resolver) broadcastLocked() {
	close(r.changed)
	r.changed = make(chan struct{})
}

// State returns the current snapshot.
func (r *Resolver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Changed returns a channel closed at the next state change.
func (r *Resolver) Changed() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.changed
}

// Wait blocks until the state is settled or ctx ends.
func (r *Resolver) Wait(ctx context.Context) (State, error) {
	for {
		r.mu.Lock()
		st, ch := r.state, r.changed
		r.mu.Unlock()
		if st.Settled() {
			return st, nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return st, ctx.Err()
		}
	}
}

// MarkUsernamePresent records a successful username claim.
func (r *Resolver) MarkUsernamePresent() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.Session == nil {
		return
	}
	r.gen++
	r.state.Username = UsernamePresent
	r.broadcastLocked()
}

// SignOut clears the provider session and the resolver's identity.
func (r *Resolver) SignOut(ctx context.Context) error {
	err := r.provider.SignOut(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.Loaded = true
	r.gen++
	r.state.Session = nil
	r.state.Username = UsernameAbsent
	r.broadcastLocked()
	return err
}

// Close unsubscribes from the provider. The last state stays readable.
func (r *Resolver) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.gen++
	if r.cancel != nil {
		r.cancel()
	}
	unsubscribe := r.unsubscribe
	r.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}
