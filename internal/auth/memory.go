package auth

import (
	"context"
	"sync"
	"time"

	"replied/internal/models"
)

// MemoryProvider holds one session in process. The CLI and tests use it.
type MemoryProvider struct {
	mu        sync.Mutex
	sess      *models.Session
	failWith  error
	refresher Refresher
	now       func() time.Time
	listeners listeners
}

// NewMemoryProvider returns a provider holding sess (may be nil).
func NewMemoryProvider(sess *models.Session, r Refresher) *MemoryProvider {
	return &MemoryProvider{sess: sess, refresher: r, now: time.Now}
}

// Session implements Provider.
func (p *MemoryProvider) Session(ctx context.Context) (*models.Session, error) {
	p.mu.Lock()
	if p.failWith != nil {
		err := p.failWith
		p.mu.Unlock()
		return nil, err
	}
	current := p.sess
	p.mu.Unlock()

	sess, refreshed, err := refreshIfDue(ctx, p.refresher, current, p.now())
	if err != nil {
		return nil, err
	}
	if refreshed {
		p.mu.Lock()
		p.sess = sess
		p.mu.Unlock()
		p.listeners.emit(models.EventTokenRefreshed, sess)
	}
	return sess, nil
}

// SignIn stores sess and emits SIGNED_IN.
func (p *MemoryProvider) SignIn(sess *models.Session) {
	p.mu.Lock()
	p.sess = sess
	p.mu.Unlock()
	p.listeners.emit(models.EventSignedIn, sess)
}

// SignOut implements Provider.
func (p *MemoryProvider) SignOut(_ context.Context) error {
	p.mu.Lock()
	p.sess = nil
	p.mu.Unlock()
	p.listeners.emit(models.EventSignedOut, nil)
	return nil
}

// FailSessions makes Session return err until called with nil.
func (p *MemoryProvider) FailSessions(err error) {
	p.mu.Lock()
	p.failWith = err
	p.mu.Unlock()
}

// OnAuthStateChange implements Provider.
func (p *MemoryProvider) OnAuthStateChange(fn Listener) func() {
	return p.listeners.add(fn)
}

// ListenerCount reports how many listeners are registered.
func (p *MemoryProvider) ListenerCount() int {
	return p.listeners.count()
}
