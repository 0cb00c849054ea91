package session

import (
	"context"
	"sync"
	"time"

	"replied/internal/auth"
	"replied/internal/models"
	"replied/internal/observability"
)

// DefaultCallbackWait is how long the post-OAuth callback waits for sign-in.
const DefaultCallbackWait = 4 * time.Second

// SignInWait is the one time-bounded wait in the client: after the OAuth
// callback it waits for the first SIGNED_IN event and decides exactly once.
type SignInWait struct {
	done     chan struct{}
	navigate func(target string)

	mu          sync.Mutex
	decided     bool
	target      string
	timer       *time.Timer
	unsubscribe func()
}

// StartSignInWait subscribes to p before returning, so a sign-in completed
// afterwards is always observed. navigate (may be nil) is invoked exactly
// once with the decided target.
func StartSignInWait(ctx context.Context, p auth.Provider, wait time.Duration, navigate func(target string)) *SignInWait {
	w := &SignInWait{done: make(chan struct{}), navigate: navigate}

	unsubscribe := p.OnAuthStateChange(func(event models.AuthEvent, sess *models.Session) {
		if event == models.EventSignedIn && sess != nil {
			w.decide(InboxPath)
		}
	})
	timer := time.AfterFunc(wait, func() {
		observability.For("session").Warn(ctx, "sign-in callback timed out", map[string]any{"wait": wait.String()})
		w.decide(AuthFailedPath)
	})

	w.mu.Lock()
	w.unsubscribe = unsubscribe
	w.timer = timer
	decided := w.decided
	w.mu.Unlock()
	if decided {
		// An event won the race with the setup above.
		timer.Stop()
		unsubscribe()
		return w
	}

	if sess, err := p.Session(ctx); err == nil && sess != nil {
		w.decide(InboxPath)
	}
	return w
}

func (w *SignInWait) decide(target string) {
	w.mu.Lock()
	if w.decided {
		w.mu.Unlock()
		return
	}
	w.decided = true
	w.target = target
	timer, unsubscribe := w.timer, w.unsubscribe
	w.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	if unsubscribe != nil {
		unsubscribe()
	}
	observability.SessionRedirects.WithLabelValues(target).Inc()
	if w.navigate != nil {
		w.navigate(target)
	}
	close(w.done)
}

// Done is closed once the wait has decided.
func (w *SignInWait) Done() <-chan struct{} {
	return w.done
}

// Result blocks until the wait decides. If ctx ends first the attempt is
// treated as failed.
func (w *SignInWait) Result(ctx context.Context) string {
	select {
	case <-w.done:
	case <-ctx.Done():
		w.decide(AuthFailedPath)
		<-w.done
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.target
}

// AwaitSignIn runs a SignInWait to completion and returns the redirect target.
func AwaitSignIn(ctx context.Context, p auth.Provider, wait time.Duration) string {
	return StartSignInWait(ctx, p, wait, nil).Result(ctx)
}
