package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"replied/internal/auth"
	"replied/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedIn(userID string) *models.Session {
	return &models.Session{
		AccessToken: "tok-" + userID,
		ExpiresAt:   time.Now().Add(time.Hour),
		User:        models.AuthUser{ID: userID},
	}
}

func usernames(known map[string]bool) CheckerFunc {
	return func(_ context.Context, userID string) (bool, error) {
		return known[userID], nil
	}
}

func waitSettled(t *testing.T, r *Resolver) State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	st, err := r.Wait(ctx)
	require.NoError(t, err)
	return st
}

func TestGate(t *testing.T) {
	loaded := func(sess *models.Session, u UsernameState) State {
		return State{Loaded: true, Session: sess, Username: u}
	}
	user := signedIn("u1")

	tests := []struct {
		name  string
		state State
		page  Page
		want  Decision
	}{
		{"Public never redirects", loaded(nil, UsernameAbsent), PagePublic, Decision{}},
		{"Session not loaded", State{}, PageProtected, Decision{Pending: true}},
		{"Unauthenticated protected", loaded(nil, UsernameAbsent), PageProtected, Decision{Redirect: LandingPath}},
		{"Unauthenticated setup", loaded(nil, UsernameAbsent), PageSetup, Decision{Redirect: LandingPath}},
		{"Username unknown waits", loaded(user, UsernameUnknown), PageProtected, Decision{Pending: true}},
		{"No username goes to setup", loaded(user, UsernameAbsent), PageProtected, Decision{Redirect: SetupPath}},
		{"Setup allowed without username", loaded(user, UsernameAbsent), PageSetup, Decision{}},
		{"Setup forwards with username", loaded(user, UsernamePresent), PageSetup, Decision{Redirect: InboxPath}},
		{"Protected allowed", loaded(user, UsernamePresent), PageProtected, Decision{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Gate(tt.state, tt.page)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, !tt.want.Pending && tt.want.Redirect == "", got.Allowed())
		})
	}
}

func TestResolver_InitialStates(t *testing.T) {
	tests := []struct {
		name         string
		session      *models.Session
		sessionErr   error
		known        map[string]bool
		wantAuth     bool
		wantUsername UsernameState
	}{
		{name: "Signed out", wantUsername: UsernameAbsent},
		{name: "Signed in with username", session: signedIn("u1"), known: map[string]bool{"u1": true}, wantAuth: true, wantUsername: UsernamePresent},
		{name: "Signed in without username", session: signedIn("u1"), wantAuth: true, wantUsername: UsernameAbsent},
		{name: "Session read fails closed", session: signedIn("u1"), sessionErr: errors.New("storage down"), wantUsername: UsernameAbsent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := auth.NewMemoryProvider(tt.session, nil)
			if tt.sessionErr != nil {
				p.FailSessions(tt.sessionErr)
			}
			r := NewResolver(p, usernames(tt.known))
			r.Start(context.Background())
			defer r.Close()

			st := waitSettled(t, r)
			assert.Equal(t, tt.wantAuth, st.Authenticated())
			assert.Equal(t, tt.wantUsername, st.Username)
		})
	}
}

func TestResolver_UnknownUntilCheckerAnswers(t *testing.T) {
	release := make(chan struct{})
	checker := CheckerFunc(func(ctx context.Context, _ string) (bool, error) {
		select {
		case <-release:
			return true, nil
		case <-ctx.Done():
			return false, ctx.Err()
		}
	})

	r := NewResolver(auth.NewMemoryProvider(signedIn("u1"), nil), checker)
	r.Start(context.Background())
	defer r.Close()

	st := r.State()
	assert.True(t, st.Loaded)
	assert.Equal(t, UsernameUnknown, st.Username)
	assert.True(t, Gate(st, PageProtected).Pending)

	close(release)
	st = waitSettled(t, r)
	assert.Equal(t, UsernamePresent, st.Username)
	assert.True(t, Gate(st, PageProtected).Allowed())
}

func TestResolver_FollowsAuthEvents(t *testing.T) {
	p := auth.NewMemoryProvider(nil, nil)
	r := NewResolver(p, usernames(map[string]bool{"u1": true}))
	r.Start(context.Background())
	defer r.Close()

	assert.Equal(t, LandingPath, Gate(waitSettled(t, r), PageProtected).Redirect)

	p.SignIn(signedIn("u1"))
	st := waitSettled(t, r)
	assert.Equal(t, "u1", st.UserID())
	assert.True(t, Gate(st, PageProtected).Allowed())

	p.SignIn(signedIn("u2"))
	st = waitSettled(t, r)
	assert.Equal(t, "u2", st.UserID())
	assert.Equal(t, SetupPath, Gate(st, PageProtected).Redirect)

	require.NoError(t, p.SignOut(context.Background()))
	st = waitSettled(t, r)
	assert.False(t, st.Authenticated())
}

func TestResolver_SignOutClearsStateAndRedirects(t *testing.T) {
	p := auth.NewMemoryProvider(signedIn("u1"), nil)
	r := NewResolver(p, usernames(map[string]bool{"u1": true}))
	r.Start(context.Background())
	defer r.Close()

	require.True(t, Gate(waitSettled(t, r), PageProtected).Allowed())

	require.NoError(t, r.SignOut(context.Background()))
	st := r.State()
	assert.False(t, st.Authenticated())
	assert.Equal(t, "", st.UserID())
	assert.Equal(t, LandingPath, Gate(st, PageProtected).Redirect)

	sess, err := p.Session(context.Background())
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestResolver_CloseUnsubscribes(t *testing.T) {
	p := auth.NewMemoryProvider(nil, nil)
	r := NewResolver(p, usernames(nil))
	r.Start(context.Background())
	assert.Equal(t, 1, p.ListenerCount())

	r.Close()
	r.Close()
	assert.Equal(t, 0, p.ListenerCount())

	p.SignIn(signedIn("u1"))
	assert.False(t, r.State().Authenticated())
}

func TestResolver_MarkUsernamePresent(t *testing.T) {
	r := NewResolver(auth.NewMemoryProvider(signedIn("u1"), nil), usernames(nil))
	r.Start(context.Background())
	defer r.Close()

	assert.Equal(t, SetupPath, Gate(waitSettled(t, r), PageProtected).Redirect)
	r.MarkUsernamePresent()
	assert.Equal(t, InboxPath, Gate(r.State(), PageSetup).Redirect)
}

func TestAwaitSignIn_SignedInEventRedirectsToInbox(t *testing.T) {
	p := auth.NewMemoryProvider(nil, nil)

	var navigations []string
	var mu sync.Mutex
	w := StartSignInWait(context.Background(), p, time.Second, func(target string) {
		mu.Lock()
		navigations = append(navigations, target)
		mu.Unlock()
	})

	go p.SignIn(signedIn("u1"))

	assert.Equal(t, InboxPath, w.Result(context.Background()))
	assert.Equal(t, 0, p.ListenerCount())

	// A second event after the decision is ignored.
	p.SignIn(signedIn("u1"))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{InboxPath}, navigations)
}

func TestAwaitSignIn_TimeoutDecidesExactlyOnce(t *testing.T) {
	p := auth.NewMemoryProvider(nil, nil)

	var calls atomic.Int32
	var last atomic.Value
	w := StartSignInWait(context.Background(), p, 50*time.Millisecond, func(target string) {
		calls.Add(1)
		last.Store(target)
	})

	select {
	case <-w.Done():
	case <-time.After(time.Second):
		t.Fatal("wait never decided")
	}
	assert.Equal(t, AuthFailedPath, last.Load())
	assert.Equal(t, 0, p.ListenerCount(), "listener must be unsubscribed")

	// A late sign-in neither navigates again nor changes the result.
	p.SignIn(signedIn("u1"))
	assert.Never(t, func() bool { return calls.Load() != 1 }, 100*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, AuthFailedPath, w.Result(context.Background()))
}

func TestAwaitSignIn_ExistingSession(t *testing.T) {
	p := auth.NewMemoryProvider(signedIn("u1"), nil)
	assert.Equal(t, InboxPath, AwaitSignIn(context.Background(), p, time.Second))
	assert.Equal(t, 0, p.ListenerCount())
}

func TestAwaitSignIn_ContextCancelledFails(t *testing.T) {
	p := auth.NewMemoryProvider(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, AuthFailedPath, AwaitSignIn(ctx, p, time.Hour))
	assert.Equal(t, 0, p.ListenerCount())
}
