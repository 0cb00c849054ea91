package auth

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"replied/internal/models"
	"replied/internal/observability"

	"github.com/redis/go-redis/v9"
)

// SessionChannel is the pub/sub channel carrying a browser session's events.
func SessionChannel(sid string) string {
	return "auth:session:" + sid
}

type eventEnvelope struct {
	Event models.AuthEvent `json:"event"`
}

// RedisProvider is the Provider for one browser session. Session data lives
// in the sealed Store; events travel over Redis pub/sub so every shell
// replica serving the browser observes them. Event payloads carry only the
// event name; listeners reload the session from the Store.
type RedisProvider struct {
	sid    string
	store  *Store
	rdb    *redis.Client
	gotrue *GoTrue
	now    func() time.Time
}

// NewRedisProvider binds a provider to the browser session sid.
func NewRedisProvider(sid string, store *Store, rdb *redis.Client, gotrue *GoTrue) *RedisProvider {
	return &RedisProvider{sid: sid, store: store, rdb: rdb, gotrue: gotrue, now: time.Now}
}

// SessionID returns the browser session id.
func (p *RedisProvider) SessionID() string {
	return p.sid
}

func (p *RedisProvider) refresher() Refresher {
	if p.gotrue == nil {
		return nil
	}
	return p.gotrue
}

// Session implements Provider.
func (p *RedisProvider) Session(ctx context.Context) (*models.Session, error) {
	current, err := p.store.Load(ctx, p.sid)
	if err != nil || current == nil {
		return nil, err
	}

	sess, refreshed, err := refreshIfDue(ctx, p.refresher(), current, p.now())
	if err != nil {
		_ = p.store.Delete(ctx, p.sid)
		return nil, err
	}
	if refreshed {
		if err := p.store.Save(ctx, p.sid, sess); err != nil {
			return nil, err
		}
		p.publish(ctx, models.EventTokenRefreshed)
	}
	return sess, nil
}

// Complete stores a freshly exchanged session and emits SIGNED_IN.
func (p *RedisProvider) Complete(ctx context.Context, sess *models.Session) error {
	if err := p.store.Save(ctx, p.sid, sess); err != nil {
		return err
	}
	p.publish(ctx, models.EventSignedIn)
	return nil
}

// SignOut implements Provider. Provider-side revocation is best effort; the
// local session is always cleared.
func (p *RedisProvider) SignOut(ctx context.Context) error {
	if sess, _ := p.store.Load(ctx, p.sid); sess != nil && p.gotrue != nil {
		if err := p.gotrue.SignOut(ctx, sess.AccessToken); err != nil {
			observability.For("auth").Warn(ctx, "provider sign-out failed", map[string]any{"error": err.Error()})
		}
	}
	if err := p.store.Delete(ctx, p.sid); err != nil {
		return err
	}
	p.publish(ctx, models.EventSignedOut)
	return nil
}

func (p *RedisProvider) publish(ctx context.Context, event models.AuthEvent) {
	payload, _ := json.Marshal(eventEnvelope{Event: event})
	if err := p.rdb.Publish(ctx, SessionChannel(p.sid), payload).Err(); err != nil {
		observability.For("auth").Error(ctx, "publish auth event", err, map[string]any{"event": string(event)})
	}
}

// OnAuthStateChange implements Provider. The subscription is confirmed
// before it returns, so an event published afterwards is never missed.
func (p *RedisProvider) OnAuthStateChange(fn Listener) func() {
	ctx := context.Background()
	pubsub := p.rdb.Subscribe(ctx, SessionChannel(p.sid))
	if _, err := pubsub.Receive(ctx); err != nil {
		observability.For("auth").Error(ctx, "subscribe auth events", err, map[string]any{"sid": p.sid})
	}

	var closed atomic.Bool
	go func() {
		for msg := range pubsub.Channel() {
			if closed.Load() {
				return
			}
			var env eventEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				continue
			}
			var sess *models.Session
			if env.Event != models.EventSignedOut {
				loaded, err := p.store.Load(ctx, p.sid)
				if err != nil {
					continue
				}
				sess = loaded
			}
			if !closed.Load() {
				fn(env.Event, sess)
			}
		}
	}()

	// Safe to call from inside fn.
	var once sync.Once
	return func() {
		once.Do(func() {
			closed.Store(true)
			_ = pubsub.Close()
		})
	}
}
