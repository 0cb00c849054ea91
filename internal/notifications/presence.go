package notifications

import (
	"context"
	"sync"
	"time"

	"replied/internal/observability"

	"github.com/redis/go-redis/v9"
)

const (
	defaultPresenceOnlineSetKey = "inbox:online"
	defaultPresenceLastSeenKey  = "inbox:last_seen:"
	defaultPresenceTTL          = 90 * time.Second
	defaultOfflineGrace         = 5 * time.Second
	defaultReaperInterval       = time.Minute
)

// PresenceConfig overrides the Redis keys and timings; zero values keep the defaults.
type PresenceConfig struct {
	OnlineSetKey       string
	LastSeenKeyPrefix  string
	LastSeenTTL        time.Duration
	OfflineGracePeriod time.Duration
	ReaperInterval     time.Duration
}

// Presence counts a user's inbox sockets on this replica and mirrors
// "has an inbox open somewhere" into Redis. The relay hangs off its
// transitions: online when the first socket opens, offline once the last
// one has been closed for a full grace window.
type Presence struct {
	rdb *redis.Client
	log *observability.ComponentLogger

	onlineSet     string
	lastSeen      string
	ttl           time.Duration
	offlineGrace  time.Duration
	reaperEvery   time.Duration
	onUserOnline  func(userID string)
	onUserOffline func(userID string)

	mu              sync.RWMutex
	local           map[string]int
	pending         map[string]*time.Timer
	offlineNotified map[string]bool

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewPresence creates a tracker; with a Redis client it also starts the
// reaper that clears markers left behind by crashed replicas.
func NewPresence(rdb *redis.Client, cfg PresenceConfig) *Presence {
	p := &Presence{
		rdb:             rdb,
		log:             observability.For("presence"),
		onlineSet:       orDefault(cfg.OnlineSetKey, defaultPresenceOnlineSetKey),
		lastSeen:        orDefault(cfg.LastSeenKeyPrefix, defaultPresenceLastSeenKey),
		ttl:             orDefaultDuration(cfg.LastSeenTTL, defaultPresenceTTL),
		offlineGrace:    orDefaultDuration(cfg.OfflineGracePeriod, defaultOfflineGrace),
		reaperEvery:     orDefaultDuration(cfg.ReaperInterval, defaultReaperInterval),
		local:           make(map[string]int),
		pending:         make(map[string]*time.Timer),
		offlineNotified: make(map[string]bool),
		stopCh:          make(chan struct{}),
	}
	if rdb != nil {
		go p.reaperLoop()
	}
	return p
}

func orDefault(v, d string) string {
	if v == "" {
		return d
	}
	return v
}

func orDefaultDuration(v, d time.Duration) time.Duration {
	if v <= 0 {
		return d
	}
	return v
}

// SetCallbacks replaces the transition callbacks.
func (p *Presence) SetCallbacks(onOnline, onOffline func(userID string)) {
	p.mu.Lock()
	p.onUserOnline, p.onUserOffline = onOnline, onOffline
	p.mu.Unlock()
}

// SetOfflineGracePeriod overrides the grace window.
func (p *Presence) SetOfflineGracePeriod(d time.Duration) {
	if d <= 0 {
		return
	}
	p.mu.Lock()
	p.offlineGrace = d
	p.mu.Unlock()
}

// Stop ends the reaper and cancels pending offline transitions.
func (p *Presence) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
		p.mu.Lock()
		for userID, t := range p.pending {
			t.Stop()
			delete(p.pending, userID)
		}
		p.mu.Unlock()
	})
}

// Register counts one more socket for userID. A socket opened inside the
// grace window cancels the pending offline transition.
func (p *Presence) Register(ctx context.Context, userID string) {
	p.mu.Lock()
	t, reconnect := p.pending[userID]
	if reconnect {
		t.Stop()
		delete(p.pending, userID)
	}
	first := p.local[userID] == 0 && !reconnect
	p.local[userID]++
	p.offlineNotified[userID] = false
	cb := p.onUserOnline
	p.mu.Unlock()

	p.Touch(ctx, userID)
	if first && cb != nil {
		cb(userID)
	}
}

// Touch refreshes userID's marker in Redis.
func (p *Presence) Touch(ctx context.Context, userID string) {
	if p.rdb == nil {
		return
	}
	_, err := p.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, p.onlineSet, userID)
		pipe.SetEx(ctx, p.lastSeen+userID, time.Now().Unix(), p.ttl)
		return nil
	})
	if err != nil {
		p.log.Warn(ctx, "presence touch failed", map[string]any{"user_id": userID, "error": err.Error()})
	}
}

// Unregister counts one fewer socket; the last one starts the grace timer.
func (p *Presence) Unregister(_ context.Context, userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := p.local[userID]; n > 1 {
		p.local[userID] = n - 1
		return
	}
	delete(p.local, userID)

	if t, ok := p.pending[userID]; ok {
		t.Stop()
	}
	p.pending[userID] = time.AfterFunc(p.offlineGrace, func() {
		p.goOffline(context.Background(), userID)
	})
}

// IsOnline reports whether userID has a socket here or a live marker from any replica.
func (p *Presence) IsOnline(ctx context.Context, userID string) bool {
	p.mu.RLock()
	local := p.local[userID] > 0
	p.mu.RUnlock()
	if local || p.rdb == nil {
		return local
	}
	n, err := p.rdb.Exists(ctx, p.lastSeen+userID).Result()
	return err == nil && n > 0
}

func (p *Presence) goOffline(ctx context.Context, userID string) {
	p.mu.Lock()
	delete(p.pending, userID)
	back := p.local[userID] > 0
	p.mu.Unlock()
	if back {
		return
	}

	if p.rdb != nil {
		_, _ = p.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, p.lastSeen+userID)
			pipe.SRem(ctx, p.onlineSet, userID)
			return nil
		})
	}
	p.notifyOffline(userID)
}

// notifyOffline fires the offline callback at most once per online period.
func (p *Presence) notifyOffline(userID string) {
	p.mu.Lock()
	if p.offlineNotified[userID] {
		p.mu.Unlock()
		return
	}
	p.offlineNotified[userID] = true
	cb := p.onUserOffline
	p.mu.Unlock()
	if cb != nil {
		cb(userID)
	}
}

// reapOnce drops online-set members whose marker expired.
func (p *Presence) reapOnce(ctx context.Context) {
	members, err := p.rdb.SMembers(ctx, p.onlineSet).Result()
	if err != nil || len(members) == 0 {
		return
	}

	checks := make([]*redis.IntCmd, len(members))
	_, err = p.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, userID := range members {
			checks[i] = pipe.Exists(ctx, p.lastSeen+userID)
		}
		return nil
	})
	if err != nil {
		return
	}

	for i, userID := range members {
		if checks[i].Val() > 0 {
			continue
		}
		_ = p.rdb.SRem(ctx, p.onlineSet, userID).Err()

		p.mu.RLock()
		local := p.local[userID] > 0
		p.mu.RUnlock()
		if !local {
			p.notifyOffline(userID)
		}
	}
}

func (p *Presence) reaperLoop() {
	ticker := time.NewTicker(p.reaperEvery)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.reapOnce(context.Background())
		}
	}
}
