// Package notifications fans realtime inbox events out to browser websockets.
//
// Each web replica keeps a Hub of local sockets per user. Realtime inserts are
// published to Redis on inbox:user:<id> and every replica forwards them to
// its own sockets, so a user may be connected to any replica.
package notifications

import (
	"context"
	"errors"
	"strings"
	"sync"

	"replied/internal/observability"

	"github.com/gofiber/websocket/v2"
	"github.com/redis/go-redis/v9"
)

const (
	// Max connections per user
	maxConnsPerUser = 12
	// Max total connections
	maxTotalConns = 10000
)

var (
	ErrServerFull = errors.New("server connection limit reached")
	ErrUserFull   = errors.New("user connection limit reached")
)

// Hub maps userID to that user's open inbox sockets.
type Hub struct {
	mu         sync.RWMutex
	conns      map[string]map[*Client]struct{}
	totalConns int
	shutdown   chan struct{}
	done       chan struct{}
	presence   *Presence
	log        *observability.WSLogger
}

// NewHub creates a Hub. Presence is mirrored into Redis when a client is given.
func NewHub(redisClients ...*redis.Client) *Hub {
	var redisClient *redis.Client
	if len(redisClients) > 0 {
		redisClient = redisClients[0]
	}

	h := &Hub{
		conns:    make(map[string]map[*Client]struct{}),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		presence: NewPresence(redisClient, PresenceConfig{}),
	}
	h.log = observability.NewWSLogger(h.Name())
	return h
}

// Name returns a human-readable identifier for this hub.
func (h *Hub) Name() string { return "inbox hub" }

// SetPresenceCallbacks installs the online/offline transition callbacks.
func (h *Hub) SetPresenceCallbacks(onOnline, onOffline func(userID string)) {
	h.presence.SetCallbacks(onOnline, onOffline)
}

// Register a connection for userID. Returns the Client or an error if limits are exceeded.
func (h *Hub) Register(userID string, conn Socket) (*Client, error) {
	h.mu.Lock()

	if h.totalConns >= maxTotalConns {
		h.mu.Unlock()
		return nil, ErrServerFull
	}

	m, ok := h.conns[userID]
	if !ok {
		m = make(map[*Client]struct{})
		h.conns[userID] = m
	}

	if len(m) >= maxConnsPerUser {
		h.mu.Unlock()
		return nil, ErrUserFull
	}

	client := newClient(h, conn, userID, func(uid string) {
		h.presence.Touch(context.Background(), uid)
	})

	m[client] = struct{}{}
	h.totalConns++
	h.mu.Unlock()

	observability.WebSocketConnectionsTotal.Inc()
	h.log.LogConnect(context.Background(), userID)
	h.presence.Register(context.Background(), userID)

	return client, nil
}

// UnregisterClient removes client; the user's last socket starts the offline grace window.
func (h *Hub) UnregisterClient(client *Client) {
	h.mu.Lock()
	removed := false
	if m, ok := h.conns[client.UserID]; ok {
		if _, exists := m[client]; exists {
			delete(m, client)
			h.totalConns--
			removed = true
		}
		if len(m) == 0 {
			delete(h.conns, client.UserID)
		}
	}
	h.mu.Unlock()

	if !removed {
		return
	}
	observability.WebSocketConnectionsTotal.Dec()
	h.log.LogDisconnect(context.Background(), client.UserID, "unregister")
	h.presence.Unregister(context.Background(), client.UserID)
}

// Broadcast sends message to all local connections for userID.
func (h *Hub) Broadcast(userID string, message string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if clients, ok := h.conns[userID]; ok {
		data := []byte(message)
		for c := range clients {
			c.TrySend(data)
		}
	}
}

// Connections reports how many local sockets userID has open.
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID])
}

// IsOnline reports whether a user has an inbox socket on any replica.
func (h *Hub) IsOnline(userID string) bool {
	return h.presence.IsOnline(context.Background(), userID)
}

// Disconnect closes every local socket of userID, e.g. after sign-out.
func (h *Hub) Disconnect(userID string) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.conns[userID]))
	for c := range h.conns[userID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if c.Conn != nil {
			_ = c.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "signed out"))
			_ = c.Conn.Close()
			continue
		}
		h.UnregisterClient(c)
	}
}

// StartWiring subscribes to the Redis inbox pattern and forwards each event
// to the matching local sockets.
func (h *Hub) StartWiring(ctx context.Context, n *Notifier) error {
	return n.StartPatternSubscriber(ctx, func(channel, payload string) {
		userID, ok := strings.CutPrefix(channel, userChannelPrefix)
		if !ok || userID == "" {
			h.log.LogLifecycle(ctx, "invalid_channel", map[string]any{"channel": channel})
			return
		}
		h.Broadcast(userID, payload)
	})
}

// Shutdown gracefully closes all websocket connections
func (h *Hub) Shutdown(ctx context.Context) error {
	select {
	case <-h.shutdown:
		return nil
	default:
	}
	close(h.shutdown)

	h.presence.Stop()

	h.mu.Lock()
	for userID, userConns := range h.conns {
		for client := range userConns {
			if client.Conn == nil {
				continue
			}
			if err := client.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "Server shutting down")); err != nil {
				h.log.LogError(ctx, userID, err, "close_message")
			}
			if err := client.Conn.Close(); err != nil {
				h.log.LogError(ctx, userID, err, "close")
			}
		}
	}
	h.conns = make(map[string]map[*Client]struct{})
	h.totalConns = 0
	h.mu.Unlock()

	close(h.done)
	return nil
}
