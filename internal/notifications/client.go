package notifications

import (
	"context"
	"encoding/json"
	"time"

	"replied/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// The inbox socket is push-only; browsers send at most keepalives.
	maxInboundFrame = 512
	sendBuffer      = 64
)

// Socket is the part of a websocket connection a Client drives.
// *websocket.Conn satisfies it.
type Socket interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Client is one open inbox socket of a signed-in user.
type Client struct {
	UserID string
	// Conn is nil for clients registered without a socket in tests.
	Conn Socket
	// Send queues encoded events for WritePump.
	Send chan []byte

	hub        *Hub
	onActivity func(userID string)
	log        *observability.WSLogger
}

func newClient(hub *Hub, conn Socket, userID string, onActivity func(string)) *Client {
	return &Client{
		UserID:     userID,
		Conn:       conn,
		Send:       make(chan []byte, sendBuffer),
		hub:        hub,
		onActivity: onActivity,
		log:        hub.log,
	}
}

// ReadPump consumes inbound frames until the socket fails, then unregisters
// the client. Pongs and keepalives count as presence activity.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.UnregisterClient(c)
		_ = c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxInboundFrame)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		c.touch()
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.LogError(context.Background(), c.UserID, err, "read")
			}
			return
		}
		c.touch()
	}
}

func (c *Client) touch() {
	if c.onActivity != nil {
		c.onActivity(c.UserID)
	}
}

// WritePump writes queued events and periodic pings. It returns when Send
// is closed or a write fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// droppedFrame tells the browser it missed events and should reload the inbox.
var droppedFrame, _ = json.Marshal(Event{
	Type:    EventMessagesDropped,
	Payload: map[string]string{"reason": "buffer_full"},
})

// TrySend queues frame without blocking. When the buffer is full the frame
// is dropped and a messages_dropped event is queued instead, if room remains.
func (c *Client) TrySend(frame []byte) {
	defer func() {
		// Send was closed by a concurrent unregister.
		if recover() != nil {
			observability.WebSocketBackpressureDrops.WithLabelValues(c.hub.Name(), "closed").Inc()
		}
	}()

	select {
	case c.Send <- frame:
		return
	default:
	}

	observability.WebSocketBackpressureDrops.WithLabelValues(c.hub.Name(), "full").Inc()
	c.log.LogLifecycle(context.Background(), "buffer_full", map[string]any{"user_id": c.UserID})
	select {
	case c.Send <- droppedFrame:
	default:
	}
}
