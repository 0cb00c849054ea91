package server

import (
	"encoding/json"
	"sync/atomic"

	"replied/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

type socketError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// upgradeInbox rejects plain HTTP and hands the resolved viewer to the socket.
func (s *Server) upgradeInbox(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	c.Locals(localViewer, viewer(c))
	return c.Next()
}

// inboxSocket streams new-message events to the viewer. The user's realtime
// subscription is opened on the first socket; it is released once the user
// has no sockets left, immediately when this browser session signs out.
func (s *Server) inboxSocket() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		sess, _ := conn.Locals(localViewer).(*models.Session)
		sid, _ := conn.Locals(localSID).(string)
		uid := sess.UserID()
		ctx := s.shutdownCtx

		client, err := s.hub.Register(uid, conn)
		if err != nil {
			s.writeSocketError(conn, err.Error())
			_ = conn.Close()
			return
		}

		if s.relay != nil {
			if err := s.relay.Ensure(ctx, sess); err != nil {
				client.TrySend(socketErrorFrame(models.UserMessage(err)))
			}
		}

		var signedOut atomic.Bool
		unsubscribe := s.provider(sid).OnAuthStateChange(func(event models.AuthEvent, _ *models.Session) {
			if event == models.EventSignedOut {
				signedOut.Store(true)
				_ = conn.Close()
			}
		})
		defer unsubscribe()

		go client.WritePump()
		client.ReadPump()

		if signedOut.Load() && s.relay != nil && s.hub.Connections(uid) == 0 {
			s.relay.Release(uid)
		}
	})
}

func socketErrorFrame(msg string) []byte {
	b, _ := json.Marshal(socketError{Type: "error", Message: msg})
	return b
}

func (s *Server) writeSocketError(conn *websocket.Conn, msg string) {
	_ = conn.WriteMessage(websocket.TextMessage, socketErrorFrame(msg))
}

// hubDelivery reports whether events reach sockets through Redis fan-out.
func (s *Server) hubDelivery() string {
	if s.notifier.Enabled() {
		return "redis"
	}
	return "local"
}
