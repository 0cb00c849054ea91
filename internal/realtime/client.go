package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"replied/internal/models"
	"replied/internal/observability"

	"github.com/gorilla/websocket"
)

// DefaultHeartbeat is how often the connection is kept alive.
const DefaultHeartbeat = 25 * time.Second

// ErrJoinRejected means the realtime service refused the channel join.
var ErrJoinRejected = errors.New("realtime: join rejected")

// InsertHandler receives each new message inserted for the subscriber.
type InsertHandler func(models.Message)

// Client dials the realtime service.
type Client struct {
	endpoint  string
	apiKey    string
	heartbeat time.Duration
	dialer    *websocket.Dialer
	log       *observability.ComponentLogger
}

// Option configures a Client.
type Option func(*Client)

// WithHeartbeat overrides DefaultHeartbeat.
func WithHeartbeat(d time.Duration) Option {
	return func(c *Client) { c.heartbeat = d }
}

// NewClient returns a client for the realtime service at baseURL
// (http(s) or ws(s); the websocket path is appended when missing).
func NewClient(baseURL, apiKey string, opts ...Option) (*Client, error) {
	endpoint, err := websocketURL(baseURL, apiKey)
	if err != nil {
		return nil, err
	}
	c := &Client{
		endpoint:  endpoint,
		apiKey:    apiKey,
		heartbeat: DefaultHeartbeat,
		dialer:    websocket.DefaultDialer,
		log:       observability.For("realtime"),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func websocketURL(base, apiKey string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("realtime url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("realtime url: unsupported scheme %q", u.Scheme)
	}
	if !strings.HasSuffix(u.Path, "/websocket") {
		u.Path = strings.TrimRight(u.Path, "/") + "/realtime/v1/websocket"
	}
	q := u.Query()
	if apiKey != "" {
		q.Set("apikey", apiKey)
	}
	q.Set("vsn", "1.0.0")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// SubscribeInbox joins userID's inbox channel and calls onInsert for every
// new message addressed to them until the subscription is closed or the
// connection drops.
func (c *Client) SubscribeInbox(ctx context.Context, token, userID string, onInsert InsertHandler) (*Subscription, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("realtime dial: %w", err)
	}

	s := &Subscription{
		conn:     conn,
		topic:    InboxTopic(userID),
		onInsert: onInsert,
		done:     make(chan struct{}),
		log:      c.log,
	}

	join := joinPayload{AccessToken: token}
	join.Config.PostgresChanges = []changeFilter{{
		Event:  "INSERT",
		Schema: "public",
		Table:  "messages",
		Filter: "receiver_id=eq." + userID,
	}}
	joinRef, err := s.send(s.topic, eventJoin, join)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := s.awaitJoin(ctx, joinRef); err != nil {
		_ = conn.Close()
		return nil, err
	}

	observability.RealtimeSubscriptions.Inc()
	c.log.Info(ctx, "inbox subscribed", map[string]any{"topic": s.topic})

	s.wg.Add(2)
	go s.readLoop()
	go s.heartbeatLoop(c.heartbeat)
	return s, nil
}

// Subscription is one joined inbox channel. It is the only long-lived
// resource the client holds and must be closed on teardown or sign-out.
type Subscription struct {
	conn     *websocket.Conn
	topic    string
	onInsert InsertHandler
	refs     refCounter
	log      *observability.ComponentLogger

	writeMu sync.Mutex
	wg      sync.WaitGroup

	closeOnce sync.Once
	done      chan struct{}
	errMu     sync.Mutex
	err       error
}

func (s *Subscription) send(topic, event string, payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	ref := s.refs.next()
	f := frame{Topic: topic, Event: event, Payload: body, Ref: ref}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := s.conn.WriteJSON(f); err != nil {
		return "", fmt.Errorf("realtime write %s: %w", event, err)
	}
	return ref, nil
}

func (s *Subscription) awaitJoin(ctx context.Context, ref string) error {
	deadline := time.Now().Add(10 * time.Second)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = s.conn.SetReadDeadline(deadline)
	defer func() { _ = s.conn.SetReadDeadline(time.Time{}) }()

	for {
		var f frame
		if err := s.conn.ReadJSON(&f); err != nil {
			return fmt.Errorf("realtime join: %w", err)
		}
		if f.Event != eventReply || f.Ref != ref {
			continue
		}
		var reply replyPayload
		if err := json.Unmarshal(f.Payload, &reply); err != nil {
			return fmt.Errorf("realtime join reply: %w", err)
		}
		if reply.Status != "ok" {
			return fmt.Errorf("%w: %s", ErrJoinRejected, string(reply.Response))
		}
		return nil
	}
}

func (s *Subscription) readLoop() {
	defer s.wg.Done()
	for {
		var f frame
		if err := s.conn.ReadJSON(&f); err != nil {
			s.shutdown(err)
			return
		}
		switch {
		case f.Topic != s.topic:
		case f.Event == eventChanges || f.Event == "INSERT":
			s.deliver(f.Payload)
		case f.Event == eventError || f.Event == eventClose:
			s.shutdown(fmt.Errorf("realtime: channel %s", f.Event))
			return
		}
	}
}

func (s *Subscription) deliver(raw json.RawMessage) {
	var p changePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		s.log.Warn(context.Background(), "undecodable change", map[string]any{"error": err.Error()})
		return
	}
	change := p.change()
	if change.Type != "INSERT" || change.Table != "messages" {
		return
	}
	var m models.Message
	if err := json.Unmarshal(change.Record, &m); err != nil {
		s.log.Warn(context.Background(), "undecodable message record", map[string]any{"error": err.Error()})
		return
	}
	s.onInsert(m)
}

func (s *Subscription) heartbeatLoop(every time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if _, err := s.send(heartbeatTopic, eventHeartbeat, struct{}{}); err != nil {
				s.shutdown(err)
				return
			}
		}
	}
}

// shutdown records the first failure and closes the connection.
func (s *Subscription) shutdown(err error) {
	s.closeOnce.Do(func() {
		s.errMu.Lock()
		s.err = err
		s.errMu.Unlock()
		close(s.done)
		_ = s.conn.Close()
		observability.RealtimeSubscriptions.Dec()
	})
}

// Done is closed once the subscription has ended for any reason.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err is the reason the subscription ended, nil after a clean Close.
func (s *Subscription) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Close leaves the channel and closes the connection. Safe to call more
// than once and after the connection has dropped, but not from inside the
// InsertHandler.
func (s *Subscription) Close() error {
	select {
	case <-s.done:
	default:
		_, _ = s.send(s.topic, eventLeave, struct{}{})
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		s.writeMu.Unlock()
		s.shutdown(nil)
	}
	s.wg.Wait()
	return nil
}
