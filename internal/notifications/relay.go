package notifications

import (
	"context"
	"encoding/json"
	"sync"

	"replied/internal/controller"
	"replied/internal/flash"
	"replied/internal/models"
	"replied/internal/observability"
	"replied/internal/realtime"
)

// Event types sent to browser sockets.
const (
	EventNewMessage      = "new_message"
	EventMessagesDropped = "messages_dropped"
)

// Event is the JSON frame a browser socket receives.
type Event struct {
	Type    string         `json:"type"`
	Payload any            `json:"payload"`
	Notices []flash.Notice `json:"notices,omitempty"`
}

// Stream is an open realtime inbox subscription.
type Stream interface {
	Done() <-chan struct{}
	Close() error
}

// SubscribeFunc opens a realtime inbox subscription for userID.
type SubscribeFunc func(ctx context.Context, token, userID string, onInsert realtime.InsertHandler) (Stream, error)

// RealtimeSubscriber adapts a realtime client to a SubscribeFunc.
func RealtimeSubscriber(c *realtime.Client) SubscribeFunc {
	return func(ctx context.Context, token, userID string, onInsert realtime.InsertHandler) (Stream, error) {
		sub, err := c.SubscribeInbox(ctx, token, userID, onInsert)
		if err != nil {
			return nil, err
		}
		return sub, nil
	}
}

// PublishFunc delivers one encoded event to userID's sockets.
type PublishFunc func(ctx context.Context, userID, payload string) error

// Deliver publishes through Redis when the notifier has a client and straight
// to the local hub otherwise.
func Deliver(hub *Hub, n *Notifier) PublishFunc {
	return func(ctx context.Context, userID, payload string) error {
		if n != nil && n.Enabled() {
			return n.PublishUser(ctx, userID, payload)
		}
		hub.Broadcast(userID, payload)
		return nil
	}
}

type relayEntry struct {
	stream Stream
	inbox  *controller.Inbox
	rec    *flash.Recorder
}

// Relay holds at most one realtime subscription per online user and turns
// each insert into a new_message event for that user's sockets.
type Relay struct {
	subscribe SubscribeFunc
	publish   PublishFunc
	locks     *controller.KeyedMutex
	log       *observability.ComponentLogger

	mu      sync.Mutex
	entries map[string]*relayEntry
}

// NewRelay creates an empty Relay.
func NewRelay(subscribe SubscribeFunc, publish PublishFunc) *Relay {
	return &Relay{
		subscribe: subscribe,
		publish:   publish,
		locks:     controller.NewKeyedMutex(),
		log:       observability.For("inbox-relay"),
		entries:   make(map[string]*relayEntry),
	}
}

// Attach wires the relay to hub presence: the last socket going offline
// releases the user's subscription.
func (r *Relay) Attach(hub *Hub) {
	hub.SetPresenceCallbacks(nil, r.Release)
}

// Active reports whether userID currently has a subscription.
func (r *Relay) Active(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[userID]
	return ok
}

// Ensure subscribes sess's user unless a subscription is already open.
func (r *Relay) Ensure(ctx context.Context, sess *models.Session) error {
	userID := sess.UserID()
	if userID == "" {
		return models.NewUnauthenticatedError("realtime inbox requires a session")
	}

	unlock, err := r.locks.Lock(ctx, userID)
	if err != nil {
		return err
	}
	defer unlock()

	if r.Active(userID) {
		return nil
	}

	rec := flash.NewRecorder()
	entry := &relayEntry{
		rec:   rec,
		inbox: controller.NewInbox(nil, &models.Session{User: sess.User}, rec),
	}

	stream, err := r.subscribe(ctx, sess.Token(), userID, func(m models.Message) {
		r.forward(userID, entry, m)
	})
	if err != nil {
		r.log.Error(ctx, "realtime subscribe failed", err, map[string]any{"user_id": userID})
		return err
	}
	entry.stream = stream

	r.mu.Lock()
	r.entries[userID] = entry
	r.mu.Unlock()

	go r.watch(userID, entry)
	return nil
}

func (r *Relay) forward(userID string, entry *relayEntry, m models.Message) {
	if !entry.inbox.Receive(m) {
		return
	}
	body, err := json.Marshal(Event{Type: EventNewMessage, Payload: m, Notices: entry.rec.Drain()})
	if err != nil {
		r.log.Error(context.Background(), "encode inbox event", err, map[string]any{"user_id": userID})
		return
	}
	if err := r.publish(context.Background(), userID, string(body)); err != nil {
		r.log.Error(context.Background(), "publish inbox event", err, map[string]any{"user_id": userID})
	}
}

// watch drops the entry when the server side ends the stream so the next
// Ensure resubscribes.
func (r *Relay) watch(userID string, entry *relayEntry) {
	<-entry.stream.Done()

	r.mu.Lock()
	current, ok := r.entries[userID]
	if !ok || current != entry {
		r.mu.Unlock()
		return
	}
	delete(r.entries, userID)
	r.mu.Unlock()

	r.log.Warn(context.Background(), "realtime stream ended", map[string]any{"user_id": userID})
}

// Release closes userID's subscription if one is open.
func (r *Relay) Release(userID string) {
	unlock, err := r.locks.Lock(context.Background(), userID)
	if err != nil {
		return
	}
	defer unlock()

	r.mu.Lock()
	entry, ok := r.entries[userID]
	delete(r.entries, userID)
	r.mu.Unlock()

	if !ok {
		return
	}
	if err := entry.stream.Close(); err != nil {
		r.log.Warn(context.Background(), "realtime close", map[string]any{"user_id": userID, "error": err.Error()})
	}
}

// Close releases every subscription.
func (r *Relay) Close() {
	r.mu.Lock()
	users := make([]string, 0, len(r.entries))
	for userID := range r.entries {
		users = append(users, userID)
	}
	r.mu.Unlock()

	for _, userID := range users {
		r.Release(userID)
	}
}
