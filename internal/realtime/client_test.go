package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"replied/internal/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRealtime struct {
	t        *testing.T
	rejoin   bool
	mu       sync.Mutex
	frames   []frame
	query    string
	conns    chan *websocket.Conn
	upgrader websocket.Upgrader
}

func newFakeRealtime(t *testing.T, reject bool) (*fakeRealtime, *httptest.Server) {
	t.Helper()
	f := &fakeRealtime{t: t, rejoin: reject, conns: make(chan *websocket.Conn, 1)}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeRealtime) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.query = r.URL.RawQuery
	f.mu.Unlock()

	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for {
		var in frame
		if err := conn.ReadJSON(&in); err != nil {
			return
		}
		f.mu.Lock()
		f.frames = append(f.frames, in)
		f.mu.Unlock()

		if in.Event == eventJoin {
			status := "ok"
			if f.rejoin {
				status = "error"
			}
			payload, _ := json.Marshal(replyPayload{Status: status, Response: json.RawMessage(`{}`)})
			_ = conn.WriteJSON(frame{Topic: in.Topic, Event: eventReply, Payload: payload, Ref: in.Ref})
			if !f.rejoin {
				f.conns <- conn
			}
		}
	}
}

func (f *fakeRealtime) events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, fr := range f.frames {
		out = append(out, fr.Topic+"/"+fr.Event)
	}
	return out
}

func insertFrame(topic, id, receiver, status string) frame {
	payload, _ := json.Marshal(map[string]any{
		"ids": []int{1},
		"data": map[string]any{
			"type":   "INSERT",
			"schema": "public",
			"table":  "messages",
			"record": map[string]any{
				"id":          id,
				"content":     "hi",
				"receiver_id": receiver,
				"sender_id":   nil,
				"thread_id":   nil,
				"status":      status,
				"created_at":  "2024-01-01T10:00:00.123456",
			},
		},
	})
	return frame{Topic: topic, Event: eventChanges, Payload: payload}
}

func TestWebsocketURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"https://proj.example", "wss://proj.example/realtime/v1/websocket?apikey=k&vsn=1.0.0"},
		{"http://localhost:54321/", "ws://localhost:54321/realtime/v1/websocket?apikey=k&vsn=1.0.0"},
		{"wss://rt.example/socket/websocket", "wss://rt.example/socket/websocket?apikey=k&vsn=1.0.0"},
	}
	for _, tt := range tests {
		got, err := websocketURL(tt.base, "k")
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
	_, err := websocketURL("ftp://x", "k")
	assert.Error(t, err)
}

func TestSubscribeInbox_DeliversInsertsAndHeartbeats(t *testing.T) {
	fake, srv := newFakeRealtime(t, false)
	client, err := NewClient(srv.URL, "anon", WithHeartbeat(20*time.Millisecond))
	require.NoError(t, err)

	got := make(chan models.Message, 4)
	sub, err := client.SubscribeInbox(context.Background(), "tok", "u1", func(m models.Message) { got <- m })
	require.NoError(t, err)

	conn := <-fake.conns
	require.NoError(t, conn.WriteJSON(insertFrame("realtime:inbox-other", "x", "other", "pending")))
	require.NoError(t, conn.WriteJSON(insertFrame(InboxTopic("u1"), "m1", "u1", "pending")))

	select {
	case m := <-got:
		assert.Equal(t, "m1", m.ID)
		assert.Equal(t, "u1", m.ReceiverID)
		assert.Equal(t, models.MessageStatusPending, m.Status)
		assert.Equal(t, "", m.SenderID)
	case <-time.After(2 * time.Second):
		t.Fatal("insert not delivered")
	}

	assert.Eventually(t, func() bool {
		for _, e := range fake.events() {
			if e == "phoenix/heartbeat" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	assert.NoError(t, sub.Err())
	assert.Eventually(t, func() bool {
		events := fake.events()
		return len(events) > 0 && events[len(events)-1] == "realtime:inbox-u1/phx_leave"
	}, 2*time.Second, 10*time.Millisecond)

	fake.mu.Lock()
	assert.True(t, strings.Contains(fake.query, "apikey=anon"))
	join := fake.frames[0]
	fake.mu.Unlock()
	assert.Equal(t, eventJoin, join.Event)
	assert.Contains(t, string(join.Payload), `"filter":"receiver_id=eq.u1"`)
	assert.Contains(t, string(join.Payload), `"access_token":"tok"`)
	assert.Empty(t, got, "other topics are ignored")
}

func TestSubscribeInbox_JoinRejected(t *testing.T) {
	_, srv := newFakeRealtime(t, true)
	client, err := NewClient(srv.URL, "anon")
	require.NoError(t, err)

	_, err = client.SubscribeInbox(context.Background(), "tok", "u1", func(models.Message) {})
	assert.ErrorIs(t, err, ErrJoinRejected)
}

func TestSubscription_EndsWhenServerDrops(t *testing.T) {
	fake, srv := newFakeRealtime(t, false)
	client, err := NewClient(srv.URL, "anon")
	require.NoError(t, err)

	sub, err := client.SubscribeInbox(context.Background(), "tok", "u1", func(models.Message) {})
	require.NoError(t, err)

	conn := <-fake.conns
	_ = conn.Close()

	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("subscription did not notice the drop")
	}
	assert.Error(t, sub.Err())
	assert.NoError(t, sub.Close())
}
