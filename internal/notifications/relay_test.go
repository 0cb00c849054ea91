package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"replied/internal/controller"
	"replied/internal/flash"
	"replied/internal/models"
	"replied/internal/realtime"
	"replied/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStream struct {
	done   chan struct{}
	once   sync.Once
	closed int32
}

func newFakeStream() *fakeStream { return &fakeStream{done: make(chan struct{})} }

func (s *fakeStream) Done() <-chan struct{} { return s.done }

func (s *fakeStream) Close() error {
	atomic.AddInt32(&s.closed, 1)
	s.drop()
	return nil
}

func (s *fakeStream) drop() { s.once.Do(func() { close(s.done) }) }

type fakeRealtime struct {
	mu       sync.Mutex
	calls    int
	err      error
	handlers map[string]realtime.InsertHandler
	streams  map[string]*fakeStream
	tokens   map[string]string
}

func newFakeRealtime() *fakeRealtime {
	return &fakeRealtime{
		handlers: map[string]realtime.InsertHandler{},
		streams:  map[string]*fakeStream{},
		tokens:   map[string]string{},
	}
}

func (f *fakeRealtime) subscribe(_ context.Context, token, userID string, onInsert realtime.InsertHandler) (Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	s := newFakeStream()
	f.handlers[userID] = onInsert
	f.streams[userID] = s
	f.tokens[userID] = token
	return s, nil
}

func (f *fakeRealtime) insert(userID string, m models.Message) {
	f.mu.Lock()
	h := f.handlers[userID]
	f.mu.Unlock()
	h(m)
}

func (f *fakeRealtime) stream(userID string) *fakeStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streams[userID]
}

func (f *fakeRealtime) subscribeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type published struct {
	userID string
	event  Event
	raw    string
}

func collect() (PublishFunc, func() []published) {
	var mu sync.Mutex
	var out []published
	return func(_ context.Context, userID, payload string) error {
			var ev Event
			if err := json.Unmarshal([]byte(payload), &ev); err != nil {
				return err
			}
			mu.Lock()
			out = append(out, published{userID: userID, event: ev, raw: payload})
			mu.Unlock()
			return nil
		}, func() []published {
			mu.Lock()
			defer mu.Unlock()
			return append([]published(nil), out...)
		}
}

func TestRelay_EnsureSubscribesOncePerUser(t *testing.T) {
	rt := newFakeRealtime()
	publish, _ := collect()
	relay := NewRelay(rt.subscribe, publish)
	sess := testutil.Session()

	require.NoError(t, relay.Ensure(context.Background(), sess))
	require.NoError(t, relay.Ensure(context.Background(), sess))

	assert.Equal(t, 1, rt.subscribeCount())
	assert.True(t, relay.Active(sess.UserID()))
	assert.Equal(t, sess.AccessToken, rt.tokens[sess.UserID()])
}

func TestRelay_EnsureRequiresSession(t *testing.T) {
	relay := NewRelay(newFakeRealtime().subscribe, func(context.Context, string, string) error { return nil })
	err := relay.Ensure(context.Background(), nil)
	assert.True(t, models.IsKind(err, models.KindUnauthenticated))
}

func TestRelay_ForwardsNewPendingMessagesOnce(t *testing.T) {
	rt := newFakeRealtime()
	publish, events := collect()
	relay := NewRelay(rt.subscribe, publish)
	sess := testutil.Session()
	uid := sess.UserID()
	require.NoError(t, relay.Ensure(context.Background(), sess))

	m := testutil.Message(uid, time.Minute)
	rt.insert(uid, m)
	rt.insert(uid, m)
	rt.insert(uid, testutil.Message("someone-else", 2*time.Minute))
	rt.insert(uid, testutil.Message(uid, 3*time.Minute, testutil.Replied))

	got := events()
	require.Len(t, got, 1)
	assert.Equal(t, uid, got[0].userID)
	assert.Equal(t, EventNewMessage, got[0].event.Type)
	assert.Contains(t, got[0].raw, m.ID)
	require.Len(t, got[0].event.Notices, 1)
	assert.Equal(t, flash.LevelInfo, got[0].event.Notices[0].Level)
	assert.Equal(t, controller.MsgNewMessage, got[0].event.Notices[0].Text)
}

func TestRelay_ReleaseClosesStream(t *testing.T) {
	rt := newFakeRealtime()
	publish, _ := collect()
	relay := NewRelay(rt.subscribe, publish)
	sess := testutil.Session()
	require.NoError(t, relay.Ensure(context.Background(), sess))

	relay.Release(sess.UserID())
	relay.Release(sess.UserID())

	assert.False(t, relay.Active(sess.UserID()))
	assert.Equal(t, int32(1), atomic.LoadInt32(&rt.stream(sess.UserID()).closed))
}

func TestRelay_DroppedStreamResubscribes(t *testing.T) {
	rt := newFakeRealtime()
	publish, _ := collect()
	relay := NewRelay(rt.subscribe, publish)
	sess := testutil.Session()
	require.NoError(t, relay.Ensure(context.Background(), sess))

	rt.stream(sess.UserID()).drop()
	assert.Eventually(t, func() bool { return !relay.Active(sess.UserID()) }, time.Second, 5*time.Millisecond)

	require.NoError(t, relay.Ensure(context.Background(), sess))
	assert.Equal(t, 2, rt.subscribeCount())
}

func TestRelay_SubscribeFailureLeavesNoEntry(t *testing.T) {
	rt := newFakeRealtime()
	rt.err = errors.New("dial refused")
	publish, _ := collect()
	relay := NewRelay(rt.subscribe, publish)
	sess := testutil.Session()

	assert.Error(t, relay.Ensure(context.Background(), sess))
	assert.False(t, relay.Active(sess.UserID()))
}

func TestRelay_OfflineReleasesThroughPresence(t *testing.T) {
	rt := newFakeRealtime()
	hub := NewHub()
	hub.presence.SetOfflineGracePeriod(10 * time.Millisecond)
	defer func() { _ = hub.Shutdown(context.Background()) }()

	relay := NewRelay(rt.subscribe, Deliver(hub, NewNotifier(nil)))
	relay.Attach(hub)
	sess := testutil.Session()
	uid := sess.UserID()

	client, err := hub.Register(uid, nil)
	require.NoError(t, err)
	require.NoError(t, relay.Ensure(context.Background(), sess))

	rt.insert(uid, testutil.Message(uid, time.Minute))
	select {
	case msg := <-client.Send:
		assert.Contains(t, string(msg), `"type":"new_message"`)
	case <-time.After(time.Second):
		t.Fatal("event not delivered to local socket")
	}

	hub.UnregisterClient(client)
	assert.Eventually(t, func() bool { return !relay.Active(uid) }, time.Second, 5*time.Millisecond)
}

func TestRelay_DeliverThroughRedis(t *testing.T) {
	rdb := newRedis(t)
	n := NewNotifier(rdb)
	hub := NewHub(rdb)
	defer func() { _ = hub.Shutdown(context.Background()) }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, hub.StartWiring(ctx, n))

	rt := newFakeRealtime()
	relay := NewRelay(rt.subscribe, Deliver(hub, n))
	sess := testutil.Session()
	uid := sess.UserID()

	client, err := hub.Register(uid, nil)
	require.NoError(t, err)
	require.NoError(t, relay.Ensure(ctx, sess))

	m := testutil.Message(uid, time.Minute)
	rt.insert(uid, m)
	select {
	case msg := <-client.Send:
		assert.Contains(t, string(msg), m.ID)
	case <-time.After(time.Second):
		t.Fatal("event not delivered through redis")
	}

	relay.Close()
	assert.False(t, relay.Active(uid))
}
