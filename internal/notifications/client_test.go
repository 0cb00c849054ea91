package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frame struct {
	kind int
	data []byte
}

// fakeSocket replays inbound frames and records outbound ones.
type fakeSocket struct {
	mu      sync.Mutex
	inbound chan []byte
	written []frame
	pong    func(string) error
	closed  bool
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{inbound: make(chan []byte, 8)}
}

func (f *fakeSocket) ReadMessage() (int, []byte, error) {
	msg, ok := <-f.inbound
	if !ok {
		return 0, nil, errors.New("closed")
	}
	return websocket.TextMessage, msg, nil
}

func (f *fakeSocket) WriteMessage(kind int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("closed")
	}
	f.written = append(f.written, frame{kind: kind, data: append([]byte(nil), data...)})
	return nil
}

func (f *fakeSocket) SetReadLimit(int64)                 {}
func (f *fakeSocket) SetReadDeadline(time.Time) error    { return nil }
func (f *fakeSocket) SetWriteDeadline(time.Time) error   { return nil }
func (f *fakeSocket) SetPongHandler(h func(string) error) { f.pong = h }

func (f *fakeSocket) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeSocket) frames() []frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]frame(nil), f.written...)
}

func TestClient_WritePumpFlushesQueueThenCloses(t *testing.T) {
	hub := NewHub()
	sock := newFakeSocket()
	c, err := hub.Register("alice", sock)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		c.WritePump()
		close(done)
	}()

	c.TrySend([]byte(`{"type":"new_message"}`))
	close(c.Send)
	<-done

	got := sock.frames()
	require.Len(t, got, 2)
	assert.Equal(t, websocket.TextMessage, got[0].kind)
	assert.JSONEq(t, `{"type":"new_message"}`, string(got[0].data))
	assert.Equal(t, websocket.CloseMessage, got[1].kind)
}

func TestClient_ReadPumpTouchesPresenceAndUnregisters(t *testing.T) {
	hub := NewHub()
	sock := newFakeSocket()
	c, err := hub.Register("alice", sock)
	require.NoError(t, err)
	assert.Equal(t, 1, hub.Connections("alice"))

	var touches int
	c.onActivity = func(string) { touches++ }

	done := make(chan struct{})
	go func() {
		c.ReadPump()
		close(done)
	}()

	sock.inbound <- []byte("ping")
	close(sock.inbound)
	<-done

	require.NotNil(t, sock.pong)
	require.NoError(t, sock.pong(""))
	assert.Equal(t, 2, touches)
	assert.Equal(t, 0, hub.Connections("alice"))
	assert.True(t, sock.closed)
	_ = hub.Shutdown(context.Background())
}

func TestClient_DroppedFrameIsAnEvent(t *testing.T) {
	var ev Event
	require.NoError(t, json.Unmarshal(droppedFrame, &ev))
	assert.Equal(t, EventMessagesDropped, ev.Type)
}

func TestHub_DisconnectClosesSockets(t *testing.T) {
	hub := NewHub()
	sock := newFakeSocket()
	_, err := hub.Register("alice", sock)
	require.NoError(t, err)

	hub.Disconnect("alice")

	got := sock.frames()
	require.Len(t, got, 1)
	assert.Equal(t, websocket.CloseMessage, got[0].kind)
	assert.True(t, sock.closed)
	_ = hub.Shutdown(context.Background())
}
