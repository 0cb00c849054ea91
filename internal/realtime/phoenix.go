// Package realtime subscribes to new-message inserts through the auth
// provider's realtime service, which speaks Phoenix channel framing over a
// WebSocket.
package realtime

import (
	"encoding/json"
	"strconv"
	"sync/atomic"
)

// Phoenix channel events.
const (
	eventJoin      = "phx_join"
	eventLeave     = "phx_leave"
	eventReply     = "phx_reply"
	eventError     = "phx_error"
	eventClose     = "phx_close"
	eventHeartbeat = "heartbeat"
	eventChanges   = "postgres_changes"

	heartbeatTopic = "phoenix"
)

// frame is one Phoenix message.
type frame struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref,omitempty"`
}

type replyPayload struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

type changeFilter struct {
	Event  string `json:"event"`
	Schema string `json:"schema"`
	Table  string `json:"table"`
	Filter string `json:"filter,omitempty"`
}

type joinConfig struct {
	Broadcast struct {
		Self bool `json:"self"`
	} `json:"broadcast"`
	Presence struct {
		Key string `json:"key"`
	} `json:"presence"`
	PostgresChanges []changeFilter `json:"postgres_changes"`
}

type joinPayload struct {
	Config      joinConfig `json:"config"`
	AccessToken string     `json:"access_token,omitempty"`
}

// changePayload covers both the current {data: {...}} envelope and the
// older flat one.
type changePayload struct {
	Data *changeData `json:"data"`
	changeData
}

type changeData struct {
	Type   string          `json:"type"`
	Schema string          `json:"schema"`
	Table  string          `json:"table"`
	Record json.RawMessage `json:"record"`
}

func (p changePayload) change() changeData {
	if p.Data != nil {
		return *p.Data
	}
	return p.changeData
}

type refCounter struct{ n atomic.Uint64 }

func (r *refCounter) next() string {
	return strconv.FormatUint(r.n.Add(1), 10)
}

// InboxTopic is the channel a user's inbox subscription joins.
func InboxTopic(userID string) string {
	return "realtime:inbox-" + userID
}
