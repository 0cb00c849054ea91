// Package models contains the client-visible shapes returned by the backend
// and the errors the client reports about them.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MessageStatus is the lifecycle state of a message in its receiver's inbox.
type MessageStatus string

const (
	// MessageStatusPending is a message waiting for the receiver.
	MessageStatusPending MessageStatus = "pending"
	// MessageStatusReplied is a message with a published reply.
	MessageStatusReplied MessageStatus = "replied"
	// MessageStatusArchived is a message the receiver silenced.
	MessageStatusArchived MessageStatus = "archived"
	// MessageStatusReported is a message flagged for review.
	MessageStatusReported MessageStatus = "reported"
)

// Reply is the receiver's published answer to a message.
type Reply struct {
	ID        string    `json:"id,omitempty"`
	MessageID string    `json:"message_id,omitempty"`
	SenderID  string    `json:"sender_id,omitempty"`
	Content   string    `json:"content"`
	CreatedAt Timestamp `json:"created_at"`
}

// ReactionState is the viewer's like/bookmark flags plus aggregate counts.
type ReactionState struct {
	IsLiked        bool `json:"is_liked"`
	LikesCount     int  `json:"likes_count"`
	IsBookmarked   bool `json:"is_bookmarked"`
	BookmarksCount int  `json:"bookmarks_count"`
}

// Message is one anonymous message. Reply is always zero-or-one regardless
// of how the backend encoded it.
type Message struct {
	ID         string        `json:"id"`
	Content    string        `json:"content"`
	CreatedAt  Timestamp     `json:"created_at"`
	Status     MessageStatus `json:"status,omitempty"`
	SenderID   string        `json:"sender_id,omitempty"`
	ReceiverID string        `json:"receiver_id,omitempty"`
	ThreadID   string        `json:"thread_id,omitempty"`
	Reply      *Reply        `json:"reply,omitempty"`
	ReactionState

	// Receiver is set on feed and collection items.
	Receiver *Profile `json:"receiver,omitempty"`
}

type messageAlias Message

type messageWire struct {
	*messageAlias
	SenderID   *string         `json:"sender_id"`
	ThreadID   *string         `json:"thread_id"`
	Replies    json.RawMessage `json:"replies"`
	Profiles   json.RawMessage `json:"profiles"`
	LikesAgg   json.RawMessage `json:"likes"`
	BookmarkAg json.RawMessage `json:"bookmarks"`
}

// UnmarshalJSON normalizes the backend's loose message encoding: nullable
// sender/thread ids, a replies field that is null, an object or a list, and
// an embedded receiver profile under "profiles".
func (m *Message) UnmarshalJSON(data []byte) error {
	wire := messageWire{messageAlias: (*messageAlias)(m)}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	if wire.SenderID != nil {
		m.SenderID = *wire.SenderID
	}
	if wire.ThreadID != nil {
		m.ThreadID = *wire.ThreadID
	}

	if m.Reply == nil {
		reply, err := NormalizeReply(wire.Replies)
		if err != nil {
			return fmt.Errorf("message %s: %w", m.ID, err)
		}
		m.Reply = reply
	}

	if isPresent(wire.Profiles) && m.Receiver == nil {
		var receiver Profile
		if err := json.Unmarshal(wire.Profiles, &receiver); err == nil {
			m.Receiver = &receiver
		}
	}

	if m.LikesCount == 0 {
		m.LikesCount = aggregateCount(wire.LikesAgg)
	}
	if m.BookmarksCount == 0 {
		m.BookmarksCount = aggregateCount(wire.BookmarkAg)
	}
	return nil
}

// NormalizeReply turns a raw replies value into at most one reply.
func NormalizeReply(raw json.RawMessage) (*Reply, error) {
	raw = bytes.TrimSpace(raw)
	if !isPresent(raw) {
		return nil, nil
	}

	switch raw[0] {
	case '[':
		var replies []Reply
		if err := json.Unmarshal(raw, &replies); err != nil {
			return nil, fmt.Errorf("decode replies list: %w", err)
		}
		if len(replies) == 0 {
			return nil, nil
		}
		return &replies[0], nil
	case '{':
		var reply Reply
		if err := json.Unmarshal(raw, &reply); err != nil {
			return nil, fmt.Errorf("decode reply: %w", err)
		}
		return &reply, nil
	}
	return nil, fmt.Errorf("unexpected replies encoding %q", string(raw))
}

// aggregateCount reads a PostgREST count aggregate: [{"count": n}].
func aggregateCount(raw json.RawMessage) int {
	if !isPresent(raw) {
		return 0
	}
	var agg []struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(raw, &agg); err != nil || len(agg) == 0 {
		return 0
	}
	return agg[0].Count
}

func isPresent(raw json.RawMessage) bool {
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}

// HasReply reports whether the message carries a published reply.
func (m Message) HasReply() bool {
	return m.Reply != nil
}

// Thread is a derived grouping of messages sharing a thread key, oldest first.
type Thread struct {
	Key         string    `json:"key"`
	Messages    []Message `json:"messages"`
	CanFollowUp bool      `json:"can_follow_up"`
}

// Root is the chronologically first message.
func (t Thread) Root() Message {
	return t.Messages[0]
}

// FollowUps are the messages after the root.
func (t Thread) FollowUps() []Message {
	return t.Messages[1:]
}

// LastActivity is the newest created_at across the thread.
func (t Thread) LastActivity() Timestamp {
	return t.Messages[len(t.Messages)-1].CreatedAt
}

// SendRequest is the body of POST /send.
type SendRequest struct {
	ReceiverID string `json:"receiver_id"`
	Content    string `json:"content"`
	ThreadID   string `json:"thread_id,omitempty"`
}

// ReplyRequest is the body of POST /reply.
type ReplyRequest struct {
	MessageID string `json:"message_id"`
	Content   string `json:"content"`
}

// StatusResponse is the backend's generic {"status": "..."} acknowledgement.
type StatusResponse struct {
	Status string `json:"status"`
}
