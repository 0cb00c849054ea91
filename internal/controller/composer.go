package controller

import (
	"context"
	"strings"
	"sync"
	"unicode/utf8"

	"replied/internal/flash"
	"replied/internal/models"
	"replied/internal/observability"
	"replied/internal/thread"
)

// MaxMessageLength is the longest message or reply accepted, in characters.
const MaxMessageLength = 500

// Validation messages shared by the composer and the inbox reply box.
const (
	MsgEmpty   = "Message cannot be empty"
	MsgTooLong = "Message must be 500 characters or fewer"
	MsgBusy    = "Already sending"
	MsgSent    = "Message sent! It will appear if replied to."

	MsgThreadNotFound = "That thread is no longer on this profile"
	MsgNotThreadOwner = "Only the person who started this thread can follow up"
)

// ComposerState is the submit lifecycle.
type ComposerState int

const (
	ComposerIdle ComposerState = iota
	ComposerSending
)

// Sender submits anonymous messages.
type Sender interface {
	Send(ctx context.Context, token string, req models.SendRequest) error
}

// ValidateContent trims content and checks it against the message rules.
func ValidateContent(content string) (string, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", models.NewValidationError(MsgEmpty)
	}
	if utf8.RuneCountInString(trimmed) > MaxMessageLength {
		return "", models.NewValidationError(MsgTooLong)
	}
	return trimmed, nil
}

// Composer is the message box on a public profile.
type Composer struct {
	api        Sender
	viewer     *models.Session
	receiverID string
	sink       flash.Sink
	log        *observability.ComponentLogger

	mu       sync.Mutex
	state    ComposerState
	input    string
	threadID string
}

// NewComposer returns an idle composer addressed to receiverID. viewer may
// be nil for anonymous senders.
func NewComposer(api Sender, viewer *models.Session, receiverID string, sink flash.Sink) *Composer {
	return &Composer{
		api:        api,
		viewer:     viewer,
		receiverID: receiverID,
		sink:       sink,
		log:        observability.For("composer"),
	}
}

// SetInput replaces the draft.
func (c *Composer) SetInput(s string) {
	c.mu.Lock()
	c.input = s
	c.mu.Unlock()
}

// Input is the current draft.
func (c *Composer) Input() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.input
}

// ReplyTo binds the next submission to t. Only the viewer who sent the
// thread's root message may follow up; anyone else is refused locally.
func (c *Composer) ReplyTo(t models.Thread) error {
	if !t.CanFollowUp {
		err := models.NewValidationError(MsgNotThreadOwner)
		flash.Error(c.sink, MsgNotThreadOwner)
		return err
	}
	c.mu.Lock()
	c.threadID = t.Key
	c.mu.Unlock()
	return nil
}

// ReplyIn binds the next submission to the thread keyed key among threads.
func (c *Composer) ReplyIn(threads []models.Thread, key string) error {
	t, ok := thread.Find(threads, key)
	if !ok {
		flash.Error(c.sink, MsgThreadNotFound)
		return models.NewValidationError(MsgThreadNotFound)
	}
	return c.ReplyTo(t)
}

// CancelReply leaves thread mode.
func (c *Composer) CancelReply() {
	c.mu.Lock()
	c.threadID = ""
	c.mu.Unlock()
}

// ThreadID is the bound thread, empty when composing a new message.
func (c *Composer) ThreadID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.threadID
}

// State reports whether a submission is in flight.
func (c *Composer) State() ComposerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Submit sends the draft. Validation failures never reach the network. On
// success the draft and thread binding are cleared; on failure both are kept.
func (c *Composer) Submit(ctx context.Context) error {
	c.mu.Lock()
	if c.state == ComposerSending {
		c.mu.Unlock()
		return models.NewValidationError(MsgBusy)
	}
	content, err := ValidateContent(c.input)
	if err != nil {
		c.mu.Unlock()
		flash.Error(c.sink, models.UserMessage(err))
		return err
	}
	req := models.SendRequest{ReceiverID: c.receiverID, Content: content, ThreadID: c.threadID}
	c.state = ComposerSending
	c.mu.Unlock()

	err = c.api.Send(ctx, c.viewer.Token(), req)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = ComposerIdle
	if err != nil {
		if !models.IsKind(err, models.KindStale) {
			c.log.Warn(ctx, "send failed", withErr(map[string]any{"receiver_id": c.receiverID}, err))
			flash.Error(c.sink, models.UserMessage(err))
		}
		return err
	}
	c.input = ""
	c.threadID = ""
	flash.Success(c.sink, MsgSent)
	return nil
}
