package controller

import (
	"context"
	"slices"
	"sync"

	"replied/internal/flash"
	"replied/internal/models"
	"replied/internal/observability"
)

// Inbox notices.
const (
	MsgInboxFailed   = "Failed to fetch inbox"
	MsgHistoryFailed = "Failed to fetch history"
	MsgPublished     = "Replied and published!"
	MsgArchived      = "Message archived"
	MsgDeleted       = "Message deleted"
	MsgReported      = "Message reported"
	MsgNewMessage    = "New message received!"
)

// InboxAPI is the receiver-side slice of the backend API.
type InboxAPI interface {
	Inbox(ctx context.Context, token string) ([]models.Message, error)
	History(ctx context.Context, token string) ([]models.Message, error)
	Reply(ctx context.Context, token string, req models.ReplyRequest) (*models.Reply, error)
	Archive(ctx context.Context, token, messageID string) error
	DeleteMessage(ctx context.Context, token, messageID string) error
	Report(ctx context.Context, token, messageID string) error
}

// Inbox holds the viewer's pending messages and history. Actions remove the
// message from the pending list once the backend confirms.
type Inbox struct {
	api    InboxAPI
	viewer *models.Session
	sink   flash.Sink
	log    *observability.ComponentLogger

	mu      sync.Mutex
	pending []models.Message
	history []models.Message
}

// NewInbox returns an empty inbox for viewer.
func NewInbox(api InboxAPI, viewer *models.Session, sink flash.Sink) *Inbox {
	return &Inbox{
		api:     api,
		viewer:  viewer,
		sink:    sink,
		log:     observability.For("inbox"),
		pending: []models.Message{},
		history: []models.Message{},
	}
}

// Load fetches the pending messages.
func (in *Inbox) Load(ctx context.Context) []models.Message {
	out, err := in.api.Inbox(ctx, in.viewer.Token())
	if err != nil {
		in.failed(ctx, "fetch inbox", err, MsgInboxFailed)
		return in.Pending()
	}
	in.mu.Lock()
	in.pending = out
	in.mu.Unlock()
	return in.Pending()
}

// LoadHistory fetches replied and archived messages.
func (in *Inbox) LoadHistory(ctx context.Context) []models.Message {
	out, err := in.api.History(ctx, in.viewer.Token())
	if err != nil {
		in.failed(ctx, "fetch history", err, MsgHistoryFailed)
		return in.History()
	}
	in.mu.Lock()
	in.history = out
	in.mu.Unlock()
	return in.History()
}

// Pending snapshots the pending list, newest first.
func (in *Inbox) Pending() []models.Message {
	in.mu.Lock()
	defer in.mu.Unlock()
	return slices.Clone(in.pending)
}

// History snapshots the history list.
func (in *Inbox) History() []models.Message {
	in.mu.Lock()
	defer in.mu.Unlock()
	return slices.Clone(in.history)
}

// Receive prepends a realtime insert when it is a pending message for the
// viewer not already listed. It reports whether the list changed.
func (in *Inbox) Receive(m models.Message) bool {
	if m.Status != "" && m.Status != models.MessageStatusPending {
		return false
	}
	if m.ReceiverID != "" && m.ReceiverID != in.viewer.UserID() {
		return false
	}

	in.mu.Lock()
	if slices.ContainsFunc(in.pending, func(p models.Message) bool { return p.ID == m.ID }) {
		in.mu.Unlock()
		return false
	}
	in.pending = append([]models.Message{m}, in.pending...)
	in.mu.Unlock()

	flash.Info(in.sink, MsgNewMessage)
	return true
}

// Publish replies to a pending message, making the pair public.
func (in *Inbox) Publish(ctx context.Context, messageID, content string) (*models.Reply, error) {
	content, err := ValidateContent(content)
	if err != nil {
		flash.Error(in.sink, models.UserMessage(err))
		return nil, err
	}
	reply, err := in.api.Reply(ctx, in.viewer.Token(), models.ReplyRequest{MessageID: messageID, Content: content})
	if err != nil {
		in.failed(ctx, "publish reply", err, "")
		return nil, err
	}
	in.remove(messageID)
	flash.Success(in.sink, MsgPublished)
	return reply, nil
}

// Archive silences a pending message without replying.
func (in *Inbox) Archive(ctx context.Context, messageID string) error {
	return in.act(ctx, "archive", messageID, in.api.Archive, MsgArchived)
}

// Delete removes a message permanently.
func (in *Inbox) Delete(ctx context.Context, messageID string) error {
	return in.act(ctx, "delete", messageID, in.api.DeleteMessage, MsgDeleted)
}

// Report flags a message for review.
func (in *Inbox) Report(ctx context.Context, messageID string) error {
	return in.act(ctx, "report", messageID, in.api.Report, MsgReported)
}

func (in *Inbox) act(ctx context.Context, action, messageID string, fn func(context.Context, string, string) error, ok string) error {
	if err := fn(ctx, in.viewer.Token(), messageID); err != nil {
		in.failed(ctx, action, err, "")
		return err
	}
	in.remove(messageID)
	flash.Success(in.sink, ok)
	return nil
}

func (in *Inbox) remove(messageID string) {
	match := func(m models.Message) bool { return m.ID == messageID }
	in.mu.Lock()
	in.pending = slices.DeleteFunc(in.pending, match)
	in.history = slices.DeleteFunc(in.history, match)
	in.mu.Unlock()
}

func (in *Inbox) failed(ctx context.Context, action string, err error, text string) {
	if models.IsKind(err, models.KindStale) {
		return
	}
	in.log.Warn(ctx, action+" failed", withErr(nil, err))
	if text == "" || models.IsKind(err, models.KindStatus) {
		text = models.UserMessage(err)
	}
	flash.Error(in.sink, text)
}
