package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"replied/internal/models"
)

func (c *Client) messageList(ctx context.Context, token, path string) ([]models.Message, error) {
	if err := requireToken(token); err != nil {
		return nil, err
	}
	out := []models.Message{}
	if err := c.do(ctx, call{method: http.MethodGet, path: path, endpoint: path, token: token, out: &out}); err != nil {
		return nil, err
	}
	if out == nil {
		out = []models.Message{}
	}
	return out, nil
}

// Inbox lists pending messages for the signed-in receiver, newest first.
func (c *Client) Inbox(ctx context.Context, token string) ([]models.Message, error) {
	return c.messageList(ctx, token, "/inbox")
}

// History lists replied and archived messages.
func (c *Client) History(ctx context.Context, token string) ([]models.Message, error) {
	return c.messageList(ctx, token, "/history")
}

// Bookmarks lists messages the viewer bookmarked.
func (c *Client) Bookmarks(ctx context.Context, token string) ([]models.Message, error) {
	return c.messageList(ctx, token, "/bookmarks")
}

// Likes lists messages the viewer liked.
func (c *Client) Likes(ctx context.Context, token string) ([]models.Message, error) {
	return c.messageList(ctx, token, "/likes")
}

// Send submits a message. An empty token sends anonymously.
func (c *Client) Send(ctx context.Context, token string, req models.SendRequest) error {
	return c.do(ctx, call{method: http.MethodPost, path: "/send", endpoint: "/send", token: token, body: req})
}

// Reply publishes the receiver's reply to a message.
func (c *Client) Reply(ctx context.Context, token string, req models.ReplyRequest) (*models.Reply, error) {
	if err := requireToken(token); err != nil {
		return nil, err
	}
	var out struct {
		Status string          `json:"status"`
		Reply  json.RawMessage `json:"reply"`
	}
	if err := c.do(ctx, call{method: http.MethodPost, path: "/reply", endpoint: "/reply", token: token, body: req, out: &out}); err != nil {
		return nil, err
	}
	reply, err := models.NormalizeReply(out.Reply)
	if err != nil || reply == nil {
		// The reply was published; only the echo is unusable.
		return &models.Reply{MessageID: req.MessageID, Content: req.Content}, nil
	}
	return reply, nil
}

// Archive silences a pending message.
func (c *Client) Archive(ctx context.Context, token, messageID string) error {
	if err := requireToken(token); err != nil {
		return err
	}
	return c.do(ctx, call{
		method:   http.MethodPost,
		path:     "/messages/" + url.PathEscape(messageID) + "/archive",
		endpoint: "/messages/:id/archive",
		token:    token,
	})
}

// DeleteMessage permanently deletes a message.
func (c *Client) DeleteMessage(ctx context.Context, token, messageID string) error {
	if err := requireToken(token); err != nil {
		return err
	}
	return c.do(ctx, call{
		method:   http.MethodDelete,
		path:     "/messages/" + url.PathEscape(messageID),
		endpoint: "/messages/:id",
		token:    token,
	})
}

// Report flags a message for review.
func (c *Client) Report(ctx context.Context, token, messageID string) error {
	if err := requireToken(token); err != nil {
		return err
	}
	return c.do(ctx, call{
		method:   http.MethodPost,
		path:     "/report",
		endpoint: "/report",
		token:    token,
		body:     map[string]string{"message_id": messageID},
	})
}

// SetLiked creates (on) or deletes the viewer's like.
func (c *Client) SetLiked(ctx context.Context, token, messageID string, on bool) error {
	return c.reaction(ctx, token, messageID, "like", on)
}

// SetBookmarked creates (on) or deletes the viewer's bookmark.
func (c *Client) SetBookmarked(ctx context.Context, token, messageID string, on bool) error {
	return c.reaction(ctx, token, messageID, "bookmark", on)
}

func (c *Client) reaction(ctx context.Context, token, messageID, kind string, on bool) error {
	if err := requireToken(token); err != nil {
		return err
	}
	method := http.MethodPost
	if !on {
		method = http.MethodDelete
	}
	return c.do(ctx, call{
		method:   method,
		path:     "/messages/" + url.PathEscape(messageID) + "/" + kind,
		endpoint: "/messages/:id/" + kind,
		token:    token,
	})
}
