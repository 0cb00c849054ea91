package api

import (
	"context"
	"net/http"
	"net/url"

	"replied/internal/models"
)

// Friends lists accepted friendships.
func (c *Client) Friends(ctx context.Context, token string) ([]models.Friendship, error) {
	if err := requireToken(token); err != nil {
		return nil, err
	}
	out := []models.Friendship{}
	if err := c.do(ctx, call{method: http.MethodGet, path: "/friends/list", endpoint: "/friends/list", token: token, out: &out}); err != nil {
		return nil, err
	}
	if out == nil {
		out = []models.Friendship{}
	}
	return out, nil
}

// FriendRequests lists pending incoming requests.
func (c *Client) FriendRequests(ctx context.Context, token string) ([]models.FriendRequest, error) {
	if err := requireToken(token); err != nil {
		return nil, err
	}
	out := []models.FriendRequest{}
	if err := c.do(ctx, call{method: http.MethodGet, path: "/friends/requests", endpoint: "/friends/requests", token: token, out: &out}); err != nil {
		return nil, err
	}
	if out == nil {
		out = []models.FriendRequest{}
	}
	return out, nil
}

// FriendsFeed lists recent published conversations of friends.
func (c *Client) FriendsFeed(ctx context.Context, token string) ([]models.Message, error) {
	return c.messageList(ctx, token, "/friends/feed")
}

// RequestFriend sends a friend request to receiverID.
func (c *Client) RequestFriend(ctx context.Context, token, receiverID string) error {
	if err := requireToken(token); err != nil {
		return err
	}
	return c.do(ctx, call{
		method:   http.MethodPost,
		path:     "/friends/request",
		endpoint: "/friends/request",
		token:    token,
		body:     map[string]string{"receiver_id": receiverID},
	})
}

// AcceptFriend accepts the pending request requestID.
func (c *Client) AcceptFriend(ctx context.Context, token, requestID string) error {
	if err := requireToken(token); err != nil {
		return err
	}
	return c.do(ctx, call{
		method:   http.MethodPost,
		path:     "/friends/accept",
		endpoint: "/friends/accept",
		token:    token,
		body:     map[string]string{"request_id": requestID},
	})
}

// Unfriend deletes a friendship.
func (c *Client) Unfriend(ctx context.Context, token, friendshipID string) error {
	if err := requireToken(token); err != nil {
		return err
	}
	return c.do(ctx, call{
		method:   http.MethodDelete,
		path:     "/friends/" + url.PathEscape(friendshipID),
		endpoint: "/friends/:id",
		token:    token,
	})
}

// SearchUsers searches the directory by partial username.
func (c *Client) SearchUsers(ctx context.Context, token, query string) ([]models.SearchUser, error) {
	if err := requireToken(token); err != nil {
		return nil, err
	}
	out := []models.SearchUser{}
	err := c.do(ctx, call{
		method:   http.MethodGet,
		path:     "/users/search?q=" + url.QueryEscape(query),
		endpoint: "/users/search",
		token:    token,
		out:      &out,
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []models.SearchUser{}
	}
	return out, nil
}
