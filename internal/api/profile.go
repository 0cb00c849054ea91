package api

import (
	"context"
	"net/http"
	"net/url"

	"replied/internal/models"
)

// PublicProfile fetches a profile and its published conversations.
// token may be empty; when present the backend fills in the viewer's
// like/bookmark flags.
func (c *Client) PublicProfile(ctx context.Context, token, username string) (*models.PublicProfile, error) {
	var out models.PublicProfile
	err := c.do(ctx, call{
		method:   http.MethodGet,
		path:     "/profile/" + url.PathEscape(username),
		endpoint: "/profile/:username",
		token:    token,
		out:      &out,
	})
	if err != nil {
		return nil, err
	}
	if out.Messages == nil {
		out.Messages = []models.Message{}
	}
	return &out, nil
}

// OwnProfile fetches the signed-in user's profile including private settings.
func (c *Client) OwnProfile(ctx context.Context, token string) (*models.Profile, error) {
	if err := requireToken(token); err != nil {
		return nil, err
	}
	var out models.Profile
	if err := c.do(ctx, call{method: http.MethodGet, path: "/profile", endpoint: "/profile", token: token, out: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateProfile commits the batched profile fields.
func (c *Client) UpdateProfile(ctx context.Context, token string, update models.ProfileUpdate) error {
	if err := requireToken(token); err != nil {
		return err
	}
	return c.do(ctx, call{method: http.MethodPut, path: "/profile", endpoint: "/profile", token: token, body: update})
}

// SetPaused stores the inbox pause flag.
func (c *Client) SetPaused(ctx context.Context, token string, paused bool) error {
	if err := requireToken(token); err != nil {
		return err
	}
	return c.do(ctx, call{
		method:   http.MethodPost,
		path:     "/profile/toggle-pause",
		endpoint: "/profile/toggle-pause",
		token:    token,
		body:     map[string]bool{"is_paused": paused},
	})
}

// SetBlockedPhrases replaces the whole blocked-phrase list.
func (c *Client) SetBlockedPhrases(ctx context.Context, token string, phrases []string) error {
	if err := requireToken(token); err != nil {
		return err
	}
	if phrases == nil {
		phrases = []string{}
	}
	return c.do(ctx, call{
		method:   http.MethodPost,
		path:     "/profile/blocked-phrases",
		endpoint: "/profile/blocked-phrases",
		token:    token,
		body:     map[string][]string{"phrases": phrases},
	})
}

// DeleteAccount irreversibly removes the signed-in user's account.
func (c *Client) DeleteAccount(ctx context.Context, token string) error {
	if err := requireToken(token); err != nil {
		return err
	}
	return c.do(ctx, call{method: http.MethodDelete, path: "/profile", endpoint: "/profile", token: token})
}
