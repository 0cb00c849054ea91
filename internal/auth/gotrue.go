package auth

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"replied/internal/models"
	"replied/internal/observability"
)

// Refresher rotates an access token.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*models.Session, error)
}

// GoTrue talks to a GoTrue-compatible auth service.
type GoTrue struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
	now        func() time.Time
}

// NewGoTrue returns a client for the auth service rooted at baseURL.
func NewGoTrue(baseURL, anonKey string, timeout time.Duration) *GoTrue {
	return &GoTrue{
		baseURL:    baseURL,
		anonKey:    anonKey,
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
}

// NewVerifier returns a fresh PKCE code verifier.
func NewVerifier() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Challenge is the S256 PKCE challenge for verifier.
func Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// AuthorizeURL is where the browser goes to sign in with Google.
func (g *GoTrue) AuthorizeURL(redirectTo, verifier string) string {
	q := url.Values{}
	q.Set("provider", "google")
	q.Set("redirect_to", redirectTo)
	q.Set("code_challenge", Challenge(verifier))
	q.Set("code_challenge_method", "s256")
	return g.baseURL + "/authorize?" + q.Encode()
}

type tokenResponse struct {
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token"`
	ExpiresIn    int64           `json:"expires_in"`
	ExpiresAt    int64           `json:"expires_at"`
	User         models.AuthUser `json:"user"`
}

func (t tokenResponse) session(now time.Time) (*models.Session, error) {
	if t.AccessToken == "" {
		return nil, errors.New("token response has no access token")
	}
	s := &models.Session{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		User:         t.User,
	}
	switch {
	case t.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(t.ExpiresAt, 0)
	case t.ExpiresIn > 0:
		s.ExpiresAt = now.Add(time.Duration(t.ExpiresIn) * time.Second)
	}
	if s.User.ID == "" || s.ExpiresAt.IsZero() {
		claims, err := ParseClaims(t.AccessToken)
		if err != nil {
			return nil, err
		}
		if s.User.ID == "" {
			s.User.ID = claims.Subject
			s.User.Email = claims.Email
		}
		if s.ExpiresAt.IsZero() {
			s.ExpiresAt = claims.Expiry()
		}
	}
	return s, nil
}

// ExchangeCode trades an authorization code for a session.
func (g *GoTrue) ExchangeCode(ctx context.Context, code, verifier string) (*models.Session, error) {
	var out tokenResponse
	err := g.post(ctx, "/token?grant_type=pkce", "", map[string]string{
		"auth_code":     code,
		"code_verifier": verifier,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.session(g.now())
}

// Refresh implements Refresher.
func (g *GoTrue) Refresh(ctx context.Context, refreshToken string) (*models.Session, error) {
	var out tokenResponse
	err := g.post(ctx, "/token?grant_type=refresh_token", "", map[string]string{
		"refresh_token": refreshToken,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.session(g.now())
}

// SignOut revokes the session's refresh tokens.
func (g *GoTrue) SignOut(ctx context.Context, accessToken string) error {
	return g.post(ctx, "/logout", accessToken, nil, nil)
}

// User returns the user the access token belongs to.
func (g *GoTrue) User(ctx context.Context, accessToken string) (*models.AuthUser, error) {
	var out models.AuthUser
	if err := g.send(ctx, http.MethodGet, "/user", accessToken, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (g *GoTrue) post(ctx context.Context, path, token string, body, out any) error {
	return g.send(ctx, http.MethodPost, path, token, body, out)
}

func (g *GoTrue) send(ctx context.Context, method, path, token string, body, out any) error {
	start := time.Now()
	route, _, _ := strings.Cut(path, "?")
	endpoint := "auth " + route

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return models.NewInternalError(err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return models.NewInternalError(err)
	}
	req.Header.Set("apikey", g.anonKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		observability.ObserveBackend(endpoint, 0, start)
		if ctx.Err() != nil {
			return models.NewStaleError(err)
		}
		return models.NewNetworkError(err)
	}
	defer resp.Body.Close()
	observability.ObserveBackend(endpoint, resp.StatusCode, start)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
			Msg              string `json:"msg"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(data, &e) == nil {
			for _, msg := range []string{e.ErrorDescription, e.Msg, e.Error} {
				if msg != "" {
					return models.NewStatusError(resp.StatusCode, msg)
				}
			}
		}
		return models.NewUnparsedError(resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode auth response: %w", err)
	}
	return nil
}
