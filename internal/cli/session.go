package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"replied/internal/auth"
	"replied/internal/models"
	"replied/internal/observability"
)

// TokenEnv supplies an access token for one invocation without touching the session file.
const TokenEnv = "REPLIED_TOKEN"

// DefaultSessionPath is where login stores the session.
func DefaultSessionPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".replied-session.json"
	}
	return filepath.Join(dir, "replied", "session.json")
}

func (a *app) sessionPath() string {
	if a.deps.SessionPath != "" {
		return a.deps.SessionPath
	}
	return DefaultSessionPath()
}

func readSession(path string) (*models.Session, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	var sess models.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", path, err)
	}
	if sess.AccessToken == "" {
		return nil, nil
	}
	return &sess, nil
}

func writeSession(path string, sess *models.Session) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func removeSession(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// sessionFromToken builds a session from a bare access token's claims.
func sessionFromToken(token string) (*models.Session, error) {
	claims, err := auth.ParseClaims(token)
	if err != nil {
		return nil, models.NewValidationError("Invalid access token")
	}
	return &models.Session{
		AccessToken: token,
		ExpiresAt:   claims.Expiry(),
		User:        models.AuthUser{ID: claims.Subject, Email: claims.Email},
	}, nil
}

// loadSession builds the in-process provider from the environment or the
// session file. Rotated tokens are written back to the file.
func (a *app) loadSession() error {
	var (
		sess *models.Session
		err  error
	)
	fromEnv := os.Getenv(TokenEnv)
	if fromEnv != "" {
		sess, err = sessionFromToken(fromEnv)
	} else {
		sess, err = readSession(a.sessionPath())
	}
	if err != nil {
		return err
	}

	var refresher auth.Refresher
	if a.deps.GoTrue != nil {
		refresher = a.deps.GoTrue
	}
	a.provider = auth.NewMemoryProvider(sess, refresher)

	if fromEnv == "" {
		a.provider.OnAuthStateChange(func(event models.AuthEvent, s *models.Session) {
			if event != models.EventTokenRefreshed || s == nil {
				return
			}
			if err := writeSession(a.sessionPath(), s); err != nil {
				observability.For("cli").Error(context.Background(), "persist refreshed session", err, nil)
			}
		})
	}
	return nil
}
