package models

import "time"

// AuthEvent is a state change reported by the auth provider.
type AuthEvent string

const (
	// EventSignedIn fires when a session is established.
	EventSignedIn AuthEvent = "SIGNED_IN"
	// EventSignedOut fires when the session is cleared.
	EventSignedOut AuthEvent = "SIGNED_OUT"
	// EventTokenRefreshed fires when the access token is rotated.
	EventTokenRefreshed AuthEvent = "TOKEN_REFRESHED"
)

// AuthUser is the identity carried by a session.
type AuthUser struct {
	ID       string         `json:"id"`
	Email    string         `json:"email,omitempty"`
	Metadata map[string]any `json:"user_metadata,omitempty"`
}

// MetadataString reads a string from the provider's user metadata.
func (u AuthUser) MetadataString(keys ...string) string {
	for _, k := range keys {
		if v, ok := u.Metadata[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// Session is an authenticated identity: a bearer token plus the user it belongs to.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         AuthUser  `json:"user"`
}

// UserID is empty for a nil session.
func (s *Session) UserID() string {
	if s == nil {
		return ""
	}
	return s.User.ID
}

// Token is empty for a nil session.
func (s *Session) Token() string {
	if s == nil {
		return ""
	}
	return s.AccessToken
}

// ExpiresWithin reports whether the access token expires inside d.
func (s *Session) ExpiresWithin(now time.Time, d time.Duration) bool {
	if s == nil || s.ExpiresAt.IsZero() {
		return false
	}
	return s.ExpiresAt.Sub(now) <= d
}
