package controller

import (
	"context"
	"regexp"
	"strings"
	"time"

	"replied/internal/flash"
	"replied/internal/models"
	"replied/internal/observability"
)

// CheckDelay is the quiet period before a username availability check.
const CheckDelay = 500 * time.Millisecond

// Setup notices.
const (
	MsgUsernameFormat = "Username must be 3-30 characters: lowercase letters, numbers and underscores"
	MsgUsernameTaken  = "Username is already taken"
	MsgSessionExpired = "Session expired. Please sign in again."
	MsgProfileCreated = "Profile created! Welcome to Replied."
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9_]{3,30}$`)

// Availability is the result of a username check.
type Availability string

const (
	AvailabilityInvalid   Availability = "invalid"
	AvailabilityAvailable Availability = "available"
	AvailabilityTaken     Availability = "taken"
	AvailabilityUnknown   Availability = "unknown"
)

// UsernameDirectory answers availability and claims usernames.
type UsernameDirectory interface {
	UsernameTaken(ctx context.Context, username string) (bool, error)
	ClaimUsername(ctx context.Context, p models.Profile) error
}

// NormalizeUsername lowercases and trims a candidate username.
func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidUsername reports whether s, already normalized, is an acceptable username.
func ValidUsername(s string) bool {
	return usernamePattern.MatchString(s)
}

// Setup is the first-login username claim flow.
type Setup struct {
	dir      UsernameDirectory
	viewer   *models.Session
	debounce *Debouncers
	key      string
	sink     flash.Sink
	onClaim  func()
	log      *observability.ComponentLogger
}

// NewSetup returns a setup flow for viewer. onClaim runs after a successful
// claim, e.g. to mark the session resolver's username as present.
func NewSetup(dir UsernameDirectory, viewer *models.Session, debounce *Debouncers, key string, sink flash.Sink, onClaim func()) *Setup {
	if debounce == nil {
		debounce = NewDebouncers(CheckDelay)
	}
	if onClaim == nil {
		onClaim = func() {}
	}
	return &Setup{
		dir:      dir,
		viewer:   viewer,
		debounce: debounce,
		key:      "setup:" + key,
		sink:     sink,
		onClaim:  onClaim,
		log:      observability.For("setup"),
	}
}

// Check reports whether candidate can be claimed. Bursts of checks are
// debounced; superseded ones return a stale error.
func (s *Setup) Check(ctx context.Context, candidate string) (Availability, error) {
	username := NormalizeUsername(candidate)
	if !ValidUsername(username) {
		return AvailabilityInvalid, nil
	}
	if err := s.debounce.Wait(ctx, s.key); err != nil {
		return AvailabilityUnknown, err
	}

	taken, err := s.dir.UsernameTaken(ctx, username)
	if err != nil {
		s.log.Warn(ctx, "availability check failed", withErr(map[string]any{"username": username}, err))
		return AvailabilityUnknown, err
	}
	if taken {
		return AvailabilityTaken, nil
	}
	return AvailabilityAvailable, nil
}

// Claim creates the viewer's profile with candidate as username.
func (s *Setup) Claim(ctx context.Context, candidate string) (models.Profile, error) {
	if s.viewer.UserID() == "" {
		flash.Error(s.sink, MsgSessionExpired)
		return models.Profile{}, models.NewUnauthenticatedError(MsgSessionExpired)
	}

	username := NormalizeUsername(candidate)
	if !ValidUsername(username) {
		flash.Error(s.sink, MsgUsernameFormat)
		return models.Profile{}, models.NewValidationError(MsgUsernameFormat)
	}

	taken, err := s.dir.UsernameTaken(ctx, username)
	if err == nil && taken {
		err = models.NewValidationError(MsgUsernameTaken)
	}
	if err != nil {
		s.claimFailed(ctx, username, err)
		return models.Profile{}, err
	}

	p := models.Profile{
		ID:          s.viewer.UserID(),
		Username:    username,
		DisplayName: username,
		AvatarURL:   s.viewer.User.MetadataString("avatar_url", "picture"),
		Email:       s.viewer.User.Email,
	}
	if err := s.dir.ClaimUsername(ctx, p); err != nil {
		s.claimFailed(ctx, username, err)
		return models.Profile{}, err
	}

	s.onClaim()
	flash.Success(s.sink, MsgProfileCreated)
	return p, nil
}

func (s *Setup) claimFailed(ctx context.Context, username string, err error) {
	s.log.Warn(ctx, "claim failed", withErr(map[string]any{"username": username}, err))
	flash.Error(s.sink, models.UserMessage(err))
}
