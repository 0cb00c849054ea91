package controller

import (
	"context"
	"io"
	"slices"
	"strings"
	"sync"

	"replied/internal/flash"
	"replied/internal/models"
	"replied/internal/observability"
)

// Settings notices.
const (
	MsgProfileLoadFailed = "Failed to load profile"
	MsgProfileSaved      = "Profile updated successfully"
	MsgPaused            = "Inbox paused"
	MsgResumed           = "Inbox is open again"
	MsgPhraseBlocked     = "Phrase blocked"
	MsgPhraseUnblocked   = "Phrase removed"
	MsgPhraseEmpty       = "Phrase cannot be empty"
	MsgPhraseDuplicate   = "Phrase is already blocked"
	MsgAvatarStaged      = "Avatar uploaded. Save to apply."
	MsgConfirmMismatch   = "Type your username exactly to confirm deletion"
	MsgAccountDeleted    = "Your account has been deleted"
)

// SettingsAPI is the slice of the backend API the settings page uses.
type SettingsAPI interface {
	OwnProfile(ctx context.Context, token string) (*models.Profile, error)
	UpdateProfile(ctx context.Context, token string, update models.ProfileUpdate) error
	SetPaused(ctx context.Context, token string, paused bool) error
	SetBlockedPhrases(ctx context.Context, token string, phrases []string) error
	DeleteAccount(ctx context.Context, token string) error
}

// AvatarUploader stores an avatar image and returns its public URL.
type AvatarUploader interface {
	UploadAvatar(ctx context.Context, token, userID string, r io.Reader) (string, error)
}

// SignOuter clears the local session.
type SignOuter interface {
	SignOut(ctx context.Context) error
}

// Draft holds the batched profile fields until Save.
type Draft struct {
	DisplayName string `json:"display_name"`
	Bio         string `json:"bio"`
	AvatarURL   string `json:"avatar_url"`

	// RemoveAvatar clears the avatar on the next Save. An empty AvatarURL
	// alone keeps the current or freshly uploaded one.
	RemoveAvatar bool `json:"remove_avatar,omitempty"`
}

// SettingsView is the rendered settings page.
type SettingsView struct {
	Profile   models.Profile `json:"profile"`
	Draft     Draft          `json:"draft"`
	Saving    bool           `json:"saving"`
	Uploading bool           `json:"uploading"`
}

// Settings manages the viewer's own profile. Pause and blocked phrases are
// persisted per change; display name, bio and avatar are saved together.
type Settings struct {
	api      SettingsAPI
	uploader AvatarUploader
	session  SignOuter
	sink     flash.Sink
	log      *observability.ComponentLogger

	mu        sync.Mutex
	viewer    *models.Session
	profile   models.Profile
	draft     Draft
	saving    bool
	uploading bool
}

// NewSettings returns a settings controller for viewer.
func NewSettings(api SettingsAPI, uploader AvatarUploader, session SignOuter, viewer *models.Session, sink flash.Sink) *Settings {
	return &Settings{
		api:      api,
		uploader: uploader,
		session:  session,
		viewer:   viewer,
		sink:     sink,
		log:      observability.For("settings"),
	}
}

func (s *Settings) token() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.viewer.UserID() == "" {
		return "", models.NewUnauthenticatedError("sign in required")
	}
	return s.viewer.Token(), nil
}

// Load reads the profile and resets the draft to it.
func (s *Settings) Load(ctx context.Context) error {
	token, err := s.token()
	if err != nil {
		return err
	}
	p, err := s.api.OwnProfile(ctx, token)
	if err != nil {
		s.report(ctx, "load profile", err, MsgProfileLoadFailed)
		return err
	}

	s.mu.Lock()
	s.profile = *p
	s.draft = Draft{DisplayName: p.DisplayName, Bio: p.Bio, AvatarURL: p.AvatarURL}
	s.mu.Unlock()
	return nil
}

// View snapshots the current state.
func (s *Settings) View() SettingsView {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.profile
	p.BlockedPhrases = slices.Clone(p.BlockedPhrases)
	if p.BlockedPhrases == nil {
		p.BlockedPhrases = []string{}
	}
	return SettingsView{Profile: p, Draft: s.draft, Saving: s.saving, Uploading: s.uploading}
}

// TogglePause flips the inbox pause flag, reverting if the backend refuses.
func (s *Settings) TogglePause(ctx context.Context) (bool, error) {
	token, err := s.token()
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	before := s.profile.IsPaused
	s.profile.IsPaused = !before
	s.mu.Unlock()

	if err := s.api.SetPaused(ctx, token, !before); err != nil {
		s.mu.Lock()
		s.profile.IsPaused = before
		s.mu.Unlock()
		observability.OptimisticReverts.WithLabelValues("pause").Inc()
		s.report(ctx, "toggle pause", err, "")
		return before, err
	}

	if before {
		flash.Success(s.sink, MsgResumed)
	} else {
		flash.Success(s.sink, MsgPaused)
	}
	return !before, nil
}

// AddBlockedPhrase appends phrase and persists the full list.
func (s *Settings) AddBlockedPhrase(ctx context.Context, phrase string) error {
	phrase = strings.TrimSpace(phrase)
	if phrase == "" {
		return s.invalid(MsgPhraseEmpty)
	}

	s.mu.Lock()
	current := slices.Clone(s.profile.BlockedPhrases)
	s.mu.Unlock()

	if slices.ContainsFunc(current, func(p string) bool { return strings.EqualFold(p, phrase) }) {
		return s.invalid(MsgPhraseDuplicate)
	}
	return s.persistPhrases(ctx, append(current, phrase), MsgPhraseBlocked)
}

// RemoveBlockedPhrase drops phrase (case-insensitively) and persists the list.
func (s *Settings) RemoveBlockedPhrase(ctx context.Context, phrase string) error {
	phrase = strings.TrimSpace(phrase)

	s.mu.Lock()
	next := slices.DeleteFunc(slices.Clone(s.profile.BlockedPhrases), func(p string) bool {
		return strings.EqualFold(p, phrase)
	})
	s.mu.Unlock()

	return s.persistPhrases(ctx, next, MsgPhraseUnblocked)
}

func (s *Settings) persistPhrases(ctx context.Context, phrases []string, ok string) error {
	token, err := s.token()
	if err != nil {
		return err
	}
	if phrases == nil {
		phrases = []string{}
	}
	if err := s.api.SetBlockedPhrases(ctx, token, phrases); err != nil {
		s.report(ctx, "blocked phrases", err, "")
		return err
	}

	s.mu.Lock()
	s.profile.BlockedPhrases = phrases
	s.mu.Unlock()
	flash.Success(s.sink, ok)
	return nil
}

// Stage updates the draft without saving.
func (s *Settings) Stage(d Draft) {
	s.mu.Lock()
	s.draft.DisplayName = strings.TrimSpace(d.DisplayName)
	s.draft.Bio = strings.TrimSpace(d.Bio)
	switch {
	case d.RemoveAvatar:
		s.draft.AvatarURL = ""
	case d.AvatarURL != "":
		s.draft.AvatarURL = d.AvatarURL
	}
	s.mu.Unlock()
}

// UploadAvatar stores the image and stages its URL for the next Save.
func (s *Settings) UploadAvatar(ctx context.Context, r io.Reader) (string, error) {
	token, err := s.token()
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	if s.uploading {
		s.mu.Unlock()
		return "", s.invalid("Upload already in progress")
	}
	s.uploading = true
	userID := s.viewer.UserID()
	s.mu.Unlock()

	url, err := s.uploader.UploadAvatar(ctx, token, userID, r)

	s.mu.Lock()
	s.uploading = false
	if err == nil {
		s.draft.AvatarURL = url
	}
	s.mu.Unlock()

	if err != nil {
		s.report(ctx, "upload avatar", err, "")
		return "", err
	}
	flash.Info(s.sink, MsgAvatarStaged)
	return url, nil
}

// Save commits display name, bio and avatar in one request.
func (s *Settings) Save(ctx context.Context) error {
	token, err := s.token()
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.saving {
		s.mu.Unlock()
		return s.invalid("Save already in progress")
	}
	s.saving = true
	update := models.ProfileUpdateFrom(s.profile)
	update.Username = s.profile.Username
	update.DisplayName = s.draft.DisplayName
	update.Bio = s.draft.Bio
	update.AvatarURL = s.draft.AvatarURL
	s.mu.Unlock()

	err = s.api.UpdateProfile(ctx, token, update)

	s.mu.Lock()
	s.saving = false
	if err == nil {
		s.profile.DisplayName = update.DisplayName
		s.profile.Bio = update.Bio
		s.profile.AvatarURL = update.AvatarURL
	}
	s.mu.Unlock()

	if err != nil {
		s.report(ctx, "save profile", err, "")
		return err
	}
	flash.Success(s.sink, MsgProfileSaved)
	return nil
}

// DeleteAccount deletes the account when confirmation equals the username,
// then clears the session so no identity remains.
func (s *Settings) DeleteAccount(ctx context.Context, confirmation string) error {
	token, err := s.token()
	if err != nil {
		return err
	}

	s.mu.Lock()
	username := s.profile.Username
	s.mu.Unlock()
	if username == "" || strings.TrimSpace(confirmation) != username {
		return s.invalid(MsgConfirmMismatch)
	}

	if err := s.api.DeleteAccount(ctx, token); err != nil {
		s.report(ctx, "delete account", err, "")
		return err
	}

	if err := s.session.SignOut(ctx); err != nil {
		s.log.Warn(ctx, "sign out after deletion", withErr(nil, err))
	}

	s.mu.Lock()
	s.viewer = nil
	s.profile = models.Profile{}
	s.draft = Draft{}
	s.mu.Unlock()
	flash.Success(s.sink, MsgAccountDeleted)
	return nil
}

func (s *Settings) invalid(msg string) error {
	flash.Error(s.sink, msg)
	return models.NewValidationError(msg)
}

// report logs a failure and shows fallback, or the server's message when
// fallback is empty.
func (s *Settings) report(ctx context.Context, action string, err error, fallback string) {
	if models.IsKind(err, models.KindStale) {
		return
	}
	s.log.Warn(ctx, action+" failed", withErr(nil, err))
	text := models.UserMessage(err)
	if fallback != "" && !models.IsKind(err, models.KindStatus) {
		text = fallback
	}
	flash.Error(s.sink, text)
}
