package server

import (
	"context"

	"replied/internal/controller"
	"replied/internal/media"
	"replied/internal/models"
	"replied/internal/session"

	"github.com/gofiber/fiber/v2"
	"github.com/skip2/go-qrcode"
)

const qrSize = 256

type phraseRequest struct {
	Phrase string `json:"phrase" form:"phrase"`
}

type deleteAccountRequest struct {
	Confirmation string `json:"confirmation" form:"confirmation"`
}

// loadSettings returns a loaded settings controller, or the error to render.
func (s *Server) loadSettings(c *fiber.Ctx) (*controller.Settings, error) {
	st := controller.NewSettings(s.backend, s.uploader, s.provider(sessionID(c)), viewer(c), s.sink(c, "settings"))
	if err := st.Load(c.UserContext()); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *Server) settingsView(c *fiber.Ctx, st *controller.Settings) fiber.Map {
	view := st.View()
	return fiber.Map{
		"settings":  view,
		"share_url": s.shareURL(view.Profile.Username),
		"flags":     s.featureFlags.Snapshot(viewer(c).UserID()),
	}
}

// SettingsPage renders the viewer's settings.
func (s *Server) SettingsPage(c *fiber.Ctx) error {
	st, err := s.loadSettings(c)
	if err != nil {
		return s.fail(c, err)
	}
	return s.render(c, fiber.StatusOK, s.settingsView(c, st))
}

// SaveSettings commits display name, bio and avatar together.
func (s *Server) SaveSettings(c *fiber.Ctx) error {
	var draft controller.Draft
	if err := c.BodyParser(&draft); err != nil {
		return s.fail(c, models.NewValidationError("Invalid request body"))
	}
	st, err := s.loadSettings(c)
	if err != nil {
		return s.fail(c, err)
	}
	st.Stage(draft)
	if err := st.Save(c.UserContext()); err != nil {
		return s.fail(c, err)
	}
	return s.render(c, fiber.StatusOK, s.settingsView(c, st))
}

// TogglePause flips whether the inbox accepts messages.
func (s *Server) TogglePause(c *fiber.Ctx) error {
	st, err := s.loadSettings(c)
	if err != nil {
		return s.fail(c, err)
	}
	paused, err := st.TogglePause(c.UserContext())
	if err != nil {
		return s.fail(c, err)
	}
	return s.render(c, fiber.StatusOK, fiber.Map{"paused": paused})
}

// AddBlockedPhrase blocks a phrase and persists the full list.
func (s *Server) AddBlockedPhrase(c *fiber.Ctx) error {
	return s.editPhrases(c, (*controller.Settings).AddBlockedPhrase)
}

// RemoveBlockedPhrase unblocks a phrase and persists the full list.
func (s *Server) RemoveBlockedPhrase(c *fiber.Ctx) error {
	return s.editPhrases(c, (*controller.Settings).RemoveBlockedPhrase)
}

func (s *Server) editPhrases(c *fiber.Ctx, edit func(*controller.Settings, context.Context, string) error) error {
	var req phraseRequest
	if err := c.BodyParser(&req); err != nil {
		return s.fail(c, models.NewValidationError("Invalid request body"))
	}
	st, err := s.loadSettings(c)
	if err != nil {
		return s.fail(c, err)
	}
	if err := edit(st, c.UserContext(), req.Phrase); err != nil {
		return s.fail(c, err)
	}
	return s.render(c, fiber.StatusOK, fiber.Map{"blocked_phrases": st.View().Profile.BlockedPhrases})
}

// UploadAvatar stores a new avatar. The returned URL is applied by the next save.
func (s *Server) UploadAvatar(c *fiber.Ctx) error {
	if s.uploader == nil {
		return fiber.ErrNotFound
	}
	fh, err := c.FormFile("avatar")
	if err != nil {
		return s.fail(c, models.NewValidationError(media.MsgNoFile))
	}
	if fh.Size > media.MaxUploadBytes {
		return s.fail(c, models.NewValidationError(media.MsgTooLarge))
	}
	f, err := fh.Open()
	if err != nil {
		return s.fail(c, models.NewValidationError(media.MsgInvalidImage))
	}
	defer f.Close()

	st := controller.NewSettings(s.backend, s.uploader, nil, viewer(c), s.sink(c, "settings"))
	url, err := st.UploadAvatar(c.UserContext(), f)
	if err != nil {
		return s.fail(c, err)
	}
	return s.render(c, fiber.StatusOK, fiber.Map{"avatar_url": url})
}

// DeleteAccount removes the account after the username is typed back, then
// ends the browser session.
func (s *Server) DeleteAccount(c *fiber.Ctx) error {
	var req deleteAccountRequest
	if err := c.BodyParser(&req); err != nil {
		return s.fail(c, models.NewValidationError("Invalid request body"))
	}
	st, err := s.loadSettings(c)
	if err != nil {
		return s.fail(c, err)
	}
	if err := st.DeleteAccount(c.UserContext(), req.Confirmation); err != nil {
		return s.fail(c, err)
	}

	s.clearSessionCookie(c)
	return s.redirectWith(c, session.LandingPath)
}

// ShareQR renders a QR code of the viewer's public profile link.
func (s *Server) ShareQR(c *fiber.Ctx) error {
	scope := controller.NewScope(c.UserContext())
	defer scope.Cancel()
	own := controller.NewProfileFetcher(s.backend, s.sink(c, "share")).Own(scope, viewer(c))
	if !own.Found {
		return s.fail(c, models.NewStatusError(fiber.StatusNotFound, "Profile not found"))
	}

	png, err := qrcode.Encode(s.shareURL(own.Profile.Username), qrcode.Medium, qrSize)
	if err != nil {
		return s.fail(c, models.NewInternalError(err))
	}
	c.Set(fiber.HeaderCacheControl, "private, max-age=300")
	c.Type("png")
	return c.Send(png)
}
