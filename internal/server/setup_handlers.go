package server

import (
	"replied/internal/controller"
	"replied/internal/models"
	"replied/internal/session"

	"github.com/gofiber/fiber/v2"
)

type claimRequest struct {
	Username string `json:"username" form:"username"`
}

func (s *Server) setupFlow(c *fiber.Ctx) *controller.Setup {
	return controller.NewSetup(s.profiles, viewer(c), s.usernameChecks, sessionID(c), s.sink(c, "setup"), nil)
}

// SetupPage renders the username claim form.
func (s *Server) SetupPage(c *fiber.Ctx) error {
	sess := viewer(c)
	return s.render(c, fiber.StatusOK, fiber.Map{
		"email":      sess.User.Email,
		"avatar_url": sess.User.MetadataString("avatar_url", "picture"),
		"suggestion": controller.NormalizeUsername(sess.User.MetadataString("user_name", "preferred_username")),
	})
}

// CheckUsername answers the debounced availability check. A check replaced
// by a newer one from the same browser answers 204.
func (s *Server) CheckUsername(c *fiber.Ctx) error {
	candidate := c.Query("username")
	availability, err := s.setupFlow(c).Check(c.UserContext(), candidate)
	if superseded(err) {
		return c.SendStatus(fiber.StatusNoContent)
	}
	return s.render(c, fiber.StatusOK, fiber.Map{
		"username":     controller.NormalizeUsername(candidate),
		"availability": availability,
	})
}

// ClaimUsername creates the viewer's profile.
func (s *Server) ClaimUsername(c *fiber.Ctx) error {
	var req claimRequest
	if err := c.BodyParser(&req); err != nil {
		return s.fail(c, models.NewValidationError("Invalid request body"))
	}

	profile, err := s.setupFlow(c).Claim(c.UserContext(), req.Username)
	if err != nil {
		return s.fail(c, err)
	}
	return s.render(c, fiber.StatusCreated, fiber.Map{
		"profile":  profile,
		"redirect": session.InboxPath,
	})
}
