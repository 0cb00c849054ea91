package server

import (
	"replied/internal/controller"
	"replied/internal/models"

	"github.com/gofiber/fiber/v2"
)

type sendRequest struct {
	Content  string `json:"content" form:"content"`
	ThreadID string `json:"thread_id" form:"thread_id"`
}

func (s *Server) shareURL(username string) string {
	return s.config.PublicURL + "/" + username
}

func (s *Server) publicProfile(c *fiber.Ctx) controller.ProfileView {
	scope := controller.NewScope(c.UserContext())
	defer scope.Cancel()
	fetcher := controller.NewProfileFetcher(s.backend, s.sink(c, "profile"))
	return fetcher.Public(scope, viewer(c), c.Params("username"))
}

// ProfilePage renders a public profile with its threads.
func (s *Server) ProfilePage(c *fiber.Ctx) error {
	view := s.publicProfile(c)
	if !view.Found {
		return s.render(c, fiber.StatusNotFound, fiber.Map{"found": false})
	}
	return s.render(c, fiber.StatusOK, fiber.Map{
		"found":     true,
		"profile":   view.Profile,
		"messages":  view.Messages,
		"threads":   view.Threads,
		"share_url": s.shareURL(view.Profile.Username),
		"is_owner":  view.Profile.ID == viewer(c).UserID(),
	})
}

// SendMessage delivers an anonymous message, or a follow-up when thread_id is set.
func (s *Server) SendMessage(c *fiber.Ctx) error {
	var req sendRequest
	if err := c.BodyParser(&req); err != nil {
		return s.fail(c, models.NewValidationError("Invalid request body"))
	}

	view := s.publicProfile(c)
	if !view.Found {
		return s.render(c, fiber.StatusNotFound, fiber.Map{"found": false})
	}

	composer := controller.NewComposer(s.backend, viewer(c), view.Profile.ID, s.sink(c, "composer"))
	composer.SetInput(req.Content)
	if req.ThreadID != "" {
		if err := composer.ReplyIn(view.Threads, req.ThreadID); err != nil {
			return s.fail(c, err)
		}
	}
	if err := composer.Submit(c.UserContext()); err != nil {
		return s.fail(c, err)
	}
	return s.render(c, fiber.StatusCreated, fiber.Map{"sent": true})
}

// react sets a reaction to on. The body carries the state the browser shows;
// a request matching it already is answered without a backend call.
func (s *Server) react(r controller.Reaction, on bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var current models.ReactionState
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&current); err != nil {
				return s.fail(c, models.NewValidationError("Invalid request body"))
			}
		}

		id := c.Params("id")
		social := controller.NewSocial(s.backend, viewer(c), s.reactionLocks, s.sink(c, "social"))
		social.Track(id, current)

		isOn := current.IsLiked
		toggle := social.ToggleLike
		if r == controller.ReactionBookmark {
			isOn = current.IsBookmarked
			toggle = social.ToggleBookmark
		}
		if isOn == on && viewer(c) != nil {
			return s.render(c, fiber.StatusOK, fiber.Map{"state": current})
		}

		st, err := toggle(c.UserContext(), id)
		if err != nil {
			return s.render(c, models.HTTPStatus(err), fiber.Map{
				"error": models.UserMessage(err),
				"state": st,
			})
		}
		return s.render(c, fiber.StatusOK, fiber.Map{"state": st})
	}
}
