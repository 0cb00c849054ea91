package server

import (
	"context"

	"replied/internal/controller"
	"replied/internal/featureflags"
	"replied/internal/models"

	"github.com/gofiber/fiber/v2"
)

type replyRequest struct {
	Content string `json:"content" form:"content"`
}

func (s *Server) inbox(c *fiber.Ctx) *controller.Inbox {
	return controller.NewInbox(s.backend, viewer(c), s.sink(c, "inbox"))
}

// InboxPage renders pending messages.
func (s *Server) InboxPage(c *fiber.Ctx) error {
	uid := viewer(c).UserID()
	return s.render(c, fiber.StatusOK, fiber.Map{
		"messages": s.inbox(c).Load(c.UserContext()),
		"realtime": s.featureFlags.Enabled(featureflags.RealtimeInbox, uid),
	})
}

// HistoryPage renders answered messages.
func (s *Server) HistoryPage(c *fiber.Ctx) error {
	return s.render(c, fiber.StatusOK, fiber.Map{
		"messages": s.inbox(c).LoadHistory(c.UserContext()),
	})
}

// PublishReply answers a pending message.
func (s *Server) PublishReply(c *fiber.Ctx) error {
	var req replyRequest
	if err := c.BodyParser(&req); err != nil {
		return s.fail(c, models.NewValidationError("Invalid request body"))
	}
	reply, err := s.inbox(c).Publish(c.UserContext(), c.Params("id"), req.Content)
	if err != nil {
		return s.fail(c, err)
	}
	return s.render(c, fiber.StatusCreated, fiber.Map{"reply": reply})
}

// ArchiveMessage hides a message from the inbox.
func (s *Server) ArchiveMessage(c *fiber.Ctx) error {
	return s.inboxAction(c, (*controller.Inbox).Archive)
}

// ReportMessage flags a message for moderation.
func (s *Server) ReportMessage(c *fiber.Ctx) error {
	return s.inboxAction(c, (*controller.Inbox).Report)
}

// DeleteMessage removes a message permanently.
func (s *Server) DeleteMessage(c *fiber.Ctx) error {
	return s.inboxAction(c, (*controller.Inbox).Delete)
}

func (s *Server) inboxAction(c *fiber.Ctx, act func(*controller.Inbox, context.Context, string) error) error {
	id := c.Params("id")
	if err := act(s.inbox(c), c.UserContext(), id); err != nil {
		return s.fail(c, err)
	}
	return s.render(c, fiber.StatusOK, fiber.Map{"removed": id})
}

// BookmarksPage renders the viewer's bookmarked messages.
func (s *Server) BookmarksPage(c *fiber.Ctx) error {
	col := controller.NewCollections(s.backend, viewer(c), s.sink(c, "collections"))
	return s.render(c, fiber.StatusOK, fiber.Map{"messages": col.Bookmarks(c.UserContext())})
}

// LikesPage renders the viewer's liked messages.
func (s *Server) LikesPage(c *fiber.Ctx) error {
	col := controller.NewCollections(s.backend, viewer(c), s.sink(c, "collections"))
	return s.render(c, fiber.StatusOK, fiber.Map{"messages": col.Likes(c.UserContext())})
}
