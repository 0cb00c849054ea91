package server

import (
	"replied/internal/controller"
	"replied/internal/models"

	"github.com/gofiber/fiber/v2"
)

type friendRequest struct {
	ReceiverID string `json:"receiver_id" form:"receiver_id"`
}

type acceptRequest struct {
	RequestID string `json:"request_id" form:"request_id"`
}

func (s *Server) friends(c *fiber.Ctx) *controller.Friends {
	return controller.NewFriends(s.backend, viewer(c), s.searches, sessionID(c), s.sink(c, "friends"))
}

// FriendsPage renders accepted friendships.
func (s *Server) FriendsPage(c *fiber.Ctx) error {
	return s.render(c, fiber.StatusOK, fiber.Map{"friends": s.friends(c).List(c.UserContext())})
}

// FriendRequests renders pending incoming requests.
func (s *Server) FriendRequests(c *fiber.Ctx) error {
	return s.render(c, fiber.StatusOK, fiber.Map{"requests": s.friends(c).Requests(c.UserContext())})
}

// FriendsFeed renders friends' recent messages.
func (s *Server) FriendsFeed(c *fiber.Ctx) error {
	return s.render(c, fiber.StatusOK, fiber.Map{"messages": s.friends(c).Feed(c.UserContext())})
}

// SearchUsers answers the debounced directory search. A search replaced by
// a newer one from the same browser answers 204.
func (s *Server) SearchUsers(c *fiber.Ctx) error {
	users, err := s.friends(c).Search(c.UserContext(), c.Query("q"))
	if superseded(err) {
		return c.SendStatus(fiber.StatusNoContent)
	}
	return s.render(c, fiber.StatusOK, fiber.Map{"users": users})
}

// RequestFriend sends a friend request.
func (s *Server) RequestFriend(c *fiber.Ctx) error {
	var req friendRequest
	if err := c.BodyParser(&req); err != nil || req.ReceiverID == "" {
		return s.fail(c, models.NewValidationError("receiver_id is required"))
	}
	if err := s.friends(c).Request(c.UserContext(), req.ReceiverID); err != nil {
		return s.fail(c, err)
	}
	return s.render(c, fiber.StatusCreated, fiber.Map{"requested": req.ReceiverID})
}

// AcceptFriend accepts a pending request and returns the remaining requests.
func (s *Server) AcceptFriend(c *fiber.Ctx) error {
	var req acceptRequest
	if err := c.BodyParser(&req); err != nil || req.RequestID == "" {
		return s.fail(c, models.NewValidationError("request_id is required"))
	}
	requests, err := s.friends(c).Accept(c.UserContext(), req.RequestID)
	if err != nil {
		return s.fail(c, err)
	}
	return s.render(c, fiber.StatusOK, fiber.Map{"requests": requests})
}

// Unfriend removes a friendship and returns the remaining friends.
func (s *Server) Unfriend(c *fiber.Ctx) error {
	friends, err := s.friends(c).Unfriend(c.UserContext(), c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	return s.render(c, fiber.StatusOK, fiber.Map{"friends": friends})
}
