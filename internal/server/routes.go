package server

import (
	"context"
	"time"

	"replied/internal/controller"
	"replied/internal/database"
	"replied/internal/featureflags"
	"replied/internal/middleware"
	"replied/internal/session"

	"github.com/gofiber/fiber/v2"
)

// Sends allowed per viewer (or IP when anonymous) per window.
const (
	sendLimit  = 5
	sendWindow = 10 * time.Minute
)

// SetupRoutes configures all routes. Reserved paths are registered before
// the catch-all profile route.
func (s *Server) SetupRoutes(app *fiber.App) {
	public := s.Page(session.PagePublic)
	protected := s.Page(session.PageProtected)
	setup := s.Page(session.PageSetup)

	// Health and metrics
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.HealthCheck)
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	app.Get("/", public, s.Landing)
	app.Get("/login", public, s.Login)

	authGroup := app.Group("/auth")
	authGroup.Get("/login", s.BeginSignIn)
	authGroup.Get("/callback", s.Callback)
	authGroup.Post("/signout", public, s.SignOut)

	setupGroup := app.Group("/setup", setup)
	setupGroup.Get("/", s.SetupPage)
	setupGroup.Get("/check", s.CheckUsername)
	setupGroup.Post("/", s.ClaimUsername)

	app.Get("/inbox", protected, s.InboxPage)
	app.Get("/history", protected, s.HistoryPage)
	inbox := app.Group("/inbox/:id", protected)
	inbox.Post("/reply", s.PublishReply)
	inbox.Post("/archive", s.ArchiveMessage)
	inbox.Post("/report", s.ReportMessage)
	inbox.Delete("/", s.DeleteMessage)

	app.Get("/ws/inbox", protected, s.requireFlag(featureflags.RealtimeInbox), s.upgradeInbox, s.inboxSocket())

	app.Get("/bookmarks", protected, s.BookmarksPage)
	app.Get("/likes", protected, s.LikesPage)

	messages := app.Group("/messages/:id", public)
	messages.Post("/like", s.react(controller.ReactionLike, true))
	messages.Delete("/like", s.react(controller.ReactionLike, false))
	messages.Post("/bookmark", s.react(controller.ReactionBookmark, true))
	messages.Delete("/bookmark", s.react(controller.ReactionBookmark, false))

	settings := app.Group("/settings", protected)
	settings.Get("/", s.SettingsPage)
	settings.Put("/", s.SaveSettings)
	settings.Post("/pause", s.TogglePause)
	settings.Post("/blocked-phrases", s.AddBlockedPhrase)
	settings.Delete("/blocked-phrases", s.RemoveBlockedPhrase)
	settings.Post("/avatar", s.UploadAvatar)
	settings.Delete("/account", s.DeleteAccount)
	settings.Get("/share.png", s.requireFlag(featureflags.ShareQR), s.ShareQR)

	friends := app.Group("/friends", protected)
	friends.Get("/", s.FriendsPage)
	friends.Get("/requests", s.FriendRequests)
	friends.Get("/feed", s.requireFlag(featureflags.FriendsFeed), s.FriendsFeed)
	friends.Get("/search", s.SearchUsers)
	friends.Post("/request", s.RequestFriend)
	friends.Post("/accept", s.AcceptFriend)
	friends.Delete("/:id", s.Unfriend)

	app.Get("/:username", public, s.ProfilePage)
	sends := middleware.NewThrottle(s.redis, middleware.ThrottleConfig{
		Name:     "send_message",
		Limit:    sendLimit,
		Window:   sendWindow,
		Disabled: s.config.Env == "test" || s.config.Env == "development",
	})
	app.Post("/:username/send", public, sends.Handler(), s.SendMessage)
}

// Landing renders the entry page.
func (s *Server) Landing(c *fiber.Ctx) error {
	sess := viewer(c)
	return s.render(c, fiber.StatusOK, fiber.Map{
		"signed_in": sess != nil,
		"user_id":   sess.UserID(),
		"flags":     s.featureFlags.Snapshot(sess.UserID()),
	})
}

// HealthCheck is a combined status, kept for simple probes.
func (s *Server) HealthCheck(c *fiber.Ctx) error {
	return s.ReadinessCheck(c)
}

// LivenessCheck handles GET /health/live.
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "up",
		"timestamp": time.Now().UTC(),
	})
}

// ReadinessCheck reports whether Redis and the database answer.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	checks := fiber.Map{}
	healthy := true

	if err := s.redis.Ping(ctx).Err(); err != nil {
		checks["redis"] = "down"
		healthy = false
	} else {
		checks["redis"] = "up"
	}

	switch {
	case s.db == nil:
		checks["database"] = "unconfigured"
	default:
		if err := database.Ping(ctx, s.db); err != nil {
			checks["database"] = "down"
			healthy = false
		} else {
			checks["database"] = "up"
		}
	}

	checks["inbox_delivery"] = s.hubDelivery()

	status := fiber.StatusOK
	state := "up"
	if !healthy {
		status = fiber.StatusServiceUnavailable
		state = "down"
	}
	return c.Status(status).JSON(fiber.Map{
		"status":    state,
		"checks":    checks,
		"timestamp": time.Now().UTC(),
	})
}
