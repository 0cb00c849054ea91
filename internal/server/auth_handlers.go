package server

import (
	"replied/internal/auth"
	"replied/internal/flash"
	"replied/internal/models"
	"replied/internal/session"

	"github.com/gofiber/fiber/v2"
)

// Sign-in notices.
const (
	MsgSignInFailed = "Sign-in failed. Please try again."
	MsgSignedOut    = "Signed out"
)

// Login renders the sign-in page, including a failed-callback error.
func (s *Server) Login(c *fiber.Ctx) error {
	if viewer(c) != nil {
		return c.Redirect(session.InboxPath, fiber.StatusSeeOther)
	}
	reason := c.Query("error")
	view := fiber.Map{"error": reason, "sign_in_url": "/auth/login"}
	if reason == "auth-failed" {
		view["message"] = MsgSignInFailed
	}
	return s.render(c, fiber.StatusOK, view)
}

// BeginSignIn starts the OAuth flow with a PKCE verifier bound to the browser session.
func (s *Server) BeginSignIn(c *fiber.Ctx) error {
	if s.gotrue == nil {
		return fiber.ErrNotFound
	}
	verifier, err := auth.NewVerifier()
	if err != nil {
		return s.fail(c, models.NewInternalError(err))
	}
	if err := s.store.SaveVerifier(c.UserContext(), sessionID(c), verifier); err != nil {
		s.log.Error(c.UserContext(), "save pkce verifier", err, nil)
		return s.fail(c, models.NewNetworkError(err))
	}
	return c.Redirect(s.gotrue.AuthorizeURL(s.config.PublicURL+"/auth/callback", verifier), fiber.StatusSeeOther)
}

// Callback completes the OAuth exchange, then waits a bounded time for the
// session to be signed in and redirects to the inbox or the failure page.
func (s *Server) Callback(c *fiber.Ctx) error {
	ctx := c.UserContext()
	sid := sessionID(c)
	p := s.provider(sid)

	wait := session.StartSignInWait(ctx, p, s.config.CallbackWait(), nil)

	code := c.Query("code")
	switch {
	case c.Query("error") != "":
		s.log.Warn(ctx, "provider returned an error", map[string]any{
			"error":       c.Query("error"),
			"description": c.Query("error_description"),
		})
	case code != "" && s.gotrue != nil:
		s.exchange(c, p, code)
	}

	target := wait.Result(ctx)
	if target == session.AuthFailedPath {
		flash.Error(s.notices(c), MsgSignInFailed)
	}
	return s.redirectWith(c, target)
}

func (s *Server) exchange(c *fiber.Ctx, p *auth.RedisProvider, code string) {
	ctx := c.UserContext()
	verifier, err := s.store.TakeVerifier(ctx, p.SessionID())
	if err != nil || verifier == "" {
		s.log.Warn(ctx, "callback without a pkce verifier", nil)
		return
	}
	sess, err := s.gotrue.ExchangeCode(ctx, code, verifier)
	if err != nil {
		s.log.Error(ctx, "code exchange failed", err, nil)
		return
	}
	if err := p.Complete(ctx, sess); err != nil {
		s.log.Error(ctx, "store session", err, map[string]any{"user_id": sess.UserID()})
	}
}

// SignOut clears the browser session. Open inbox sockets of this session
// observe the event and close.
func (s *Server) SignOut(c *fiber.Ctx) error {
	ctx := c.UserContext()
	uid := viewer(c).UserID()

	if err := s.provider(sessionID(c)).SignOut(ctx); err != nil {
		s.log.Error(ctx, "sign out", err, map[string]any{"user_id": uid})
		return s.fail(c, models.NewNetworkError(err))
	}

	s.clearSessionCookie(c)
	flash.Success(s.notices(c), MsgSignedOut)
	return s.redirectWith(c, session.LandingPath)
}
