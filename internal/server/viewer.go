package server

import (
	"context"
	"errors"
	"time"

	"replied/internal/auth"
	"replied/internal/flash"
	"replied/internal/middleware"
	"replied/internal/models"
	"replied/internal/session"

	"github.com/gofiber/fiber/v2"
)

const (
	// SessionCookieName holds the opaque browser session id.
	SessionCookieName = "replied_sid"

	localSID     = "sid"
	localState   = "sessionState"
	localNotices = "notices"
	localViewer  = "viewer"

	resolveTimeout = 3 * time.Second
)

// MsgSessionLoading is returned while the session cannot be settled in time.
const MsgSessionLoading = "Session is still loading. Please retry."

// SessionCookie assigns every browser a session id.
func (s *Server) SessionCookie() fiber.Handler {
	return func(c *fiber.Ctx) error {
		sid := c.Cookies(SessionCookieName)
		if !auth.ValidSessionID(sid) {
			sid = auth.NewSessionID()
			s.setSessionCookie(c, sid, s.config.SessionTTL())
		}
		c.Locals(localSID, sid)
		return c.Next()
	}
}

func (s *Server) setSessionCookie(c *fiber.Ctx, sid string, ttl time.Duration) {
	c.Cookie(&fiber.Cookie{
		Name:     SessionCookieName,
		Value:    sid,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HTTPOnly: true,
		Secure:   s.config.IsProduction(),
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HTTPOnly: true,
		Secure:   s.config.IsProduction(),
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func sessionID(c *fiber.Ctx) string {
	sid, _ := c.Locals(localSID).(string)
	return sid
}

func (s *Server) provider(sid string) *auth.RedisProvider {
	return auth.NewRedisProvider(sid, s.store, s.redis, s.gotrue)
}

// resolve settles the request's session state once and caches it on the request.
func (s *Server) resolve(c *fiber.Ctx) (session.State, error) {
	if st, ok := c.Locals(localState).(session.State); ok {
		return st, nil
	}

	r := session.NewResolver(s.provider(sessionID(c)), s.profiles)
	defer r.Close()

	ctx, cancel := context.WithTimeout(c.UserContext(), resolveTimeout)
	defer cancel()
	r.Start(ctx)
	st, err := r.Wait(ctx)
	if err != nil {
		return st, err
	}

	c.Locals(localState, st)
	middleware.BindUser(c, st.UserID())
	return st, nil
}

// viewer is the signed-in session of the request, nil when anonymous.
func viewer(c *fiber.Ctx) *models.Session {
	if st, ok := c.Locals(localState).(session.State); ok {
		return st.Session
	}
	return nil
}

// Page applies the redirect policy for page before the handler runs.
func (s *Server) Page(page session.Page) fiber.Handler {
	return func(c *fiber.Ctx) error {
		st, err := s.resolve(c)
		if err != nil && page == session.PagePublic {
			return c.Next()
		}

		d := session.Gate(st, page)
		switch {
		case err != nil || d.Pending:
			return c.Status(fiber.StatusServiceUnavailable).JSON(models.ErrorResponse{
				Error: MsgSessionLoading,
				Code:  "SESSION_PENDING",
			})
		case d.Redirect != "":
			return c.Redirect(d.Redirect, fiber.StatusSeeOther)
		}
		return c.Next()
	}
}

// requireFlag hides a route when its feature flag is off for the viewer.
func (s *Server) requireFlag(name string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !s.featureFlags.Enabled(name, viewer(c).UserID()) {
			return fiber.ErrNotFound
		}
		return c.Next()
	}
}

// notices is the request's notice recorder, seeded from redirect cookies.
func (s *Server) notices(c *fiber.Ctx) *flash.Recorder {
	if rec, ok := c.Locals(localNotices).(*flash.Recorder); ok {
		return rec
	}
	rec := flash.NewRecorder()
	flash.ReadCookies(c, rec)
	c.Locals(localNotices, rec)
	return rec
}

func (s *Server) sink(c *fiber.Ctx, component string) flash.Sink {
	return flash.Logged(c.UserContext(), component, s.notices(c))
}

func (s *Server) drain(c *fiber.Ctx) []flash.Notice {
	out := s.notices(c).Drain()
	for _, n := range out {
		middleware.NoticesEmitted.WithLabelValues(string(n.Level)).Inc()
	}
	return out
}

// render writes a JSON view model with the pending notices attached.
func (s *Server) render(c *fiber.Ctx, status int, view fiber.Map) error {
	if view == nil {
		view = fiber.Map{}
	}
	view["notices"] = s.drain(c)
	return c.Status(status).JSON(view)
}

// fail renders err the way the front end reports failures.
func (s *Server) fail(c *fiber.Ctx, err error) error {
	var appErr *models.AppError
	code := ""
	if errors.As(err, &appErr) {
		code = appErr.Code
	}
	return s.render(c, models.HTTPStatus(err), fiber.Map{
		"error": models.UserMessage(err),
		"code":  code,
	})
}

// superseded reports whether err came from a debounced call replaced by a newer one.
func superseded(err error) bool {
	return models.IsKind(err, models.KindStale)
}

// redirectWith carries the pending notices across a redirect.
func (s *Server) redirectWith(c *fiber.Ctx, target string) error {
	for _, n := range s.drain(c) {
		flash.SetCookie(c, n, s.config.IsProduction())
	}
	return c.Redirect(target, fiber.StatusSeeOther)
}
