// Package flash carries non-blocking user notices from controllers to
// whichever front end is rendering them.
package flash

import (
	"context"
	"net/url"
	"sync"
	"time"

	"replied/internal/observability"

	"github.com/gofiber/fiber/v2"
)

// Level is the severity of a notice.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

// Notice is one toast-style message.
type Notice struct {
	Level Level  `json:"level"`
	Text  string `json:"text"`
}

// Sink receives notices. Implementations must not block.
type Sink interface {
	Notify(n Notice)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Notice)

// Notify implements Sink.
func (f SinkFunc) Notify(n Notice) { f(n) }

// Discard drops every notice.
var Discard Sink = SinkFunc(func(Notice) {})

// Success pushes a success notice.
func Success(s Sink, text string) { s.Notify(Notice{Level: LevelSuccess, Text: text}) }

// Error pushes an error notice.
func Error(s Sink, text string) { s.Notify(Notice{Level: LevelError, Text: text}) }

// Info pushes an informational notice.
func Info(s Sink, text string) { s.Notify(Notice{Level: LevelInfo, Text: text}) }

// Recorder collects notices for one request or one CLI command.
type Recorder struct {
	mu      sync.Mutex
	notices []Notice
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Notify implements Sink.
func (r *Recorder) Notify(n Notice) {
	r.mu.Lock()
	r.notices = append(r.notices, n)
	r.mu.Unlock()
}

// Drain returns and clears the collected notices. Never nil.
func (r *Recorder) Drain() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.notices
	r.notices = nil
	if out == nil {
		out = []Notice{}
	}
	return out
}

// Logged wraps a sink so every error notice is also logged.
func Logged(ctx context.Context, component string, next Sink) Sink {
	logger := observability.For(component)
	return SinkFunc(func(n Notice) {
		if n.Level == LevelError {
			logger.Warn(ctx, "notice", map[string]any{"text": n.Text})
		}
		next.Notify(n)
	})
}

const cookiePrefix = "flash_"

// SetCookie stores a notice that must survive a redirect.
func SetCookie(c *fiber.Ctx, n Notice, secure bool) {
	c.Cookie(&fiber.Cookie{
		Name:     cookiePrefix + string(n.Level),
		Value:    url.QueryEscape(n.Text),
		Path:     "/",
		MaxAge:   60,
		HTTPOnly: true,
		Secure:   secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// ReadCookies reads and clears redirect-carried notices into s.
// Call this once per request, early in the handler.
func ReadCookies(c *fiber.Ctx, s Sink) {
	for _, level := range []Level{LevelSuccess, LevelError, LevelInfo} {
		raw := c.Cookies(cookiePrefix + string(level))
		if raw == "" {
			continue
		}
		if text, err := url.QueryUnescape(raw); err == nil && text != "" {
			s.Notify(Notice{Level: level, Text: text})
		}
		c.Cookie(&fiber.Cookie{
			Name:    cookiePrefix + string(level),
			Value:   "",
			Path:    "/",
			Expires: time.Unix(0, 0),
			MaxAge:  -1,
		})
	}
}
