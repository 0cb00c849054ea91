package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"replied/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestContextMiddleware_PropagatesIDs(t *testing.T) {
	app := fiber.New()
	app.Use(requestid.New())
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("userID", "user-1")
		return c.Next()
	})
	app.Use(ContextMiddleware())

	var gotRequestID, gotUserID string
	app.Get("/", func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		gotRequestID, _ = ctx.Value(observability.RequestIDKey).(string)
		gotUserID, _ = ctx.Value(observability.UserIDKey).(string)
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, gotRequestID)
	assert.Equal(t, "user-1", gotUserID)
}

func TestBindUser(t *testing.T) {
	app := fiber.New()
	var gotUserID string
	app.Get("/", func(c *fiber.Ctx) error {
		BindUser(c, "")
		assert.Nil(t, c.Locals("userID"))
		BindUser(c, "abc")
		gotUserID, _ = c.UserContext().Value(observability.UserIDKey).(string)
		return c.SendStatus(fiber.StatusNoContent)
	})

	_, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, "abc", gotUserID)
}

func TestMetricsMiddleware_ClassifiesOutcomes(t *testing.T) {
	app := fiber.New()
	app.Use(MetricsMiddleware())
	app.Get("/metrics-test/redirect", func(c *fiber.Ctx) error {
		return c.Redirect("/", fiber.StatusSeeOther)
	})
	app.Get("/metrics-test/view", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"ok": true})
	})

	beforeRedirect := testutil.ToFloat64(PageOutcomes.WithLabelValues("/metrics-test/redirect", "redirect"))
	beforeView := testutil.ToFloat64(PageOutcomes.WithLabelValues("/metrics-test/view", "view"))

	_, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics-test/redirect", nil))
	require.NoError(t, err)
	_, err = app.Test(httptest.NewRequest(http.MethodGet, "/metrics-test/view", nil))
	require.NoError(t, err)

	assert.Equal(t, beforeRedirect+1, testutil.ToFloat64(PageOutcomes.WithLabelValues("/metrics-test/redirect", "redirect")))
	assert.Equal(t, beforeView+1, testutil.ToFloat64(PageOutcomes.WithLabelValues("/metrics-test/view", "view")))
}

func TestTracingMiddleware_SetsTraceHeader(t *testing.T) {
	prev := observability.Tracer
	observability.Tracer = sdktrace.NewTracerProvider().Tracer("test")
	t.Cleanup(func() { observability.Tracer = prev })

	var logged string
	app := fiber.New()
	app.Use(TracingMiddleware())
	app.Get("/", func(c *fiber.Ctx) error {
		logged, _ = c.UserContext().Value(observability.TraceIDKey).(string)
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Len(t, resp.Header.Get("X-Trace-ID"), 32)
	assert.Equal(t, resp.Header.Get("X-Trace-ID"), logged)
}
