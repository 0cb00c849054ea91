package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestThrottle_Allow(t *testing.T) {
	_, rdb := newRedis(t)
	ctx := context.Background()

	tests := []struct {
		name        string
		rdb         *redis.Client
		disabled    bool
		expectAllow bool
		expectError bool
	}{
		{name: "Disabled Bypasses Redis", disabled: true, expectAllow: true},
		{name: "Nil Redis", expectError: true},
		{name: "First Request Allowed", rdb: rdb, expectAllow: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th := NewThrottle(tt.rdb, ThrottleConfig{Name: "send", Limit: 1, Window: time.Minute, Disabled: tt.disabled})
			d, err := th.Allow(ctx, "ip:1")
			if tt.expectError {
				assert.Error(t, err)
				assert.False(t, d.Allowed)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectAllow, d.Allowed)
		})
	}
}

func TestThrottle_SeparatesCallers(t *testing.T) {
	_, rdb := newRedis(t)
	th := NewThrottle(rdb, ThrottleConfig{Name: "send", Limit: 1, Window: time.Minute})
	ctx := context.Background()

	d, err := th.Allow(ctx, "user:a")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)

	d, err = th.Allow(ctx, "user:a")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.InDelta(t, time.Minute.Seconds(), d.RetryAfter.Seconds(), 1)

	d, err = th.Allow(ctx, "user:b")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestThrottle_BlocksAfterLimit(t *testing.T) {
	mr, rdb := newRedis(t)
	th := NewThrottle(rdb, ThrottleConfig{Name: "send", Limit: 5, Window: 10 * time.Minute})

	app := fiber.New()
	app.Post("/send", th.Handler(), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusCreated)
	})

	for i := 0; i < 5; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/send", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/send", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "0", resp.Header.Get("X-RateLimit-Remaining"))
	assert.Equal(t, "600", resp.Header.Get(fiber.HeaderRetryAfter))

	mr.FastForward(11 * time.Minute)

	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/send", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestThrottle_RedisDown(t *testing.T) {
	mr, rdb := newRedis(t)
	mr.Close()

	tests := []struct {
		name   string
		policy FailPolicy
		status int
	}{
		{"Fail Open", FailOpen, http.StatusOK},
		{"Fail Closed", FailClosed, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th := NewThrottle(rdb, ThrottleConfig{Name: "x", Limit: 1, Window: time.Minute, Policy: tt.policy})
			app := fiber.New()
			app.Get("/x", th.Handler(), func(c *fiber.Ctx) error {
				return c.SendStatus(fiber.StatusOK)
			})

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/x", nil))
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}
