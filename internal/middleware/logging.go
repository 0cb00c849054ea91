// Package middleware provides the web shell's request middleware.
package middleware

import (
	"context"
	"log/slog"
	"time"

	"replied/internal/observability"

	"github.com/gofiber/fiber/v2"
)

// ContextMiddleware injects request ID and user ID from Fiber locals into the request context.
// This allows these values to be picked up by the context-aware logger in controllers and clients.
func ContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()

		if rid, ok := c.Locals("requestid").(string); ok && rid != "" {
			ctx = observability.WithRequestID(ctx, rid)
		}
		if uid, ok := c.Locals("userID").(string); ok && uid != "" {
			ctx = observability.WithUserID(ctx, uid)
		}

		c.SetUserContext(ctx)
		return c.Next()
	}
}

// BindUser records the resolved user id on the request so later log records carry it.
func BindUser(c *fiber.Ctx, userID string) {
	if userID == "" {
		return
	}
	c.Locals("userID", userID)
	c.SetUserContext(observability.WithUserID(c.UserContext(), userID))
}

// StructuredLogger returns a Fiber middleware for logging requests using slog
func StructuredLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		status := c.Response().StatusCode()
		fields := []any{
			slog.Int("status", status),
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.String("ip", c.IP()),
			slog.Duration("latency", time.Since(start)),
			slog.String("user_agent", c.Get("User-Agent")),
		}
		if loc := c.GetRespHeader(fiber.HeaderLocation); loc != "" {
			fields = append(fields, slog.String("location", loc))
		}

		logger := observability.GlobalLogger
		ctx := requestContext(c)
		if err != nil {
			fields = append(fields, slog.String("error", err.Error()))
			logger.ErrorContext(ctx, "request failed", fields...)
		} else {
			logger.InfoContext(ctx, "request processed", fields...)
		}

		return err
	}
}

func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if uid, ok := c.Locals("userID").(string); ok && uid != "" {
		ctx = observability.WithUserID(ctx, uid)
	}
	return ctx
}
