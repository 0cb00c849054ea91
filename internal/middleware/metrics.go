package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PageOutcomes counts page-route results by route and outcome (view, redirect, error).
	PageOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "replied_page_outcomes_total",
		Help: "Page route results by route and outcome",
	}, []string{"route", "outcome"})

	// NoticesEmitted counts notices attached to view models by level.
	NoticesEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "replied_notices_emitted_total",
		Help: "Notices attached to responses by level",
	}, []string{"level"})

	// SlowRequests counts requests slower than the slow threshold.
	SlowRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "replied_slow_requests_total",
		Help: "Requests slower than one second by route",
	}, []string{"route"})
)

var (
	promOnce sync.Once
	prom     *fiberprometheus.FiberPrometheus
)

// InitMetrics returns the process-wide fiberprometheus collector. Its
// collectors live in the default registry, so it is built only once.
func InitMetrics(serviceName string) *fiberprometheus.FiberPrometheus {
	promOnce.Do(func() {
		prom = fiberprometheus.New(serviceName)
	})
	return prom
}

// MetricsMiddleware classifies page outcomes after the handler runs.
func MetricsMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		route := c.Route().Path
		if time.Since(start) > time.Second {
			SlowRequests.WithLabelValues(route).Inc()
		}

		status := c.Response().StatusCode()
		outcome := "view"
		switch {
		case err != nil || status >= 500:
			outcome = "error"
		case status == fiber.StatusSeeOther || status == fiber.StatusFound:
			outcome = "redirect"
		case status >= 400:
			outcome = "rejected_" + strconv.Itoa(status)
		}
		PageOutcomes.WithLabelValues(route, outcome).Inc()
		return err
	}
}
