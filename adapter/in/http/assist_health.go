package http

import (
	"context"
	"time"

	"assist_server/pkg/metrics"

	"github.com/gofiber/fiber/v2"
)

// HealthChecker is anything /ready should ping.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to HealthChecker.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type HealthHandler struct {
	checks  map[string]HealthChecker
	stats   map[string]func() any
	latency *metrics.LatencyRegistry
}

func NewHealthHandler(checks map[string]HealthChecker, latency *metrics.LatencyRegistry) *HealthHandler {
	if checks == nil {
		checks = map[string]HealthChecker{}
	}
	return &HealthHandler{checks: checks, stats: map[string]func() any{}, latency: latency}
}

// WithStats adds a connection pool snapshot to /health under name.
func (h *HealthHandler) WithStats(name string, fn func() any) *HealthHandler {
	h.stats[name] = fn
	return h
}

func (h *HealthHandler) Register(app *fiber.App) {
	app.Get("/health", h.Health)
	app.Get("/ready", h.Ready)
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	resp := fiber.Map{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if pools := metrics.GetAllPoolHealth(); len(pools) > 0 {
		resp["db_pools"] = pools
	}
	if len(h.stats) > 0 {
		stats := make(map[string]any, len(h.stats))
		for name, fn := range h.stats {
			stats[name] = fn()
		}
		resp["pools"] = stats
	}
	if h.latency != nil {
		latency := make(map[string]map[string]any)
		for route, stats := range h.latency.AllStats() {
			latency[route] = stats.ToMap()
		}
		resp["latency"] = latency
	}
	return c.JSON(resp)
}

func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string, len(h.checks))
	allHealthy := true
	for name, checker := range h.checks {
		if err := checker.Ping(ctx); err != nil {
			checks[name] = "unhealthy: " + err.Error()
			allHealthy = false
			continue
		}
		checks[name] = "healthy"
	}

	status := "ready"
	statusCode := fiber.StatusOK
	if !allHealthy {
		status = "not ready"
		statusCode = fiber.StatusServiceUnavailable
	}

	return c.Status(statusCode).JSON(fiber.Map{
		"status":    status,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
