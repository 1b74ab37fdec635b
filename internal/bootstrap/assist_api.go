package bootstrap

import (
	"context"
	"strings"
	"time"

	"assist_server/adapter/in/http"
	"assist_server/config"
	"assist_server/infra/database"
	"assist_server/infra/middleware"
	"assist_server/pkg/logger"
	"assist_server/pkg/metrics"
	"assist_server/pkg/ratelimit"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

// multipart framing on top of the raw file bytes
const uploadOverhead = 1 << 20

func NewAPI(cfg *config.Config) (*fiber.App, func(), error) {
	deps, cleanup, err := NewDependencies(cfg)
	if err != nil {
		logger.WithError(err).Error("failed to initialize dependencies")
		return nil, nil, err
	}

	app := newApp(cfg)
	latency := metrics.NewLatencyRegistry(1000)

	app.Use(middleware.Recover())
	app.Use(middleware.RequestID())
	app.Use(middleware.SecurityHeaders())
	app.Use(middleware.RequestLogger(latency))
	app.Use(compress.New(compress.Config{Level: compress.LevelBestSpeed}))
	app.Use(cors.New(corsConfig(cfg)))

	http.NewHealthHandler(map[string]http.HealthChecker{
		"postgres": http.PingFunc(deps.DB.Ping),
		"redis":    http.PingFunc(func(ctx context.Context) error { return deps.Redis.Ping(ctx).Err() }),
		"mongodb":  http.PingFunc(func(ctx context.Context) error { return deps.MongoDB.Ping(ctx, nil) }),
	}, latency).
		WithStats("pgx", func() any { return database.GetPoolStats(deps.DB) }).
		WithStats("redis", func() any { return database.GetRedisStats(deps.Redis) }).
		Register(app)

	api := app.Group("/api/v1")
	api.Use(middleware.JWTAuth(middleware.AuthConfig{
		Secret:    cfg.JWTSecret,
		Blacklist: middleware.NewTokenBlacklist(deps.Redis),
	}))
	api.Use(middleware.NoCache())

	local := ratelimit.NewLocalLimiter(cfg.RateLimitPerMinute, time.Minute)
	api.Use(middleware.RateLimit(ratelimit.NewSlidingWindowLimiter(deps.Redis, cfg.RateLimitPerMinute, time.Minute, local)))
	stopCleanup := runEvery(time.Minute, local.Cleanup)

	http.NewDocumentHandler(deps.DocumentService, int64(cfg.IngestMaxUploadBytes)).Register(api)
	http.NewRetrievalHandler(deps.RetrievalService, deps.DraftService).Register(api)
	http.NewCanonicalQAHandler(deps.CanonicalService).Register(api)

	logger.Info("API server initialized")

	return app, func() {
		stopCleanup()
		cleanup()
	}, nil
}

func newApp(cfg *config.Config) *fiber.App {
	return fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: cfg.IsProduction(),

		ReadBufferSize:  16384,
		WriteBufferSize: 16384,

		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,

		BodyLimit: cfg.IngestMaxUploadBytes + uploadOverhead,

		ServerHeader:       "",
		DisableDefaultDate: true,
		ReadTimeout:        30 * time.Second,
		WriteTimeout:       2 * time.Minute,
		IdleTimeout:        2 * time.Minute,
	})
}

func corsConfig(cfg *config.Config) cors.Config {
	allowOrigins := strings.Join(cfg.AllowedOrigins, ",")
	allowCredentials := true
	if allowOrigins == "" || allowOrigins == "*" {
		// "*" with credentials is rejected by browsers
		if cfg.IsProduction() {
			allowOrigins = ""
			allowCredentials = false
		} else {
			allowOrigins = "http://localhost:3000,http://localhost:5173"
		}
	}
	return cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     "GET,POST,PUT,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-Request-ID",
		ExposeHeaders:    "X-Request-ID,X-RateLimit-Limit,X-RateLimit-Remaining,X-RateLimit-Reset",
		AllowCredentials: allowCredentials,
		MaxAge:           86400,
	}
}

// runEvery calls fn on every tick until the returned stop func is called.
func runEvery(interval time.Duration, fn func()) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				fn()
			case <-done:
				return
			}
		}
	}()
	return func() { close(done) }
}
