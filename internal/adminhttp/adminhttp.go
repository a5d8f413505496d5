// Package adminhttp is the small ambient HTTP surface next to the
// encrypted TCP chat listener: a health endpoint for load balancers
// and orchestrators. It reuses the teacher's Fiber middleware stack
// (request ID, panic recovery, centralized error JSON) from
// cmd/api/main.go and internal/middleware, generalized from the
// teacher's REST API surface to this server's one admin concern.
package adminhttp

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"

	"predictrix/server/internal/cache"
	"predictrix/server/internal/config"
	"predictrix/server/internal/store"
)

// Server wraps the Fiber app exposing /healthz.
type Server struct {
	app       *fiber.App
	cfg       *config.Config
	store     *store.Store
	cache     cache.Service
	startedAt time.Time
}

// New builds the admin HTTP server, wiring health checks against the
// store and cache the way the teacher's HealthHandler wires the RAG
// client and worker pool.
func New(cfg *config.Config, st *store.Store, c cache.Service) *Server {
	s := &Server{cfg: cfg, store: st, cache: c, startedAt: time.Now()}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})
	app.Use(recover.New())
	app.Use(requestID())
	app.Get("/healthz", s.handleHealth)
	s.app = app
	return s
}

// requestID stamps every admin request with a correlation ID,
// mirroring the teacher's middleware.RequestID.
func requestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		c.Locals("requestID", id)
		c.Set("X-Request-ID", id)
		return c.Next()
	}
}

// errorHandler replaces the teacher's AppError/StatusCodes
// translation (which doesn't apply here - this surface has one route
// and no client-facing error taxonomy) with a flat JSON envelope.
func errorHandler(c *fiber.Ctx, err error) error {
	slog.Error("adminhttp: request failed", "path", c.Path(), "error", err)
	code := fiber.StatusInternalServerError
	if fe, ok := err.(*fiber.Error); ok {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
	defer cancel()

	dbStatus := "ok"
	if err := s.store.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}
	cacheStatus := "ok"
	if err := s.cache.Set(ctx, "healthz:probe", "1", 5*time.Second); err != nil {
		cacheStatus = "unhealthy"
	}

	return c.JSON(fiber.Map{
		"status":      "ok",
		"uptime":      time.Since(s.startedAt).String(),
		"environment": s.cfg.Server.Environment,
		"database":    dbStatus,
		"cache":       cacheStatus,
	})
}

// Listen starts the HTTP server, blocking until it stops.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
