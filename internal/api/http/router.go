package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/webdesk/internal/api/http/handlers"
	"github.com/spec-kit/webdesk/internal/auth"
	"github.com/spec-kit/webdesk/internal/domain"
	"github.com/spec-kit/webdesk/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Realtime       *handlers.RealtimeHandler
	AuthMiddleware *auth.AuthMiddleware
	// Metrics is served on /metrics when set.
	Metrics *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle)
	tickets.Post("/", auth.RequireRole(domain.UserRoleAdmin, domain.UserRoleClient), cfg.Tickets.CreateTicket)
	tickets.Get("/", auth.RequireRole(), cfg.Tickets.ListTickets)
	tickets.Get("/stats", auth.RequireRole(), cfg.Tickets.Stats)
	tickets.Get("/:id", auth.RequireRole(), cfg.Tickets.GetTicket)
	tickets.Patch("/:id", auth.RequireRole(domain.UserRoleAdmin), cfg.Tickets.UpdateTicket)
	tickets.Delete("/:id", auth.RequireRole(domain.UserRoleAdmin), cfg.Tickets.DeleteTicket)

	tickets.Patch("/:id/start", auth.RequireRole(domain.UserRoleDeveloper), cfg.Tickets.StartTicket)
	tickets.Patch("/:id/finish", auth.RequireRole(domain.UserRoleDeveloper), cfg.Tickets.FinishTicket)
	tickets.Patch("/:id/approve", auth.RequireRole(domain.UserRoleAdmin, domain.UserRoleValidator), cfg.Tickets.ApproveTicket)
	tickets.Patch("/:id/reject", auth.RequireRole(domain.UserRoleAdmin, domain.UserRoleValidator), cfg.Tickets.RejectTicket)

	tickets.Get("/:id/history", auth.RequireRole(), cfg.Tickets.ListHistory)
	tickets.Get("/:id/work-logs", auth.RequireRole(), cfg.Tickets.ListWorkLogs)
	tickets.Get("/:id/work-logs/total-time", auth.RequireRole(), cfg.Tickets.WorkTotals)
	tickets.Get("/:id/reviews", auth.RequireRole(), cfg.Tickets.ListReviews)

	if cfg.Realtime != nil {
		app.Get("/ws/tickets", cfg.AuthMiddleware.Handle, cfg.Realtime.Upgrade, cfg.Realtime.Stream())
	}
}
