package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/cbc-grading-api/internal/config"
	"github.com/noah-isme/cbc-grading-api/internal/handler"
	"github.com/noah-isme/cbc-grading-api/internal/middleware"
	"github.com/noah-isme/cbc-grading-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	CBCHandler          *handler.CBCHandler
	GradingHandler      *handler.GradingHandler
	MasteryHandler      *handler.MasteryHandler
	NotificationHandler *handler.NotificationHandler
	ActivityHandler     *handler.ActivityHandler
	JWTMiddleware       fiber.Handler
	// CommitLimiter guards the routes that write grades.
	CommitLimiter fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group(middleware.APIPrefix, func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))
	api.Get("/metrics", observability.MetricsHandler())

	if deps.CBCHandler != nil {
		deps.CBCHandler.Register(api.Group("/cbc"))
	}

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	grading := api.Group("/grading", jwtMiddleware, middleware.RequireRole(middleware.AuthRoleTeacher, middleware.AuthRoleAdmin))
	if deps.GradingHandler != nil {
		var guards []fiber.Handler
		if deps.CommitLimiter != nil {
			guards = append(guards, deps.CommitLimiter)
		}
		deps.GradingHandler.Register(grading.Group("/sessions"), guards...)
	}
	if deps.ActivityHandler != nil {
		deps.ActivityHandler.Register(grading.Group("/activity"))
	}

	if deps.MasteryHandler != nil {
		deps.MasteryHandler.Register(api.Group("/students", jwtMiddleware))
	}

	if deps.NotificationHandler != nil {
		notifications := api.Group("/notifications", jwtMiddleware, middleware.RequireRole(middleware.AuthRoleTeacher, middleware.AuthRoleAdmin))
		deps.NotificationHandler.Register(notifications)
	}
}
