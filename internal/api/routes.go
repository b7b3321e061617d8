package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/maheshrc27/postflow/internal/api/handlers"
	"github.com/maheshrc27/postflow/internal/api/middleware"
	"github.com/maheshrc27/postflow/internal/metrics"
)

const PublishRoute = "/functions/publish-scheduled-posts"

type Routes struct {
	Job    *handlers.JobHandler
	Health *handlers.HealthHandler
	Auth   *middleware.AuthMiddleware
}

func SetupRoutes(app *fiber.App, r Routes) {
	app.Get("/health", r.Health.Health)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	app.All(PublishRoute, middleware.CORS(), r.Auth.SchedulerAuth(), r.Job.RunPublishJob)
}
