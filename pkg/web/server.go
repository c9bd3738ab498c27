package web

import (
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/heraldhq/herald/pkg/campaign"
	"github.com/heraldhq/herald/pkg/metrics"
	"github.com/heraldhq/herald/pkg/persistence"
	"github.com/heraldhq/herald/pkg/queue"
	"github.com/heraldhq/herald/pkg/workflow"
)

type API struct {
	handlers *APIHandlers
	app      *fiber.App
}

func NewAPI(
	q *queue.Queue,
	engine *workflow.Engine,
	campaigns *campaign.Runner,
	persist persistence.Persistence,
	log *slog.Logger,
) *API {
	return &API{
		handlers: NewAPIHandlers(q, engine, campaigns, persist, log),
	}
}

func (a *API) App() *fiber.App {
	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Herald API")
	})

	q := app.Group("/queue")
	q.Get("/items", a.handlers.GetQueueItems)
	q.Post("/items", a.handlers.CreateQueueItem)
	q.Get("/items/:id", a.handlers.GetQueueItem)
	q.Post("/items/:id/cancel", a.handlers.CancelQueueItem)
	q.Post("/items/:id/retry", a.handlers.RetryQueueItem)
	q.Patch("/items/:id/reschedule", a.handlers.RescheduleQueueItem)
	q.Delete("/items/:id", a.handlers.DeleteQueueItem)
	q.Get("/stats", a.handlers.GetQueueStats)
	q.Get("/health", a.handlers.GetQueueHealth)

	w := app.Group("/workflows")
	w.Get("/", a.handlers.GetWorkflows)
	w.Post("/", a.handlers.CreateWorkflow)
	w.Get("/:id", a.handlers.GetWorkflow)
	w.Patch("/:id", a.handlers.UpdateWorkflow)
	w.Delete("/:id", a.handlers.DeleteWorkflow)
	w.Post("/:id/pause", a.handlers.PauseWorkflow)
	w.Post("/:id/resume", a.handlers.ResumeWorkflow)

	app.Get("/executions", a.handlers.GetExecutions)
	app.Post("/events", a.handlers.IngestEvent)

	ca := app.Group("/campaigns")
	ca.Get("/", a.handlers.GetCampaigns)
	ca.Get("/:id", a.handlers.GetCampaign)
	ca.Post("/:id/send", a.handlers.SendCampaign)
	ca.Post("/:id/pause", a.handlers.PauseCampaign)
	ca.Post("/:id/resume", a.handlers.ResumeCampaign)

	app.Get("/health", a.handlers.HealthCheck)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	a.app = app

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}

// Shutdown drains in-flight requests before returning.
func (a *API) Shutdown() error {
	if a.app == nil {
		return nil
	}

	return a.app.Shutdown()
}
