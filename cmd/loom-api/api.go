package main

import (
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/loomworks/loom/pkg/eventbus"
	"github.com/loomworks/loom/pkg/persistence"
	"github.com/loomworks/loom/pkg/registry"
	"github.com/loomworks/loom/pkg/runner"
	"github.com/loomworks/loom/pkg/services"
	"github.com/loomworks/loom/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	eventBus    eventbus.EventBus
	runner      *runner.Runner
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	registry *registry.Registry,
	eventBus eventbus.EventBus,
	runner *runner.Runner,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		registry:    registry,
		eventBus:    eventBus,
		runner:      runner,
	}
}

func (a *API) App() *fiber.App {
	// The runner's cache is the one that matters at execution time, so
	// definition writes must invalidate that same instance.
	workflowService := services.NewWorkflow(a.persistence, a.registry, a.runner.Plans())
	executionService := services.NewExecution(a.persistence, a.runner)

	handlers := web.NewAPIHandlers(workflowService, executionService, a.registry)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Loom API")
	})

	app.Get("/health", handlers.HealthCheck)

	t := app.Group("/:tenant")

	w := t.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Post("/", handlers.CreateWorkflow)
	w.Post("/validate", handlers.ValidateWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Put("/:id", handlers.UpdateWorkflow)
	w.Delete("/:id", handlers.DeleteWorkflow)
	w.Post("/:id/execute", handlers.ExecuteWorkflow)
	w.Get("/:id/executions", handlers.GetWorkflowExecutions)

	e := t.Group("/executions")
	e.Get("/:id", handlers.GetExecution)
	e.Delete("/:id", handlers.CancelExecution)

	n := t.Group("/nodes")
	n.Get("/", handlers.GetNodeTypes)
	n.Get("/:type", handlers.GetNodeType)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}
