package routes

import (
	controller "outreachly/controllers"
	"outreachly/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
)

// Controllers bundles the constructed handlers so main can wire stores
// and the engine once and hand everything to the router.
type Controllers struct {
	Sequences  *controller.SequenceController
	Executions *controller.ExecutionController
	Prospects  *controller.ProspectController
	Engagement *controller.EngagementController
	Progress   *controller.ProgressController
}

func SetupRoutes(app *fiber.App, ctrl Controllers) {
	app.Use(middleware.CORS())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// API group with versioning and request logging
	api := app.Group("/api/v1", logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	// Sequence routes. The progress WebSocket must be registered before
	// the :id route or fiber matches "progress" as an id.
	sequence := api.Group("/sequences")
	app.Get("/api/v1/sequences/progress", websocket.New(func(c *websocket.Conn) {
		ctrl.Progress.HandleProgressWS(c)
	}))
	sequence.Post("/", ctrl.Sequences.CreateSequence)
	sequence.Get("/", ctrl.Sequences.GetSequences)
	sequence.Get("/:id", ctrl.Sequences.GetSequence)
	sequence.Put("/:id", ctrl.Sequences.UpdateSequence)
	sequence.Post("/:id/activate", ctrl.Sequences.ActivateSequence)
	sequence.Post("/:id/enroll", ctrl.Executions.Enroll)

	// Execution routes
	execution := api.Group("/executions")
	execution.Get("/", ctrl.Executions.GetExecutions)
	execution.Get("/stalled", ctrl.Executions.GetStalled)
	execution.Get("/:id", ctrl.Executions.GetExecution)
	execution.Post("/:id/pause", ctrl.Executions.PauseExecution)
	execution.Post("/:id/resume", ctrl.Executions.ResumeExecution)
	execution.Post("/:id/cancel", ctrl.Executions.CancelExecution)
	execution.Post("/run-due", ctrl.Executions.RunDue)

	// Prospect routes
	prospect := api.Group("/prospects")
	prospect.Post("/", ctrl.Prospects.CreateProspect)
	prospect.Get("/", ctrl.Prospects.GetProspects)
	prospect.Get("/:id", ctrl.Prospects.GetProspect)
	prospect.Put("/:id", ctrl.Prospects.UpdateProspect)
	prospect.Get("/:id/engagement", ctrl.Engagement.GetEngagement)

	// Engagement event ingestion (webhooks, CRM sync)
	api.Post("/engagement/events", ctrl.Engagement.RecordEvent)

	// Public tracking endpoints, rate limited
	track := app.Group("/track", middleware.TrackingRateLimiter())
	track.Get("/open/:messageID/:token", ctrl.Engagement.HandleOpenTracking)
	track.Get("/click/:messageID/:token", ctrl.Engagement.HandleClickTracking)

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "Not Found",
			"message": "The requested resource was not found",
		})
	})
}
