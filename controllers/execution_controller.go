package controller

import (
	"context"
	"errors"

	"outreachly/engine"
	"outreachly/models"
	"outreachly/store"
	"outreachly/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type ExecutionController struct {
	Executions   *store.ExecutionStore
	Orchestrator *engine.Orchestrator
	Executor     *engine.Executor
	Logger       *logrus.Entry
}

func NewExecutionController(executions *store.ExecutionStore, orchestrator *engine.Orchestrator, executor *engine.Executor, logger *logrus.Entry) *ExecutionController {
	return &ExecutionController{
		Executions:   executions,
		Orchestrator: orchestrator,
		Executor:     executor,
		Logger:       logger,
	}
}

type enrollRequest struct {
	Filter models.ProspectFilter `json:"filter"`
}

// Enroll fans the sequence out over the filtered prospect set. Prospects
// already covered are reported as duplicates, not re-enrolled.
func (ec *ExecutionController) Enroll(c *fiber.Ctx) error {
	sequenceID := utils.ParseUint(c.Params("id"))

	var input enrollRequest
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	result, err := ec.Orchestrator.Enroll(c.Context(), sequenceID, input.Filter)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Sequence not found",
			})
		case errors.Is(err, engine.ErrSequenceInactive):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Sequence is not active",
			})
		}
		ec.Logger.WithError(err).Error("batch enrollment failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to enroll prospects",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(result))
}

// GetExecutions lists executions, optionally filtered by sequence_id and
// status query params.
func (ec *ExecutionController) GetExecutions(c *fiber.Ctx) error {
	recs, err := ec.Executions.List(c.Context(),
		utils.ParseUint(c.Query("sequence_id")), c.Query("status"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch executions",
		})
	}
	return c.JSON(recs)
}

func (ec *ExecutionController) GetExecution(c *fiber.Ctx) error {
	rec, err := ec.Executions.Get(c.Context(), utils.ParseUint(c.Params("id")))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Execution not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch execution",
		})
	}
	return c.JSON(rec)
}

// GetStalled lists records stuck after exhausting retries.
func (ec *ExecutionController) GetStalled(c *fiber.Ctx) error {
	recs, err := ec.Executions.Stalled(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch stalled executions",
		})
	}
	return c.JSON(recs)
}

func (ec *ExecutionController) PauseExecution(c *fiber.Ctx) error {
	return ec.transition(c, ec.Executions.Pause)
}

func (ec *ExecutionController) ResumeExecution(c *fiber.Ctx) error {
	return ec.transition(c, ec.Executions.Resume)
}

// CancelExecution is idempotent: cancelling a terminal record succeeds
// without changing it.
func (ec *ExecutionController) CancelExecution(c *fiber.Ctx) error {
	return ec.transition(c, ec.Executions.Cancel)
}

// RunDue triggers one scheduler pass on demand, for external cron/queue
// drivers that prefer pull over the in-process ticker.
func (ec *ExecutionController) RunDue(c *fiber.Ctx) error {
	advanced := ec.Executor.ProcessDue(c.Context())
	return c.JSON(fiber.Map{
		"advanced": advanced,
	})
}

func (ec *ExecutionController) transition(c *fiber.Ctx, op func(ctx context.Context, id uint) (*models.ExecutionRecord, error)) error {
	rec, err := op(c.Context(), utils.ParseUint(c.Params("id")))
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Execution not found",
			})
		case errors.Is(err, store.ErrInvalidTransition):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "Transition not allowed from current status",
			})
		}
		ec.Logger.WithError(err).Error("execution transition failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update execution",
		})
	}
	return c.JSON(utils.SuccessResponse(rec))
}
