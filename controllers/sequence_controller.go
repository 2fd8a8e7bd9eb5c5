package controller

import (
	"errors"

	"outreachly/models"
	"outreachly/store"
	"outreachly/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type SequenceController struct {
	Sequences *store.SequenceStore
	Logger    *logrus.Entry
}

func NewSequenceController(sequences *store.SequenceStore, logger *logrus.Entry) *SequenceController {
	return &SequenceController{
		Sequences: sequences,
		Logger:    logger,
	}
}

type stepInput struct {
	MessageType string                 `json:"message_type" validate:"required"`
	Tone        string                 `json:"tone" validate:"required"`
	DelayDays   int                    `json:"delay_days"`
	Template    string                 `json:"template" validate:"required"`
	Conditions  *models.StepConditions `json:"conditions"`
}

type createSequenceRequest struct {
	Name        string      `json:"name" validate:"required,max=200"`
	Description string      `json:"description"`
	Steps       []stepInput `json:"steps" validate:"required,min=1"`
}

// CreateSequence validates and stores a new sequence definition. Invalid
// step data is rejected here, never at execution time.
func (sc *SequenceController) CreateSequence(c *fiber.Ctx) error {
	var input createSequenceRequest
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := utils.ValidateStruct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	seq := models.SequenceDefinition{
		Name:        input.Name,
		Description: input.Description,
		Steps:       stepsFromInput(input.Steps),
	}

	if err := sc.Sequences.Create(c.Context(), &seq); err != nil {
		var invalid *models.InvalidSequenceError
		if errors.As(err, &invalid) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": invalid.Error(),
			})
		}
		sc.Logger.WithError(err).Error("failed to create sequence")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create sequence",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(seq))
}

func (sc *SequenceController) GetSequences(c *fiber.Ctx) error {
	seqs, err := sc.Sequences.List(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch sequences",
		})
	}
	return c.JSON(seqs)
}

func (sc *SequenceController) GetSequence(c *fiber.Ctx) error {
	seq, err := sc.Sequences.Get(c.Context(), utils.ParseUint(c.Params("id")))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Sequence not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch sequence",
		})
	}
	return c.JSON(seq)
}

type updateSequenceRequest struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Steps       []stepInput `json:"steps"`
}

// UpdateSequence changes metadata freely; step structure only while no
// live execution references the sequence.
func (sc *SequenceController) UpdateSequence(c *fiber.Ctx) error {
	id := utils.ParseUint(c.Params("id"))

	var input updateSequenceRequest
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	seq, err := sc.Sequences.UpdateMeta(c.Context(), id, input.Name, input.Description)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Sequence not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update sequence",
		})
	}

	if len(input.Steps) > 0 {
		seq, err = sc.Sequences.ReplaceSteps(c.Context(), id, stepsFromInput(input.Steps))
		if err != nil {
			switch {
			case errors.Is(err, store.ErrSequenceInUse):
				return c.Status(fiber.StatusConflict).JSON(fiber.Map{
					"error": "Sequence steps cannot change while executions reference them",
				})
			default:
				var invalid *models.InvalidSequenceError
				if errors.As(err, &invalid) {
					return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
						"error": invalid.Error(),
					})
				}
				sc.Logger.WithError(err).Error("failed to replace sequence steps")
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"error": "Failed to update sequence steps",
				})
			}
		}
	}

	return c.JSON(utils.SuccessResponse(seq))
}

type activateRequest struct {
	Active bool `json:"active"`
}

// ActivateSequence publishes (or retires) a sequence.
func (sc *SequenceController) ActivateSequence(c *fiber.Ctx) error {
	var input activateRequest
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	seq, err := sc.Sequences.SetActive(c.Context(), utils.ParseUint(c.Params("id")), input.Active)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Sequence not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update sequence",
		})
	}
	return c.JSON(utils.SuccessResponse(seq))
}

func stepsFromInput(inputs []stepInput) []models.SequenceStep {
	steps := make([]models.SequenceStep, len(inputs))
	for i, in := range inputs {
		steps[i] = models.SequenceStep{
			StepNumber:  i,
			MessageType: in.MessageType,
			Tone:        in.Tone,
			DelayDays:   in.DelayDays,
			Template:    in.Template,
			Conditions:  in.Conditions,
		}
	}
	return steps
}
