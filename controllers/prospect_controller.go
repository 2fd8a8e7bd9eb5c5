package controller

import (
	"errors"

	"outreachly/models"
	"outreachly/store"
	"outreachly/utils"

	"github.com/badoux/checkmail"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type ProspectController struct {
	Prospects *store.ProspectStore
	Logger    *logrus.Entry
}

func NewProspectController(prospects *store.ProspectStore, logger *logrus.Entry) *ProspectController {
	return &ProspectController{
		Prospects: prospects,
		Logger:    logger,
	}
}

type prospectRequest struct {
	Email     string   `json:"email" validate:"required,email"`
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	Company   string   `json:"company"`
	Position  string   `json:"position"`
	Status    string   `json:"status" validate:"omitempty,oneof=new contacted qualified customer"`
	Category  string   `json:"category"`
	Priority  string   `json:"priority" validate:"omitempty,oneof=low medium high"`
	Tags      []string `json:"tags"`
}

func (pc *ProspectController) CreateProspect(c *fiber.Ctx) error {
	var input prospectRequest
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
	if err := checkmail.ValidateFormat(input.Email); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid email address",
		})
	}

	if _, err := pc.Prospects.GetByEmail(c.Context(), input.Email); err == nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Prospect with this email already exists",
		})
	} else if !errors.Is(err, store.ErrNotFound) {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create prospect",
		})
	}

	prospect := models.Prospect{
		Email:     input.Email,
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Company:   input.Company,
		Position:  input.Position,
		Status:    input.Status,
		Category:  input.Category,
		Priority:  input.Priority,
	}
	if prospect.Status == "" {
		prospect.Status = "new"
	}
	for _, tag := range input.Tags {
		prospect.Tags = append(prospect.Tags, models.ProspectTag{Tag: tag})
	}

	if err := pc.Prospects.Create(c.Context(), &prospect); err != nil {
		pc.Logger.WithError(err).Error("failed to create prospect")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create prospect",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(prospect))
}

func (pc *ProspectController) GetProspects(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}

	prospects, total, err := pc.Prospects.List(c.Context(), limit, (page-1)*limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch prospects",
		})
	}

	return c.JSON(utils.PaginatedResponse{
		Data:  prospects,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

func (pc *ProspectController) GetProspect(c *fiber.Ctx) error {
	prospect, err := pc.Prospects.Get(c.Context(), utils.ParseUint(c.Params("id")))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Prospect not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch prospect",
		})
	}
	return c.JSON(prospect)
}

type updateProspectRequest struct {
	FirstName      *string `json:"first_name"`
	LastName       *string `json:"last_name"`
	Company        *string `json:"company"`
	Position       *string `json:"position"`
	Status         *string `json:"status" validate:"omitempty,oneof=new contacted qualified customer"`
	Category       *string `json:"category"`
	Priority       *string `json:"priority" validate:"omitempty,oneof=low medium high"`
	IsUnsubscribed *bool   `json:"is_unsubscribed"`
	IsDoNotContact *bool   `json:"is_do_not_contact"`
}

func (pc *ProspectController) UpdateProspect(c *fiber.Ctx) error {
	prospect, err := pc.Prospects.Get(c.Context(), utils.ParseUint(c.Params("id")))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Prospect not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch prospect",
		})
	}

	var input updateProspectRequest
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

	if input.FirstName != nil {
		prospect.FirstName = *input.FirstName
	}
	if input.LastName != nil {
		prospect.LastName = *input.LastName
	}
	if input.Company != nil {
		prospect.Company = *input.Company
	}
	if input.Position != nil {
		prospect.Position = *input.Position
	}
	if input.Status != nil {
		prospect.Status = *input.Status
	}
	if input.Category != nil {
		prospect.Category = *input.Category
	}
	if input.Priority != nil {
		prospect.Priority = *input.Priority
	}
	if input.IsUnsubscribed != nil {
		prospect.IsUnsubscribed = *input.IsUnsubscribed
	}
	if input.IsDoNotContact != nil {
		prospect.IsDoNotContact = *input.IsDoNotContact
	}

	if err := pc.Prospects.Update(c.Context(), prospect); err != nil {
		pc.Logger.WithError(err).Error("failed to update prospect")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update prospect",
		})
	}
	return c.JSON(utils.SuccessResponse(prospect))
}
