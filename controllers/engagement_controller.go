package controller

import (
	"errors"
	"time"

	"outreachly/config"
	"outreachly/engine"
	"outreachly/models"
	"outreachly/store"
	"outreachly/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// 1x1 transparent GIF served for open-tracking pixels.
var trackingPixel = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
	0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

type EngagementController struct {
	Engagement *store.EngagementStore
	Executions *store.ExecutionStore
	Logger     *logrus.Entry
}

func NewEngagementController(engagement *store.EngagementStore, executions *store.ExecutionStore, logger *logrus.Entry) *EngagementController {
	return &EngagementController{
		Engagement: engagement,
		Executions: executions,
		Logger:     logger,
	}
}

type engagementEventRequest struct {
	ProspectID uint   `json:"prospect_id" validate:"required"`
	Type       string `json:"type" validate:"required"`
	Sentiment  string `json:"sentiment" validate:"omitempty,oneof=positive neutral negative"`
}

// RecordEvent ingests an engagement event from an external signal source
// (reply webhook, meeting scheduler, CRM sync). A reply also unblocks
// response-gated steps on the prospect's live executions.
func (gc *EngagementController) RecordEvent(c *fiber.Ctx) error {
	var input engagementEventRequest
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
	if !models.ValidEngagementType(input.Type) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unknown engagement event type",
		})
	}

	now := time.Now()
	event := models.EngagementEvent{
		ProspectID: input.ProspectID,
		Type:       input.Type,
		OccurredAt: now,
		Sentiment:  input.Sentiment,
	}
	if err := gc.Engagement.Record(c.Context(), &event); err != nil {
		gc.Logger.WithError(err).Error("failed to record engagement event")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to record event",
		})
	}

	if input.Type == models.EngagementReply {
		updated, err := gc.Executions.MarkResponded(c.Context(), input.ProspectID, input.Sentiment, now)
		if err != nil {
			gc.Logger.WithError(err).Warn("failed to mark executions responded")
		} else if updated > 0 {
			gc.Logger.WithFields(logrus.Fields{
				"prospect_id": input.ProspectID,
				"executions":  updated,
			}).Info("reply recorded on live executions")
		}
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(event))
}

// GetEngagement returns a prospect's event history and current score.
func (gc *EngagementController) GetEngagement(c *fiber.Ctx) error {
	prospectID := utils.ParseUint(c.Params("id"))

	events, err := gc.Engagement.EventsFor(c.Context(), prospectID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch engagement events",
		})
	}

	return c.JSON(fiber.Map{
		"prospect_id": prospectID,
		"score":       engine.Score(events, time.Now(), config.AppConfig.Engine.EngagementHalfLife),
		"events":      events,
	})
}

// HandleOpenTracking serves the tracking pixel and records an open for
// the message's prospect.
func (gc *EngagementController) HandleOpenTracking(c *fiber.Ctx) error {
	gc.recordTrackedEvent(c, models.EngagementOpen)

	c.Set("Content-Type", "image/gif")
	c.Set("Cache-Control", "no-store")
	return c.Send(trackingPixel)
}

// HandleClickTracking records a click and redirects to the original URL.
func (gc *EngagementController) HandleClickTracking(c *fiber.Ctx) error {
	gc.recordTrackedEvent(c, models.EngagementClick)

	target := c.Query("url")
	if target == "" {
		return c.SendStatus(fiber.StatusBadRequest)
	}
	return c.Redirect(target, fiber.StatusFound)
}

// recordTrackedEvent resolves the message ID to a delivery and records
// the event. Tracking is best-effort: unknown message IDs are ignored so
// the pixel/redirect always works.
func (gc *EngagementController) recordTrackedEvent(c *fiber.Ctx, eventType string) {
	messageID := c.Params("messageID")

	delivery, err := gc.Engagement.DeliveryByMessageID(c.Context(), messageID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			gc.Logger.WithError(err).Warn("delivery lookup failed")
		}
		return
	}

	event := models.EngagementEvent{
		ProspectID: delivery.ProspectID,
		Type:       eventType,
		OccurredAt: time.Now(),
	}
	if err := gc.Engagement.Record(c.Context(), &event); err != nil {
		gc.Logger.WithError(err).Warn("failed to record tracked event")
	}
}
