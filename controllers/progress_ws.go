package controller

import (
	"context"
	"time"

	"outreachly/models"
	"outreachly/store"

	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
)

type ProgressController struct {
	Executions *store.ExecutionStore
	Logger     *logrus.Entry
}

func NewProgressController(executions *store.ExecutionStore, logger *logrus.Entry) *ProgressController {
	return &ProgressController{
		Executions: executions,
		Logger:     logger,
	}
}

type progressUpdate struct {
	SequenceID uint             `json:"sequence_id"`
	Counts     map[string]int64 `json:"counts"`
	Done       bool             `json:"done"`
}

// HandleProgressWS streams per-status execution counts for a sequence
// until every execution is terminal or the client disconnects.
func (pc *ProgressController) HandleProgressWS(c *websocket.Conn) {
	defer c.Close()

	var input struct {
		SequenceID uint `json:"sequence_id"`
	}
	if err := c.ReadJSON(&input); err != nil {
		pc.Logger.WithError(err).Debug("progress socket: bad subscribe message")
		return
	}

	for {
		counts, err := pc.Executions.CountByStatus(context.Background(), input.SequenceID)
		if err != nil {
			pc.Logger.WithError(err).Warn("progress socket: count query failed")
			return
		}

		update := progressUpdate{
			SequenceID: input.SequenceID,
			Counts:     counts,
			Done:       counts[models.ExecutionActive] == 0 && counts[models.ExecutionPaused] == 0,
		}
		if err := c.WriteJSON(update); err != nil {
			return
		}
		if update.Done {
			return
		}

		time.Sleep(3 * time.Second)
	}
}
