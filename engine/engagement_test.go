package engine

import (
	"testing"
	"time"

	"outreachly/models"

	"github.com/stretchr/testify/assert"
)

func TestScoreEmptyHistoryIsZero(t *testing.T) {
	now := time.Now()
	assert.Zero(t, Score(nil, now, DefaultEngagementHalfLife))
}

func TestScoreFreshEventsUseFullWeight(t *testing.T) {
	now := time.Now()

	score := Score([]models.EngagementEvent{
		{Type: models.EngagementOpen, OccurredAt: now},
	}, now, DefaultEngagementHalfLife)
	assert.InDelta(t, 0.1, score, 1e-9)

	score = Score([]models.EngagementEvent{
		{Type: models.EngagementOpen, OccurredAt: now},
		{Type: models.EngagementClick, OccurredAt: now},
	}, now, DefaultEngagementHalfLife)
	assert.InDelta(t, 0.4, score, 1e-9)
}

func TestScoreDecaysByHalfLife(t *testing.T) {
	now := time.Now()
	halfLife := 7 * 24 * time.Hour

	score := Score([]models.EngagementEvent{
		{Type: models.EngagementReply, OccurredAt: now.Add(-halfLife)},
	}, now, halfLife)
	assert.InDelta(t, 0.3, score, 1e-9)

	score = Score([]models.EngagementEvent{
		{Type: models.EngagementReply, OccurredAt: now.Add(-2 * halfLife)},
	}, now, halfLife)
	assert.InDelta(t, 0.15, score, 1e-9)
}

func TestScoreClampsToOne(t *testing.T) {
	now := time.Now()
	score := Score([]models.EngagementEvent{
		{Type: models.EngagementMeeting, OccurredAt: now},
		{Type: models.EngagementMeeting, OccurredAt: now},
	}, now, DefaultEngagementHalfLife)
	assert.Equal(t, 1.0, score)
}

func TestScoreIgnoresUnknownEventTypes(t *testing.T) {
	now := time.Now()
	score := Score([]models.EngagementEvent{
		{Type: "bounce", OccurredAt: now},
	}, now, DefaultEngagementHalfLife)
	assert.Zero(t, score)
}

func TestScoreTreatsFutureEventsAsFresh(t *testing.T) {
	now := time.Now()
	score := Score([]models.EngagementEvent{
		{Type: models.EngagementClick, OccurredAt: now.Add(time.Hour)},
	}, now, DefaultEngagementHalfLife)
	assert.InDelta(t, 0.3, score, 1e-9)
}

func TestScoreIsDeterministic(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	events := []models.EngagementEvent{
		{Type: models.EngagementOpen, OccurredAt: now.Add(-48 * time.Hour)},
		{Type: models.EngagementReply, OccurredAt: now.Add(-24 * time.Hour)},
	}
	assert.Equal(t,
		Score(events, now, DefaultEngagementHalfLife),
		Score(events, now, DefaultEngagementHalfLife))
}
