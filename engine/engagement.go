package engine

import (
	"math"
	"time"

	"outreachly/models"
)

// Per-event weights, ordered by signal strength. A single meeting maxes
// the score on its own.
var engagementWeights = map[string]float64{
	models.EngagementOpen:    0.1,
	models.EngagementClick:   0.3,
	models.EngagementReply:   0.6,
	models.EngagementMeeting: 1.0,
}

// DefaultEngagementHalfLife is used when no half-life is configured.
const DefaultEngagementHalfLife = 7 * 24 * time.Hour

// Score computes a prospect's engagement score in [0,1] from their event
// history. Each event contributes its type weight decayed exponentially
// by age: a contribution halves every halfLife. Pure function; same
// inputs always give the same score.
func Score(events []models.EngagementEvent, now time.Time, halfLife time.Duration) float64 {
	if halfLife <= 0 {
		halfLife = DefaultEngagementHalfLife
	}

	var score float64
	for _, ev := range events {
		weight, ok := engagementWeights[ev.Type]
		if !ok {
			continue
		}
		age := now.Sub(ev.OccurredAt)
		if age < 0 {
			age = 0
		}
		score += weight * math.Exp2(-age.Hours()/halfLife.Hours())
	}

	if score > 1 {
		return 1
	}
	if score < 0 {
		return 0
	}
	return score
}
