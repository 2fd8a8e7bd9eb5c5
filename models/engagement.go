package models

import (
	"time"

	"gorm.io/gorm"
)

// Engagement event types, ordered roughly by signal strength.
const (
	EngagementOpen    = "open"
	EngagementClick   = "click"
	EngagementReply   = "reply"
	EngagementMeeting = "meeting_scheduled"
)

// EngagementEvent records one prospect interaction. Events are correlated
// to executions by ProspectID only; a prospect may have engagement history
// predating any sequence.
type EngagementEvent struct {
	gorm.Model
	ProspectID uint      `gorm:"not null;index" json:"prospect_id"`
	Type       string    `gorm:"not null" json:"type"`
	OccurredAt time.Time `gorm:"not null;index" json:"occurred_at"`
	Sentiment  string    `json:"sentiment,omitempty"` // positive, neutral, negative
}

// ValidEngagementType reports whether t is a known event type.
func ValidEngagementType(t string) bool {
	switch t {
	case EngagementOpen, EngagementClick, EngagementReply, EngagementMeeting:
		return true
	}
	return false
}

// Delivery maps an outbound message ID back to the execution and step
// that produced it, so open/click/reply tracking can attribute events.
type Delivery struct {
	gorm.Model
	MessageID   string    `gorm:"not null;uniqueIndex" json:"message_id"`
	ExecutionID uint      `gorm:"not null;index" json:"execution_id"`
	ProspectID  uint      `gorm:"not null;index" json:"prospect_id"`
	StepID      uint      `gorm:"not null" json:"step_id"`
	SentAt      time.Time `gorm:"not null" json:"sent_at"`
}
