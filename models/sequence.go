package models

import (
	"fmt"

	"gorm.io/gorm"
)

// Message types a step can carry. The set is closed; anything else is
// rejected when the sequence is created.
const (
	MessageTypeInitial   = "initial"
	MessageTypeFollowup  = "followup"
	MessageTypeProposal  = "proposal"
	MessageTypeCheckIn   = "check_in"
	MessageTypeMilestone = "milestone"
	MessageTypeUrgent    = "urgent"
)

const (
	ToneFormal   = "formal"
	ToneCasual   = "casual"
	ToneFriendly = "friendly"
	ToneUrgent   = "urgent"
)

// Delay bounds for steps after the first. The first step always fires
// immediately on enrollment.
const (
	MinStepDelayDays = 1
	MaxStepDelayDays = 14
)

// SequenceDefinition is an ordered template of outreach steps applied to
// many prospects. Step structure is frozen once any non-cancelled
// execution references the sequence.
type SequenceDefinition struct {
	gorm.Model
	Name        string `gorm:"not null" json:"name"`
	Description string `json:"description"`
	IsActive    bool   `gorm:"default:false" json:"is_active"`

	// Relations
	Steps []SequenceStep `gorm:"foreignKey:SequenceID" json:"steps,omitempty"`
}

// SequenceStep is one unit of a sequence: message type, tone, delay and
// optional gating conditions.
type SequenceStep struct {
	gorm.Model
	SequenceID uint `gorm:"not null;index" json:"sequence_id"`

	StepNumber  int    `gorm:"not null" json:"step_number"`
	MessageType string `gorm:"not null" json:"message_type"`
	Tone        string `gorm:"not null" json:"tone"`
	DelayDays   int    `gorm:"not null" json:"delay_days"`
	Template    string `gorm:"type:text;not null" json:"template"`

	Conditions *StepConditions `gorm:"type:jsonb;serializer:json" json:"conditions,omitempty"`
}

// StepConditions gate a step until the prospect has shown the required
// signal. A nil Conditions means the step is unconditional.
type StepConditions struct {
	RequiresPreviousResponse bool     `json:"requires_previous_response,omitempty"`
	MinimumEngagementScore   *float64 `json:"minimum_engagement_score,omitempty"`
}

var validMessageTypes = map[string]bool{
	MessageTypeInitial:   true,
	MessageTypeFollowup:  true,
	MessageTypeProposal:  true,
	MessageTypeCheckIn:   true,
	MessageTypeMilestone: true,
	MessageTypeUrgent:    true,
}

var validTones = map[string]bool{
	ToneFormal:   true,
	ToneCasual:   true,
	ToneFriendly: true,
	ToneUrgent:   true,
}

// InvalidSequenceError describes why a sequence definition was rejected.
// Malformed definitions are refused at creation time so the executor never
// has to deal with them.
type InvalidSequenceError struct {
	Reason string
}

func (e *InvalidSequenceError) Error() string {
	return "invalid sequence definition: " + e.Reason
}

// Validate checks the definition and normalizes step delays in place:
// step 0 is forced to fire immediately, later steps are clamped to the
// allowed delay window.
func (s *SequenceDefinition) Validate() error {
	if s.Name == "" {
		return &InvalidSequenceError{Reason: "name is required"}
	}
	if len(s.Steps) == 0 {
		return &InvalidSequenceError{Reason: "sequence must have at least one step"}
	}

	for i := range s.Steps {
		step := &s.Steps[i]
		if !validMessageTypes[step.MessageType] {
			return &InvalidSequenceError{Reason: fmt.Sprintf("step %d: unknown message type %q", i, step.MessageType)}
		}
		if !validTones[step.Tone] {
			return &InvalidSequenceError{Reason: fmt.Sprintf("step %d: unknown tone %q", i, step.Tone)}
		}
		if step.DelayDays < 0 {
			return &InvalidSequenceError{Reason: fmt.Sprintf("step %d: negative delay", i)}
		}
		if step.Template == "" {
			return &InvalidSequenceError{Reason: fmt.Sprintf("step %d: template is required", i)}
		}
		if c := step.Conditions; c != nil && c.MinimumEngagementScore != nil {
			if *c.MinimumEngagementScore < 0 || *c.MinimumEngagementScore > 1 {
				return &InvalidSequenceError{Reason: fmt.Sprintf("step %d: minimum engagement score must be in [0,1]", i)}
			}
		}

		step.StepNumber = i
		if i == 0 {
			step.DelayDays = 0
		} else if step.DelayDays < MinStepDelayDays {
			step.DelayDays = MinStepDelayDays
		} else if step.DelayDays > MaxStepDelayDays {
			step.DelayDays = MaxStepDelayDays
		}
	}

	return nil
}
