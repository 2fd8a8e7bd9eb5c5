package models

import (
	"time"

	"gorm.io/gorm"
)

// Execution statuses. Completed and cancelled are terminal; active and
// paused may flip back and forth.
const (
	ExecutionActive    = "active"
	ExecutionPaused    = "paused"
	ExecutionCompleted = "completed"
	ExecutionCancelled = "cancelled"
)

// ExecutionRecord tracks one prospect's progress through a sequence.
// Mutated only by the executor, never deleted; cancellation keeps the
// record for audit.
//
// Invariants: len(CompletedSteps) == CurrentStepIndex while the record is
// active or paused, and a completed record has CurrentStepIndex equal to
// the sequence's step count.
type ExecutionRecord struct {
	gorm.Model
	SequenceID uint `gorm:"not null;index:idx_executions_seq_prospect" json:"sequence_id"`
	ProspectID uint `gorm:"not null;index:idx_executions_seq_prospect" json:"prospect_id"`

	CurrentStepIndex int    `gorm:"default:0" json:"current_step_index"`
	Status           string `gorm:"default:'active';index" json:"status"`

	StartedAt        time.Time  `gorm:"not null" json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	NextMessageDueAt *time.Time `gorm:"index" json:"next_message_due_at,omitempty"`

	CompletedSteps []CompletedStep `gorm:"type:jsonb;serializer:json" json:"completed_steps"`

	// Optimistic lock: every write goes through a compare-and-swap on
	// Version, so two workers can never both advance the same record.
	Version int `gorm:"default:0" json:"version"`

	// AttemptID is written before the generator is invoked and doubles as
	// the send idempotency key, so a retry after a failed persistence
	// write cannot double-send.
	AttemptID  string `json:"attempt_id,omitempty"`
	RetryCount int    `gorm:"default:0" json:"retry_count"`
	LastError  string `json:"last_error,omitempty"`
}

// CompletedStep is one entry in the record's step history.
type CompletedStep struct {
	StepID      uint         `json:"step_id"`
	CompletedAt time.Time    `json:"completed_at"`
	MessageID   string       `json:"message_id,omitempty"`
	Response    StepResponse `json:"response"`
}

// StepResponse captures whether the prospect answered the message sent
// for a step.
type StepResponse struct {
	Received   bool       `json:"received"`
	ReceivedAt *time.Time `json:"received_at,omitempty"`
	Sentiment  string     `json:"sentiment,omitempty"`
}

// Stalled reports whether the record is stuck: still active but no longer
// scheduled because step retries were exhausted.
func (r *ExecutionRecord) Stalled() bool {
	return r.Status == ExecutionActive && r.LastError != "" && r.NextMessageDueAt == nil
}

// Terminal reports whether the record can never advance again.
func (r *ExecutionRecord) Terminal() bool {
	return r.Status == ExecutionCompleted || r.Status == ExecutionCancelled
}
