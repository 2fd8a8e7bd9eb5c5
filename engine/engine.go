// Package engine implements the outreach-sequence execution core: the
// scheduler/executor that walks prospects through timed, conditional
// message sequences, and the batch orchestrator that enrolls them.
package engine

import (
	"context"
	"time"

	"outreachly/models"
)

// Persistence is the narrow execution-record store contract the engine
// depends on. Implemented by store.ExecutionStore.
type Persistence interface {
	Create(ctx context.Context, sequenceID, prospectID uint, now time.Time) (*models.ExecutionRecord, error)
	Get(ctx context.Context, id uint) (*models.ExecutionRecord, error)
	Due(ctx context.Context, now time.Time, limit int) ([]models.ExecutionRecord, error)
	ConditionalUpdate(ctx context.Context, rec *models.ExecutionRecord, expectedVersion int) error
	Cancel(ctx context.Context, id uint) (*models.ExecutionRecord, error)
}

// SequenceSource supplies sequence definitions, read-only to the engine.
type SequenceSource interface {
	Get(ctx context.Context, id uint) (*models.SequenceDefinition, error)
}

// ProspectSource supplies targets and the declarative filter match used
// by batch enrollment.
type ProspectSource interface {
	Get(ctx context.Context, id uint) (*models.Prospect, error)
	Match(ctx context.Context, filter models.ProspectFilter, now time.Time) ([]models.Prospect, error)
	TouchLastContact(ctx context.Context, id uint, at time.Time) error
}

// EngagementSource supplies prospect interaction events. Eventually
// consistent reads are fine; gated steps are re-checked on an interval.
type EngagementSource interface {
	EventsFor(ctx context.Context, prospectID uint) ([]models.EngagementEvent, error)
}

// DeliveryRecorder maps sent messages back to executions for tracking.
type DeliveryRecorder interface {
	RecordDelivery(ctx context.Context, d *models.Delivery) error
}

// Generator produces message content for a step. Implementations must
// bound their own call time; a timeout is a generation failure, not a
// condition failure.
type Generator interface {
	Generate(ctx context.Context, step *models.SequenceStep, prospect *models.Prospect) (string, error)
}

// SendChannel delivers a message. The idempotency key is stable across
// retries of the same attempt, so implementations (or their downstream)
// can deduplicate.
type SendChannel interface {
	Send(ctx context.Context, prospect *models.Prospect, subject, content, idempotencyKey string) (messageID string, err error)
}

// Locker guarantees at-most-one-in-flight per execution record across
// concurrent ticks and processes.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(), ok bool)
}
