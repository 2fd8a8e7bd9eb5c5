package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"outreachly/config"
	"outreachly/models"
	"outreachly/store"
	"outreachly/utils"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// lockTTL bounds how long a crashed worker can hold a record hostage.
const lockTTL = 5 * time.Minute

// Executor processes due execution records: it evaluates step gates,
// generates and sends the step's message, and advances the record under
// an optimistic-concurrency write.
type Executor struct {
	records    Persistence
	sequences  SequenceSource
	prospects  ProspectSource
	engagement EngagementSource
	deliveries DeliveryRecorder
	generator  Generator
	sender     SendChannel
	locker     Locker

	cfg config.EngineConfig
	log *logrus.Entry
	now func() time.Time
}

func NewExecutor(
	records Persistence,
	sequences SequenceSource,
	prospects ProspectSource,
	engagement EngagementSource,
	deliveries DeliveryRecorder,
	generator Generator,
	sender SendChannel,
	locker Locker,
	cfg config.EngineConfig,
	log *logrus.Entry,
) *Executor {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}
	if cfg.DueBatchSize <= 0 {
		cfg.DueBatchSize = 100
	}
	if cfg.MaxStepRetries <= 0 {
		cfg.MaxStepRetries = 5
	}
	if cfg.ConditionRetry <= 0 {
		cfg.ConditionRetry = time.Hour
	}
	if cfg.RetryBackoffBase <= 0 {
		cfg.RetryBackoffBase = 15 * time.Minute
	}
	if cfg.RetryBackoffMax <= 0 {
		cfg.RetryBackoffMax = 24 * time.Hour
	}
	return &Executor{
		records:    records,
		sequences:  sequences,
		prospects:  prospects,
		engagement: engagement,
		deliveries: deliveries,
		generator:  generator,
		sender:     sender,
		locker:     locker,
		cfg:        cfg,
		log:        log,
		now:        time.Now,
	}
}

// ProcessDue pulls one batch of due records and processes them on a
// bounded worker pool. A failure on one record never stops the others.
// Returns the number of records that advanced.
func (e *Executor) ProcessDue(ctx context.Context) int {
	now := e.now()
	recs, err := e.records.Due(ctx, now, e.cfg.DueBatchSize)
	if err != nil {
		e.log.WithError(err).Error("failed to fetch due records")
		return 0
	}
	if len(recs) == 0 {
		return 0
	}
	e.log.WithField("due", len(recs)).Debug("processing due records")

	sem := make(chan struct{}, e.cfg.WorkerCount)
	var wg sync.WaitGroup
	var advanced int64

	for i := range recs {
		id := recs[i].ID
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			ok, err := e.Process(ctx, id)
			if err != nil {
				e.log.WithError(err).WithField("execution_id", id).Error("record processing failed")
				return
			}
			if ok {
				atomic.AddInt64(&advanced, 1)
			}
		}()
	}
	wg.Wait()

	return int(advanced)
}

// Process attempts one step of one execution record. Returns true when
// the record advanced (step completed or sequence finished). Gated,
// locked, no-longer-due and retried-later records return (false, nil).
func (e *Executor) Process(ctx context.Context, id uint) (bool, error) {
	unlock, ok := e.locker.TryLock(ctx, fmt.Sprintf("execution:%d", id), lockTTL)
	if !ok {
		return false, nil
	}
	defer unlock()

	now := e.now()

	// Re-read under the lock; the record may have been paused, cancelled
	// or advanced since the due query.
	rec, err := e.records.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if rec.Status != models.ExecutionActive ||
		rec.NextMessageDueAt == nil || rec.NextMessageDueAt.After(now) {
		return false, nil
	}

	seq, err := e.sequences.Get(ctx, rec.SequenceID)
	if err != nil {
		return false, fmt.Errorf("load sequence %d: %w", rec.SequenceID, err)
	}

	if rec.CurrentStepIndex >= len(seq.Steps) {
		return true, e.finish(ctx, rec, now)
	}
	step := seq.Steps[rec.CurrentStepIndex]

	prospect, err := e.prospects.Get(ctx, rec.ProspectID)
	if err != nil {
		return false, fmt.Errorf("load prospect %d: %w", rec.ProspectID, err)
	}
	if !prospect.Contactable() {
		e.log.WithField("execution_id", rec.ID).Info("prospect no longer contactable, cancelling")
		_, err := e.records.Cancel(ctx, rec.ID)
		return false, err
	}

	satisfied, reason, err := e.gatesSatisfied(ctx, rec, &step, now)
	if err != nil {
		return false, err
	}
	if !satisfied {
		return false, e.deferStep(ctx, rec, reason, now)
	}

	// Attempt marker goes in before generation so a crash between send
	// and persist keeps the same idempotency key on retry.
	if rec.AttemptID == "" {
		rec.AttemptID = uuid.New().String()
		if err := e.records.ConditionalUpdate(ctx, rec, rec.Version); err != nil {
			if errors.Is(err, store.ErrVersionConflict) {
				return false, nil
			}
			return false, err
		}
	}

	content, err := e.generator.Generate(ctx, &step, prospect)
	if err != nil {
		return false, e.retryLater(ctx, rec, &GenerationError{Cause: err}, now)
	}

	messageID, err := e.sender.Send(ctx, prospect, SubjectFor(&step, prospect), content, rec.AttemptID)
	if err != nil {
		return false, e.retryLater(ctx, rec, &SendError{Cause: err}, now)
	}

	if err := e.deliveries.RecordDelivery(ctx, &models.Delivery{
		MessageID:   messageID,
		ExecutionID: rec.ID,
		ProspectID:  prospect.ID,
		StepID:      step.ID,
		SentAt:      now,
	}); err != nil {
		e.log.WithError(err).WithField("message_id", messageID).Warn("failed to record delivery")
	}
	if err := e.prospects.TouchLastContact(ctx, prospect.ID, now); err != nil {
		e.log.WithError(err).Warn("failed to stamp last contact")
	}

	return e.completeStep(ctx, rec, seq, &step, messageID, now)
}

// gatesSatisfied evaluates the step's conditions. A gated step is never
// dropped; it is deferred and re-checked.
func (e *Executor) gatesSatisfied(ctx context.Context, rec *models.ExecutionRecord, step *models.SequenceStep, now time.Time) (bool, string, error) {
	c := step.Conditions
	if c == nil {
		return true, "", nil
	}

	if c.RequiresPreviousResponse {
		if len(rec.CompletedSteps) == 0 {
			return false, "no previous step to respond to", nil
		}
		last := rec.CompletedSteps[len(rec.CompletedSteps)-1]
		if !last.Response.Received {
			return false, "awaiting response to previous message", nil
		}
	}

	if c.MinimumEngagementScore != nil {
		events, err := e.engagement.EventsFor(ctx, rec.ProspectID)
		if err != nil {
			return false, "", fmt.Errorf("load engagement events: %w", err)
		}
		score := Score(events, now, e.cfg.EngagementHalfLife)
		if score < *c.MinimumEngagementScore {
			return false, fmt.Sprintf("engagement score %.2f below threshold %.2f",
				score, *c.MinimumEngagementScore), nil
		}
	}

	return true, "", nil
}

// deferStep pushes a gated record's due time out by the condition retry
// interval, or auto-cancels it when it has been stuck past the
// configured stall window.
func (e *Executor) deferStep(ctx context.Context, rec *models.ExecutionRecord, reason string, now time.Time) error {
	if e.cfg.StallCancelAfter > 0 && now.Sub(lastProgressAt(rec)) >= e.cfg.StallCancelAfter {
		e.log.WithFields(logrus.Fields{
			"execution_id": rec.ID,
			"reason":       reason,
		}).Warn("gated step stalled past cancel window, auto-cancelling")
		_, err := e.records.Cancel(ctx, rec.ID)
		return err
	}

	e.log.WithFields(logrus.Fields{
		"execution_id": rec.ID,
		"step_index":   rec.CurrentStepIndex,
		"reason":       reason,
	}).Debug("step gated, deferring")

	rec.NextMessageDueAt = utils.Pointer(now.Add(e.cfg.ConditionRetry))
	err := e.records.ConditionalUpdate(ctx, rec, rec.Version)
	if errors.Is(err, store.ErrVersionConflict) {
		// Someone else touched the record; the next tick re-evaluates.
		return nil
	}
	return err
}

// retryLater reschedules a failed step with exponential backoff. After
// the retry budget is exhausted the record stays active but unscheduled,
// surfaced through the stalled listing and error reporting.
func (e *Executor) retryLater(ctx context.Context, rec *models.ExecutionRecord, cause error, now time.Time) error {
	rec.RetryCount++
	rec.LastError = cause.Error()

	if rec.RetryCount >= e.cfg.MaxStepRetries {
		rec.NextMessageDueAt = nil
		e.log.WithFields(logrus.Fields{
			"execution_id": rec.ID,
			"step_index":   rec.CurrentStepIndex,
			"retries":      rec.RetryCount,
		}).WithError(cause).Error("step retries exhausted, record stalled")
		sentry.WithScope(func(scope *sentry.Scope) {
			scope.SetTag("execution_id", fmt.Sprint(rec.ID))
			scope.SetTag("sequence_id", fmt.Sprint(rec.SequenceID))
			sentry.CaptureException(cause)
		})
	} else {
		delay := backoff(e.cfg.RetryBackoffBase, e.cfg.RetryBackoffMax, rec.RetryCount)
		rec.NextMessageDueAt = utils.Pointer(now.Add(delay))
		e.log.WithFields(logrus.Fields{
			"execution_id": rec.ID,
			"retry":        rec.RetryCount,
			"next_attempt": rec.NextMessageDueAt,
		}).WithError(cause).Warn("step failed, rescheduled")
	}

	err := e.records.ConditionalUpdate(ctx, rec, rec.Version)
	if errors.Is(err, store.ErrVersionConflict) {
		return nil
	}
	return err
}

// completeStep appends the step to the record's history and advances it.
// On a version conflict the attempt is reconciled against the fresh
// record rather than re-sent: the message is already out.
func (e *Executor) completeStep(ctx context.Context, rec *models.ExecutionRecord, seq *models.SequenceDefinition, step *models.SequenceStep, messageID string, now time.Time) (bool, error) {
	startIndex := rec.CurrentStepIndex

	apply := func(r *models.ExecutionRecord) {
		r.CompletedSteps = append(r.CompletedSteps, models.CompletedStep{
			StepID:      step.ID,
			CompletedAt: now,
			MessageID:   messageID,
			Response:    models.StepResponse{Received: false},
		})
		r.CurrentStepIndex++
		r.AttemptID = ""
		r.RetryCount = 0
		r.LastError = ""

		if r.CurrentStepIndex < len(seq.Steps) {
			next := seq.Steps[r.CurrentStepIndex]
			r.NextMessageDueAt = utils.Pointer(now.AddDate(0, 0, next.DelayDays))
		} else {
			r.Status = models.ExecutionCompleted
			r.CompletedAt = utils.Pointer(now)
			r.NextMessageDueAt = nil
		}
	}

	apply(rec)
	err := e.records.ConditionalUpdate(ctx, rec, rec.Version)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, store.ErrVersionConflict) {
		return false, err
	}

	// Conflict after a successful send: re-read and decide.
	fresh, err := e.records.Get(ctx, rec.ID)
	if err != nil {
		return false, err
	}
	if fresh.Status == models.ExecutionCancelled {
		// Cancelled mid-flight: the sent result is discarded, never
		// appended to the history.
		e.log.WithField("execution_id", rec.ID).Info("record cancelled mid-flight, discarding result")
		return false, nil
	}
	if fresh.CurrentStepIndex != startIndex || fresh.Status == models.ExecutionCompleted {
		// Someone else already recorded this step.
		return false, nil
	}

	apply(fresh)
	err = e.records.ConditionalUpdate(ctx, fresh, fresh.Version)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, store.ErrVersionConflict) {
		// Give up for this tick. The attempt marker is still set, so the
		// next attempt reuses the same idempotency key and cannot
		// double-send.
		e.log.WithField("execution_id", rec.ID).Warn("repeated version conflict, retrying next tick")
		return false, nil
	}
	return false, err
}

// finish normalizes a record whose index already covers every step.
func (e *Executor) finish(ctx context.Context, rec *models.ExecutionRecord, now time.Time) error {
	rec.Status = models.ExecutionCompleted
	rec.CompletedAt = utils.Pointer(now)
	rec.NextMessageDueAt = nil
	err := e.records.ConditionalUpdate(ctx, rec, rec.Version)
	if errors.Is(err, store.ErrVersionConflict) {
		return nil
	}
	return err
}

func lastProgressAt(rec *models.ExecutionRecord) time.Time {
	if n := len(rec.CompletedSteps); n > 0 {
		return rec.CompletedSteps[n-1].CompletedAt
	}
	return rec.StartedAt
}

// backoff returns base*2^(attempt-1) capped at max.
func backoff(base, max time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
