package store

import (
	"context"
	"errors"
	"time"

	"outreachly/models"
	"outreachly/utils"

	"gorm.io/gorm"
)

// ExecutionStore persists execution records. All writes that race with
// the executor go through the Version compare-and-swap.
type ExecutionStore struct {
	db *gorm.DB
}

func NewExecutionStore(db *gorm.DB) *ExecutionStore {
	return &ExecutionStore{db: db}
}

// Create starts a new execution for the pair, due immediately. At most
// one non-cancelled record may exist per (sequence, prospect).
func (s *ExecutionStore) Create(ctx context.Context, sequenceID, prospectID uint, now time.Time) (*models.ExecutionRecord, error) {
	var rec models.ExecutionRecord

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.ExecutionRecord{}).
			Where("sequence_id = ? AND prospect_id = ? AND status <> ?",
				sequenceID, prospectID, models.ExecutionCancelled).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicateExecution
		}

		rec = models.ExecutionRecord{
			SequenceID:       sequenceID,
			ProspectID:       prospectID,
			CurrentStepIndex: 0,
			Status:           models.ExecutionActive,
			StartedAt:        now,
			NextMessageDueAt: utils.Pointer(now),
			CompletedSteps:   []models.CompletedStep{},
		}
		return tx.Create(&rec).Error
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *ExecutionStore) Get(ctx context.Context, id uint) (*models.ExecutionRecord, error) {
	var rec models.ExecutionRecord
	if err := s.db.WithContext(ctx).First(&rec, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// Due returns active records whose next action time has arrived, oldest
// first so no record starves.
func (s *ExecutionStore) Due(ctx context.Context, now time.Time, limit int) ([]models.ExecutionRecord, error) {
	var recs []models.ExecutionRecord
	err := s.db.WithContext(ctx).
		Where("status = ? AND next_message_due_at IS NOT NULL AND next_message_due_at <= ?",
			models.ExecutionActive, now).
		Order("next_message_due_at ASC").
		Limit(limit).
		Find(&recs).Error
	return recs, err
}

// ConditionalUpdate writes the record's mutable fields only if nobody
// else advanced it since it was read at expectedVersion.
func (s *ExecutionStore) ConditionalUpdate(ctx context.Context, rec *models.ExecutionRecord, expectedVersion int) error {
	rec.Version = expectedVersion + 1

	res := s.db.WithContext(ctx).Model(&models.ExecutionRecord{}).
		Where("id = ? AND version = ?", rec.ID, expectedVersion).
		Select("current_step_index", "status", "completed_at", "next_message_due_at",
			"completed_steps", "version", "attempt_id", "retry_count", "last_error").
		Updates(rec)
	if res.Error != nil {
		rec.Version = expectedVersion
		return res.Error
	}
	if res.RowsAffected == 0 {
		rec.Version = expectedVersion
		return ErrVersionConflict
	}
	return nil
}

// Pause suspends an active record. The due time is preserved but not
// acted upon while paused.
func (s *ExecutionStore) Pause(ctx context.Context, id uint) (*models.ExecutionRecord, error) {
	return s.transition(ctx, id, models.ExecutionActive, models.ExecutionPaused)
}

// Resume reactivates a paused record. The original due time is kept:
// overdue records are simply picked up on the next tick.
func (s *ExecutionStore) Resume(ctx context.Context, id uint) (*models.ExecutionRecord, error) {
	return s.transition(ctx, id, models.ExecutionPaused, models.ExecutionActive)
}

// Cancel stops a record for good. Cancelling an already terminal record
// is a no-op, not an error.
func (s *ExecutionStore) Cancel(ctx context.Context, id uint) (*models.ExecutionRecord, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Terminal() {
		return rec, nil
	}

	// Bumping the version makes any in-flight executor write fail its
	// CAS, so a message generated mid-cancel is discarded.
	res := s.db.WithContext(ctx).Model(&models.ExecutionRecord{}).
		Where("id = ? AND status IN ?", id, []string{models.ExecutionActive, models.ExecutionPaused}).
		Updates(map[string]interface{}{
			"status":  models.ExecutionCancelled,
			"version": gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	return s.Get(ctx, id)
}

func (s *ExecutionStore) transition(ctx context.Context, id uint, from, to string) (*models.ExecutionRecord, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Status != from {
		return nil, ErrInvalidTransition
	}

	res := s.db.WithContext(ctx).Model(&models.ExecutionRecord{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"status":  to,
			"version": gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrInvalidTransition
	}
	return s.Get(ctx, id)
}

// MarkResponded flips the last completed step's response on every live
// execution for the prospect. Returns how many records were updated.
func (s *ExecutionStore) MarkResponded(ctx context.Context, prospectID uint, sentiment string, at time.Time) (int, error) {
	var recs []models.ExecutionRecord
	err := s.db.WithContext(ctx).
		Where("prospect_id = ? AND status IN ?",
			prospectID, []string{models.ExecutionActive, models.ExecutionPaused}).
		Find(&recs).Error
	if err != nil {
		return 0, err
	}

	updated := 0
	for i := range recs {
		rec := &recs[i]
		if err := s.markOneResponded(ctx, rec.ID, sentiment, at); err != nil {
			return updated, err
		}
		updated++
	}
	return updated, nil
}

func (s *ExecutionStore) markOneResponded(ctx context.Context, id uint, sentiment string, at time.Time) error {
	// Concurrent executor writes can bump the version under us, so retry
	// the read-modify-write a few times.
	for attempt := 0; attempt < 3; attempt++ {
		rec, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		if len(rec.CompletedSteps) == 0 {
			return nil
		}

		last := &rec.CompletedSteps[len(rec.CompletedSteps)-1]
		if last.Response.Received {
			return nil
		}
		last.Response = models.StepResponse{
			Received:   true,
			ReceivedAt: utils.Pointer(at),
			Sentiment:  sentiment,
		}

		err = s.ConditionalUpdate(ctx, rec, rec.Version)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return err
		}
	}
	return ErrVersionConflict
}

// ListBySequence returns all executions for a sequence, newest first.
func (s *ExecutionStore) ListBySequence(ctx context.Context, sequenceID uint) ([]models.ExecutionRecord, error) {
	var recs []models.ExecutionRecord
	err := s.db.WithContext(ctx).
		Where("sequence_id = ?", sequenceID).
		Order("created_at DESC").
		Find(&recs).Error
	return recs, err
}

// List returns executions filtered by optional sequence and status.
func (s *ExecutionStore) List(ctx context.Context, sequenceID uint, status string) ([]models.ExecutionRecord, error) {
	q := s.db.WithContext(ctx).Model(&models.ExecutionRecord{})
	if sequenceID != 0 {
		q = q.Where("sequence_id = ?", sequenceID)
	}
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var recs []models.ExecutionRecord
	err := q.Order("created_at DESC").Find(&recs).Error
	return recs, err
}

// Stalled returns active records that exhausted their retries and are no
// longer scheduled. These need operator attention.
func (s *ExecutionStore) Stalled(ctx context.Context) ([]models.ExecutionRecord, error) {
	var recs []models.ExecutionRecord
	err := s.db.WithContext(ctx).
		Where("status = ? AND last_error <> '' AND next_message_due_at IS NULL",
			models.ExecutionActive).
		Order("updated_at ASC").
		Find(&recs).Error
	return recs, err
}

// CountByStatus returns per-status execution counts for a sequence.
func (s *ExecutionStore) CountByStatus(ctx context.Context, sequenceID uint) (map[string]int64, error) {
	type row struct {
		Status string
		N      int64
	}
	var rows []row
	err := s.db.WithContext(ctx).Model(&models.ExecutionRecord{}).
		Select("status, count(*) as n").
		Where("sequence_id = ?", sequenceID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.N
	}
	return counts, nil
}

// HasLive reports whether any non-cancelled execution references the
// sequence. Used to freeze sequence structure.
func (s *ExecutionStore) HasLive(ctx context.Context, sequenceID uint) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.ExecutionRecord{}).
		Where("sequence_id = ? AND status <> ?", sequenceID, models.ExecutionCancelled).
		Count(&count).Error
	return count > 0, err
}
