package store

import (
	"context"
	"errors"

	"outreachly/models"

	"gorm.io/gorm"
)

// SequenceStore persists sequence definitions. Definitions are validated
// on the way in; the executor reads them as trusted data.
type SequenceStore struct {
	db         *gorm.DB
	executions *ExecutionStore
}

func NewSequenceStore(db *gorm.DB, executions *ExecutionStore) *SequenceStore {
	return &SequenceStore{db: db, executions: executions}
}

// Create validates and stores a sequence with its steps.
func (s *SequenceStore) Create(ctx context.Context, seq *models.SequenceDefinition) error {
	if err := seq.Validate(); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(seq).Error
}

// Get returns a sequence with its steps in order.
func (s *SequenceStore) Get(ctx context.Context, id uint) (*models.SequenceDefinition, error) {
	var seq models.SequenceDefinition
	err := s.db.WithContext(ctx).
		Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("step_number ASC")
		}).
		First(&seq, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &seq, nil
}

func (s *SequenceStore) List(ctx context.Context) ([]models.SequenceDefinition, error) {
	var seqs []models.SequenceDefinition
	err := s.db.WithContext(ctx).Order("created_at DESC").Find(&seqs).Error
	return seqs, err
}

// UpdateMeta changes name/description only. Always allowed.
func (s *SequenceStore) UpdateMeta(ctx context.Context, id uint, name, description string) (*models.SequenceDefinition, error) {
	updates := map[string]interface{}{}
	if name != "" {
		updates["name"] = name
	}
	if description != "" {
		updates["description"] = description
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&models.SequenceDefinition{}).
			Where("id = ?", id).Updates(updates).Error; err != nil {
			return nil, err
		}
	}
	return s.Get(ctx, id)
}

// ReplaceSteps swaps the sequence's step structure. Rejected while any
// non-cancelled execution references the sequence: reordering or removing
// steps under live executions is undefined.
func (s *SequenceStore) ReplaceSteps(ctx context.Context, id uint, steps []models.SequenceStep) (*models.SequenceDefinition, error) {
	seq, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	live, err := s.executions.HasLive(ctx, id)
	if err != nil {
		return nil, err
	}
	if live {
		return nil, ErrSequenceInUse
	}

	candidate := models.SequenceDefinition{Name: seq.Name, Steps: steps}
	if err := candidate.Validate(); err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("sequence_id = ?", id).Delete(&models.SequenceStep{}).Error; err != nil {
			return err
		}
		for i := range candidate.Steps {
			candidate.Steps[i].ID = 0
			candidate.Steps[i].SequenceID = id
			if err := tx.Create(&candidate.Steps[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// SetActive publishes or retires a sequence. Only active sequences can
// enroll prospects.
func (s *SequenceStore) SetActive(ctx context.Context, id uint, active bool) (*models.SequenceDefinition, error) {
	res := s.db.WithContext(ctx).Model(&models.SequenceDefinition{}).
		Where("id = ?", id).
		Update("is_active", active)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.Get(ctx, id)
}
