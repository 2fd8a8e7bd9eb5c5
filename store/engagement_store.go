package store

import (
	"context"
	"errors"

	"outreachly/models"

	"gorm.io/gorm"
)

type EngagementStore struct {
	db *gorm.DB
}

func NewEngagementStore(db *gorm.DB) *EngagementStore {
	return &EngagementStore{db: db}
}

func (s *EngagementStore) Record(ctx context.Context, event *models.EngagementEvent) error {
	return s.db.WithContext(ctx).Create(event).Error
}

// EventsFor returns the prospect's engagement history, newest first.
func (s *EngagementStore) EventsFor(ctx context.Context, prospectID uint) ([]models.EngagementEvent, error) {
	var events []models.EngagementEvent
	err := s.db.WithContext(ctx).
		Where("prospect_id = ?", prospectID).
		Order("occurred_at DESC").
		Find(&events).Error
	return events, err
}

func (s *EngagementStore) RecordDelivery(ctx context.Context, d *models.Delivery) error {
	return s.db.WithContext(ctx).Create(d).Error
}

// DeliveryByMessageID resolves a tracked message back to its execution
// and prospect.
func (s *EngagementStore) DeliveryByMessageID(ctx context.Context, messageID string) (*models.Delivery, error) {
	var d models.Delivery
	err := s.db.WithContext(ctx).Where("message_id = ?", messageID).First(&d).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}
