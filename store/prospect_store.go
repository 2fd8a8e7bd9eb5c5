package store

import (
	"context"
	"errors"
	"time"

	"outreachly/models"

	"gorm.io/gorm"
)

type ProspectStore struct {
	db *gorm.DB
}

func NewProspectStore(db *gorm.DB) *ProspectStore {
	return &ProspectStore{db: db}
}

func (s *ProspectStore) Create(ctx context.Context, p *models.Prospect) error {
	return s.db.WithContext(ctx).Create(p).Error
}

func (s *ProspectStore) Get(ctx context.Context, id uint) (*models.Prospect, error) {
	var p models.Prospect
	err := s.db.WithContext(ctx).Preload("Tags").First(&p, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *ProspectStore) GetByEmail(ctx context.Context, email string) (*models.Prospect, error) {
	var p models.Prospect
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *ProspectStore) List(ctx context.Context, limit, offset int) ([]models.Prospect, int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&models.Prospect{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var prospects []models.Prospect
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&prospects).Error
	return prospects, total, err
}

func (s *ProspectStore) Update(ctx context.Context, p *models.Prospect) error {
	return s.db.WithContext(ctx).Save(p).Error
}

// TouchLastContact stamps the prospect's last outreach time.
func (s *ProspectStore) TouchLastContact(ctx context.Context, id uint, at time.Time) error {
	return s.db.WithContext(ctx).Model(&models.Prospect{}).
		Where("id = ?", id).
		Update("last_contact_at", at).Error
}

// Match returns contactable prospects satisfying the filter. Unsubscribed
// and do-not-contact prospects are always excluded.
func (s *ProspectStore) Match(ctx context.Context, filter models.ProspectFilter, now time.Time) ([]models.Prospect, error) {
	q := s.db.WithContext(ctx).Model(&models.Prospect{}).
		Where("is_unsubscribed = ? AND is_do_not_contact = ?", false, false)

	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Category != "" {
		q = q.Where("category = ?", filter.Category)
	}
	if filter.Priority != "" {
		q = q.Where("priority = ?", filter.Priority)
	}
	if filter.LastContactDays > 0 {
		cutoff := now.AddDate(0, 0, -filter.LastContactDays)
		q = q.Where("last_contact_at IS NULL OR last_contact_at <= ?", cutoff)
	}
	if len(filter.Tags) > 0 {
		q = q.Where("id IN (?)",
			s.db.Model(&models.ProspectTag{}).Select("prospect_id").Where("tag IN ?", filter.Tags))
	}

	var prospects []models.Prospect
	err := q.Order("id ASC").Find(&prospects).Error
	return prospects, err
}
