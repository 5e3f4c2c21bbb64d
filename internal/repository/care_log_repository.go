package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"homecare-ai/internal/model"
)

type CareLogRepository struct {
	db *gorm.DB
}

func NewCareLogRepository(db *gorm.DB) *CareLogRepository {
	return &CareLogRepository{db: db}
}

// Init creates the care_logs table if it does not exist. Safe to call repeatedly.
func (r *CareLogRepository) Init(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&model.CareLog{}); err != nil {
		return fmt.Errorf("migrate care_logs failed: %w", err)
	}
	return nil
}

// Create inserts record and fills in its ID and CreatedAt.
func (r *CareLogRepository) Create(ctx context.Context, record *model.CareLog) error {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("insert care log failed: %w", err)
	}
	return nil
}

// ListByUsername returns the newest records first. limit <= 0 means no limit.
func (r *CareLogRepository) ListByUsername(ctx context.Context, username string, limit int) ([]model.CareLog, error) {
	var logs []model.CareLog
	q := r.db.WithContext(ctx).Where("username = ?", username).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("list care logs failed: %w", err)
	}
	return logs, nil
}

func (r *CareLogRepository) GetByIDAndUsername(ctx context.Context, id uint, username string) (*model.CareLog, error) {
	var record model.CareLog
	if err := r.db.WithContext(ctx).Where("id = ? AND username = ?", id, username).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query care log failed: %w", err)
	}
	return &record, nil
}
