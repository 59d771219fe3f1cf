package training

import (
	"context"
	"errors"
	"fmt"

	models "harga-pangan/database/models_pkg"

	"gorm.io/gorm"
)

// Repository tracks model training runs
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new training run repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new run
func (r *Repository) Create(ctx context.Context, run *models.ModelTrainingRun) error {
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

// Save persists status and metrics of an existing run
func (r *Repository) Save(ctx context.Context, run *models.ModelTrainingRun) error {
	if err := r.db.WithContext(ctx).Save(run).Error; err != nil {
		return fmt.Errorf("Save: %w", err)
	}
	return nil
}

// ListLatest returns recent runs by start time, newest first
func (r *Repository) ListLatest(ctx context.Context, limit int) ([]models.ModelTrainingRun, error) {
	if limit <= 0 {
		limit = 50
	}
	var runs []models.ModelTrainingRun
	if err := r.db.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("ListLatest: %w", err)
	}
	return runs, nil
}

// LatestSuccess returns the most recently finished successful run, or nil
func (r *Repository) LatestSuccess(ctx context.Context) (*models.ModelTrainingRun, error) {
	var run models.ModelTrainingRun
	err := r.db.WithContext(ctx).
		Where("status = ?", models.TrainingStatusSuccess).
		Order("finished_at DESC NULLS LAST").
		First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("LatestSuccess: %w", err)
	}
	return &run, nil
}
