package synclogs

import (
	"context"
	"fmt"

	models "harga-pangan/database/models_pkg"

	"gorm.io/gorm"
)

// Repository persists government sync audit records. Rows are append-only.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new sync log repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create writes one sync run record
func (r *Repository) Create(ctx context.Context, run *models.SyncLog) error {
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

// ListLatest returns the most recent sync runs, newest first
func (r *Repository) ListLatest(ctx context.Context, limit int) ([]models.SyncLog, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []models.SyncLog
	if err := r.db.WithContext(ctx).Order("run_at DESC, id DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("ListLatest: %w", err)
	}
	return runs, nil
}
