package reference

import (
	"context"
	"errors"
	"fmt"

	models "harga-pangan/database/models_pkg"

	"gorm.io/gorm"
)

// Repository reads provinces, regencies and commodities.
// Reference tables are owned by an external admin surface; this package never writes them.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new reference repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// ListProvinces returns all provinces ordered by name
func (r *Repository) ListProvinces(ctx context.Context) ([]models.Province, error) {
	var provinces []models.Province
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&provinces).Error; err != nil {
		return nil, fmt.Errorf("ListProvinces: %w", err)
	}
	return provinces, nil
}

// ListRegencies returns regencies ordered by province name then regency name.
// provinceID <= 0 lists every regency.
func (r *Repository) ListRegencies(ctx context.Context, provinceID int64) ([]models.Regency, error) {
	var regencies []models.Regency
	query := r.db.WithContext(ctx).
		Preload("Province").
		Joins("JOIN provinces ON provinces.id = regencies.province_id").
		Order("provinces.name ASC, regencies.name ASC")
	if provinceID > 0 {
		query = query.Where("regencies.province_id = ?", provinceID)
	}
	if err := query.Find(&regencies).Error; err != nil {
		return nil, fmt.Errorf("ListRegencies: %w", err)
	}
	return regencies, nil
}

// ListCommodities returns all commodities ordered by name
func (r *Repository) ListCommodities(ctx context.Context) ([]models.Commodity, error) {
	var commodities []models.Commodity
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&commodities).Error; err != nil {
		return nil, fmt.Errorf("ListCommodities: %w", err)
	}
	return commodities, nil
}

// GetProvince returns the province or nil if it does not exist
func (r *Repository) GetProvince(ctx context.Context, id int64) (*models.Province, error) {
	var province models.Province
	if err := r.db.WithContext(ctx).First(&province, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("GetProvince: %w", err)
	}
	return &province, nil
}

// GetRegency returns the regency or nil if it does not exist
func (r *Repository) GetRegency(ctx context.Context, id int64) (*models.Regency, error) {
	var regency models.Regency
	if err := r.db.WithContext(ctx).First(&regency, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("GetRegency: %w", err)
	}
	return &regency, nil
}

// GetCommodity returns the commodity or nil if it does not exist
func (r *Repository) GetCommodity(ctx context.Context, id int64) (*models.Commodity, error) {
	var commodity models.Commodity
	if err := r.db.WithContext(ctx).First(&commodity, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("GetCommodity: %w", err)
	}
	return &commodity, nil
}
