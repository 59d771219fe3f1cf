package prices

import (
	"context"
	"errors"
	"fmt"
	"time"

	models "harga-pangan/database/models_pkg"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	defaultTake = 20
	maxTake     = 100
)

// Repository is the canonical store for daily price observations
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new price repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindByKey looks up an observation by its natural key. Returns nil, nil when absent.
func (r *Repository) FindByKey(ctx context.Context, key models.PriceKey) (*models.DailyPrice, error) {
	var price models.DailyPrice
	err := r.db.WithContext(ctx).
		Where("province_id = ? AND regency_id = ? AND commodity_id = ? AND date = ?",
			key.ProvinceID, key.RegencyID, key.CommodityID, key.Date.Format("2006-01-02")).
		First(&price).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("FindByKey: %w", err)
	}
	return &price, nil
}

// Create inserts a new observation. A duplicate natural key surfaces as a
// unique violation (see database.IsUniqueViolation).
func (r *Repository) Create(ctx context.Context, price *models.DailyPrice) error {
	if err := r.db.WithContext(ctx).Create(price).Error; err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

// UpdatePrice overwrites price and source of an existing observation in place
func (r *Repository) UpdatePrice(ctx context.Context, id int64, price decimal.Decimal, source string) error {
	result := r.db.WithContext(ctx).Model(&models.DailyPrice{}).Where("id = ?", id).Updates(map[string]interface{}{
		"price":      price,
		"source":     source,
		"updated_at": time.Now(),
	})
	if result.Error != nil {
		return fmt.Errorf("UpdatePrice: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("UpdatePrice: %w", gorm.ErrRecordNotFound)
	}
	return nil
}

// List returns a page of observations matching the filter, newest first, with the total count
func (r *Repository) List(ctx context.Context, filter models.PriceFilter) ([]models.DailyPrice, int64, error) {
	query := r.applyFilter(r.db.WithContext(ctx).Model(&models.DailyPrice{}), filter)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("List count: %w", err)
	}

	take := filter.Take
	if take <= 0 {
		take = defaultTake
	}
	if take > maxTake {
		take = maxTake
	}
	skip := filter.Skip
	if skip < 0 {
		skip = 0
	}

	var items []models.DailyPrice
	err := query.
		Preload("Province").
		Preload("Regency").
		Preload("Commodity").
		Order("date DESC, id DESC").
		Offset(skip).
		Limit(take).
		Find(&items).Error
	if err != nil {
		return nil, 0, fmt.Errorf("List: %w", err)
	}
	return items, total, nil
}

// ListRange returns every observation of a commodity (optionally one province)
// between two dates, oldest first, for raw exports
func (r *Repository) ListRange(ctx context.Context, commodityID int64, provinceID *int64, from, to time.Time) ([]models.DailyPrice, error) {
	query := r.db.WithContext(ctx).
		Preload("Province").
		Preload("Regency").
		Preload("Commodity").
		Where("commodity_id = ? AND date >= ? AND date <= ?", commodityID, from.Format("2006-01-02"), to.Format("2006-01-02"))
	if provinceID != nil {
		query = query.Where("province_id = ?", *provinceID)
	}

	var items []models.DailyPrice
	if err := query.Order("date ASC, province_id ASC, regency_id ASC").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("ListRange: %w", err)
	}
	return items, nil
}

// History returns the entire series of one region/commodity, oldest first
func (r *Repository) History(ctx context.Context, provinceID, regencyID, commodityID int64) ([]models.DailyPrice, error) {
	var items []models.DailyPrice
	err := r.db.WithContext(ctx).
		Where("province_id = ? AND regency_id = ? AND commodity_id = ?", provinceID, regencyID, commodityID).
		Order("date ASC").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("History: %w", err)
	}
	return items, nil
}

func (r *Repository) applyFilter(query *gorm.DB, filter models.PriceFilter) *gorm.DB {
	if filter.ProvinceID != nil {
		query = query.Where("province_id = ?", *filter.ProvinceID)
	}
	if filter.RegencyID != nil {
		query = query.Where("regency_id = ?", *filter.RegencyID)
	}
	if filter.CommodityID != nil {
		query = query.Where("commodity_id = ?", *filter.CommodityID)
	}
	if filter.DateFrom != nil {
		query = query.Where("date >= ?", filter.DateFrom.Format("2006-01-02"))
	}
	if filter.DateTo != nil {
		query = query.Where("date <= ?", filter.DateTo.Format("2006-01-02"))
	}
	return query
}
