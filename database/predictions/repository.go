package predictions

import (
	"context"
	"errors"
	"fmt"
	"time"

	models "harga-pangan/database/models_pkg"

	"gorm.io/gorm"
)

// Repository stores forecast points produced by the prediction service
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new prediction repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// UpsertBatch applies every point inside one transaction: a point whose natural
// key exists has predicted price and model name overwritten, otherwise it is
// inserted. Any failure rolls the whole batch back.
func (r *Repository) UpsertBatch(ctx context.Context, points []models.PricePrediction) ([]models.PricePrediction, error) {
	if len(points) == 0 {
		return []models.PricePrediction{}, nil
	}

	saved := make([]models.PricePrediction, 0, len(points))
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, point := range points {
			var existing models.PricePrediction
			err := tx.Where("province_id = ? AND regency_id = ? AND commodity_id = ? AND prediction_date = ?",
				point.ProvinceID, point.RegencyID, point.CommodityID, point.PredictionDate.Format("2006-01-02")).
				First(&existing).Error

			switch {
			case err == nil:
				existing.PredictedPrice = point.PredictedPrice
				existing.ModelName = point.ModelName
				if err := tx.Save(&existing).Error; err != nil {
					return fmt.Errorf("update prediction %s: %w", point.PredictionDate.Format("2006-01-02"), err)
				}
				saved = append(saved, existing)
			case errors.Is(err, gorm.ErrRecordNotFound):
				created := point
				created.ID = 0
				if err := tx.Create(&created).Error; err != nil {
					return fmt.Errorf("insert prediction %s: %w", point.PredictionDate.Format("2006-01-02"), err)
				}
				saved = append(saved, created)
			default:
				return fmt.Errorf("lookup prediction %s: %w", point.PredictionDate.Format("2006-01-02"), err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("UpsertBatch: %w", err)
	}
	return saved, nil
}

// List returns stored predictions for a region/commodity ordered by prediction date.
// Zero from/to leave that side of the range open.
func (r *Repository) List(ctx context.Context, provinceID, regencyID, commodityID int64, from, to time.Time) ([]models.PricePrediction, error) {
	query := r.db.WithContext(ctx).
		Where("province_id = ? AND regency_id = ? AND commodity_id = ?", provinceID, regencyID, commodityID)
	if !from.IsZero() {
		query = query.Where("prediction_date >= ?", from.Format("2006-01-02"))
	}
	if !to.IsZero() {
		query = query.Where("prediction_date <= ?", to.Format("2006-01-02"))
	}

	var items []models.PricePrediction
	if err := query.Order("prediction_date ASC").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	return items, nil
}
