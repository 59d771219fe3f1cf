package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	models "harga-pangan/database/models_pkg"
)

// Repository runs dashboard read queries over a plain database/sql connection
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new analytics repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Totals counts active commodities, provinces, regencies and observations
func (r *Repository) Totals(ctx context.Context) (models.Totals, error) {
	var totals models.Totals
	err := r.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM commodities WHERE is_active = TRUE),
			(SELECT COUNT(*) FROM provinces),
			(SELECT COUNT(*) FROM regencies),
			(SELECT COUNT(*) FROM daily_prices)
	`).Scan(&totals.CommodityCount, &totals.ProvinceCount, &totals.RegencyCount, &totals.PriceCount)
	if err != nil {
		return totals, fmt.Errorf("Totals: %w", err)
	}
	return totals, nil
}

// LatestDate returns the newest observation date, or nil for an empty store
func (r *Repository) LatestDate(ctx context.Context) (*time.Time, error) {
	var latest sql.NullTime
	if err := r.db.QueryRowContext(ctx, `SELECT MAX(date) FROM daily_prices`).Scan(&latest); err != nil {
		return nil, fmt.Errorf("LatestDate: %w", err)
	}
	if !latest.Valid {
		return nil, nil
	}
	t := time.Date(latest.Time.Year(), latest.Time.Month(), latest.Time.Day(), 0, 0, 0, 0, time.UTC)
	return &t, nil
}

// AveragesByCommodity returns the mean price per commodity of all observations dated exactly day
func (r *Repository) AveragesByCommodity(ctx context.Context, day time.Time) ([]models.CommodityAverage, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT commodity_id, AVG(price)
		FROM daily_prices
		WHERE date = $1::date
		GROUP BY commodity_id
		ORDER BY commodity_id
	`, day.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("AveragesByCommodity: %w", err)
	}
	defer rows.Close()

	var averages []models.CommodityAverage
	for rows.Next() {
		avg := models.CommodityAverage{Date: day}
		if err := rows.Scan(&avg.CommodityID, &avg.Average); err != nil {
			return nil, fmt.Errorf("AveragesByCommodity scan: %w", err)
		}
		averages = append(averages, avg)
	}
	return averages, rows.Err()
}

// AlertWindowRows returns, for every (province, regency, commodity), the
// observations dated within windowDays of that combination's own latest date,
// ordered by combination then date ascending.
func (r *Repository) AlertWindowRows(ctx context.Context, windowDays int) ([]models.DailyPrice, error) {
	rows, err := r.db.QueryContext(ctx, `
		WITH latest AS (
			SELECT province_id, regency_id, commodity_id, MAX(date) AS latest_date
			FROM daily_prices
			GROUP BY province_id, regency_id, commodity_id
		)
		SELECT d.id, d.province_id, d.regency_id, d.commodity_id, d.date, d.price, d.source
		FROM daily_prices d
		JOIN latest l
		  ON d.province_id = l.province_id
		 AND d.regency_id = l.regency_id
		 AND d.commodity_id = l.commodity_id
		 AND d.date >= l.latest_date - $1::int
		ORDER BY d.province_id, d.regency_id, d.commodity_id, d.date
	`, windowDays)
	if err != nil {
		return nil, fmt.Errorf("AlertWindowRows: %w", err)
	}
	defer rows.Close()

	var items []models.DailyPrice
	for rows.Next() {
		var p models.DailyPrice
		if err := rows.Scan(&p.ID, &p.ProvinceID, &p.RegencyID, &p.CommodityID, &p.Date, &p.Price, &p.Source); err != nil {
			return nil, fmt.Errorf("AlertWindowRows scan: %w", err)
		}
		items = append(items, p)
	}
	return items, rows.Err()
}
