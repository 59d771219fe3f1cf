package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	models "harga-pangan/database/models_pkg"
)

// trendWindowDays is both the week-over-week offset and the alert lookback
const trendWindowDays = 7

var hundred = decimal.NewFromInt(100)

// ChangePct returns (current - previous) / previous * 100, or nil when previous is nil or zero
func ChangePct(current decimal.Decimal, previous *decimal.Decimal) *float64 {
	if previous == nil || previous.IsZero() {
		return nil
	}
	pct, _ := current.Sub(*previous).Div(*previous).Mul(hundred).Float64()
	return &pct
}

// PriceChange compares a commodity's average on the latest date with the average one week earlier
type PriceChange struct {
	CommodityID int64            `json:"commodity_id"`
	Current     decimal.Decimal  `json:"current"`
	LastWeek    *decimal.Decimal `json:"last_week"`
	ChangePct   *float64         `json:"change_pct"`
}

// AlertSignal is the latest vs preceding observation of one region/commodity combination
type AlertSignal struct {
	ProvinceID    int64            `json:"province_id"`
	RegencyID     int64            `json:"regency_id"`
	CommodityID   int64            `json:"commodity_id"`
	Date          time.Time        `json:"date"`
	LatestPrice   decimal.Decimal  `json:"latest_price"`
	PreviousDate  *time.Time       `json:"previous_date"`
	PreviousPrice *decimal.Decimal `json:"previous_price"`
	ChangePct     *float64         `json:"change_pct"`
	IsSpike       bool             `json:"is_spike"`
}

// TrendSummary is the raw dashboard signal set
type TrendSummary struct {
	Totals      models.Totals `json:"totals"`
	LatestDate  time.Time     `json:"latest_date"`
	PriceChange []PriceChange `json:"price_change"`
	Alerts      []AlertSignal `json:"alerts"`
}

// TrendEngine computes week-over-week changes and per-combination alerts
type TrendEngine struct {
	store TrendStore
	now   func() time.Time
}

// NewTrendEngine creates a trend engine
func NewTrendEngine(store TrendStore) *TrendEngine {
	return &TrendEngine{store: store, now: time.Now}
}

// Summarize recomputes the signal set from stored observations
func (t *TrendEngine) Summarize(ctx context.Context) (*TrendSummary, error) {
	totals, err := t.store.Totals(ctx)
	if err != nil {
		return nil, fmt.Errorf("totals: %w", err)
	}

	latest := dayOf(t.now())
	stored, err := t.store.LatestDate(ctx)
	if err != nil {
		return nil, fmt.Errorf("latest date: %w", err)
	}
	if stored != nil {
		latest = dayOf(*stored)
	}

	changes, err := t.priceChanges(ctx, latest)
	if err != nil {
		return nil, err
	}

	rows, err := t.store.AlertWindowRows(ctx, trendWindowDays)
	if err != nil {
		return nil, fmt.Errorf("alert window: %w", err)
	}

	return &TrendSummary{
		Totals:      totals,
		LatestDate:  latest,
		PriceChange: changes,
		Alerts:      BuildAlerts(rows),
	}, nil
}

func (t *TrendEngine) priceChanges(ctx context.Context, latest time.Time) ([]PriceChange, error) {
	current, err := t.store.AveragesByCommodity(ctx, latest)
	if err != nil {
		return nil, fmt.Errorf("current averages: %w", err)
	}
	previous, err := t.store.AveragesByCommodity(ctx, latest.AddDate(0, 0, -trendWindowDays))
	if err != nil {
		return nil, fmt.Errorf("last week averages: %w", err)
	}

	lastWeek := make(map[int64]decimal.Decimal, len(previous))
	for _, avg := range previous {
		lastWeek[avg.CommodityID] = avg.Average
	}

	changes := make([]PriceChange, 0, len(current))
	for _, avg := range current {
		change := PriceChange{
			CommodityID: avg.CommodityID,
			Current:     avg.Average,
		}
		if prev, ok := lastWeek[avg.CommodityID]; ok {
			change.LastWeek = &prev
		}
		change.ChangePct = ChangePct(change.Current, change.LastWeek)
		changes = append(changes, change)
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].CommodityID < changes[j].CommodityID })
	return changes, nil
}

type comboKey struct {
	provinceID, regencyID, commodityID int64
}

// BuildAlerts groups observations per combination and pairs each combination's
// latest observation with the one immediately before it, provided that one is
// no older than 7 days before the latest.
func BuildAlerts(rows []models.DailyPrice) []AlertSignal {
	groups := make(map[comboKey][]models.DailyPrice)
	var order []comboKey
	for _, row := range rows {
		key := comboKey{row.ProvinceID, row.RegencyID, row.CommodityID}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		row.Date = dayOf(row.Date)
		groups[key] = append(groups[key], row)
	}

	sort.Slice(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if a.provinceID != b.provinceID {
			return a.provinceID < b.provinceID
		}
		if a.regencyID != b.regencyID {
			return a.regencyID < b.regencyID
		}
		return a.commodityID < b.commodityID
	})

	alerts := make([]AlertSignal, 0, len(order))
	for _, key := range order {
		series := groups[key]
		sort.SliceStable(series, func(i, j int) bool { return series[i].Date.Before(series[j].Date) })

		latest := series[len(series)-1]
		alert := AlertSignal{
			ProvinceID:  key.provinceID,
			RegencyID:   key.regencyID,
			CommodityID: key.commodityID,
			Date:        latest.Date,
			LatestPrice: latest.Price,
		}

		windowStart := latest.Date.AddDate(0, 0, -trendWindowDays)
		if len(series) > 1 {
			prev := series[len(series)-2]
			if !prev.Date.Before(windowStart) {
				prevDate, prevPrice := prev.Date, prev.Price
				alert.PreviousDate = &prevDate
				alert.PreviousPrice = &prevPrice
			}
		}
		alert.ChangePct = ChangePct(alert.LatestPrice, alert.PreviousPrice)
		alerts = append(alerts, alert)
	}
	return alerts
}
