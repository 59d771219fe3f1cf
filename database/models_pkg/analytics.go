package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Totals holds dashboard reference and observation counts
type Totals struct {
	CommodityCount int64 `json:"commodity_count"` // active commodities only
	ProvinceCount  int64 `json:"province_count"`
	RegencyCount   int64 `json:"regency_count"`
	PriceCount     int64 `json:"price_count"`
}

// CommodityAverage is the mean observed price of a commodity on one day
type CommodityAverage struct {
	CommodityID int64
	Date        time.Time
	Average     decimal.Decimal
}

// PriceFilter selects daily prices for listing. Nil pointers are unconstrained.
type PriceFilter struct {
	ProvinceID  *int64
	RegencyID   *int64
	CommodityID *int64
	DateFrom    *time.Time
	DateTo      *time.Time
	Skip        int
	Take        int
}
