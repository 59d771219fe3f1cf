package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"harga-pangan/database"
	models "harga-pangan/database/models_pkg"
	"harga-pangan/govapi"
)

// ManualEntryRequest is a user-submitted observation
type ManualEntryRequest struct {
	ProvinceID  int64
	RegencyID   int64
	CommodityID int64
	Date        time.Time
	Price       decimal.Decimal
	Source      string // defaults to MANUAL
}

// ManualEntry records user-asserted observations. Existing keys are never overwritten.
type ManualEntry struct {
	prices    PriceStore
	reference ReferenceStore
	events    EventPublisher
}

// NewManualEntry creates the manual entry path
func NewManualEntry(prices PriceStore, reference ReferenceStore, events EventPublisher) *ManualEntry {
	if events == nil {
		events = noopPublisher{}
	}
	return &ManualEntry{prices: prices, reference: reference, events: events}
}

// Record validates and inserts a new observation, failing with a ConflictError if the key exists
func (m *ManualEntry) Record(ctx context.Context, req ManualEntryRequest) (*models.DailyPrice, error) {
	if req.Source == "" {
		req.Source = models.SourceManual
	}
	switch {
	case req.ProvinceID <= 0:
		return nil, database.NewValidationError("province_id", "is required")
	case req.RegencyID <= 0:
		return nil, database.NewValidationError("regency_id", "is required")
	case req.CommodityID <= 0:
		return nil, database.NewValidationError("commodity_id", "is required")
	case req.Date.IsZero():
		return nil, database.NewValidationError("date", "is required")
	case !req.Price.IsPositive():
		return nil, database.NewValidationErrorWithValue("price", "must be positive", req.Price.String())
	case !models.IsValidSource(req.Source):
		return nil, database.NewValidationErrorWithValue("source", "unknown source", req.Source)
	}
	amount, err := govapi.NormalizePrice(req.Price)
	if err != nil {
		return nil, database.NewValidationErrorWithValue("price", "must be at least 0.01 and below 10^13", req.Price.String())
	}

	if err := m.checkReferences(ctx, req); err != nil {
		return nil, err
	}

	price := &models.DailyPrice{
		ProvinceID:  req.ProvinceID,
		RegencyID:   req.RegencyID,
		CommodityID: req.CommodityID,
		Date:        dayOf(req.Date),
		Price:       amount,
		Source:      req.Source,
	}
	key := price.Key()

	existing, err := m.prices.FindByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, database.NewConflictError("daily price", key)
	}

	if err := m.prices.Create(ctx, price); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, database.NewConflictError("daily price", key)
		}
		return nil, fmt.Errorf("create daily price: %w", err)
	}

	log.Printf("📝 Recorded %s price %s for %s", price.Source, price.Price.String(), key)
	m.events.Publish(ctx, EventPriceCreated, price)
	return price, nil
}

func (m *ManualEntry) checkReferences(ctx context.Context, req ManualEntryRequest) error {
	province, err := m.reference.GetProvince(ctx, req.ProvinceID)
	if err != nil {
		return err
	}
	if province == nil {
		return database.NewValidationErrorWithValue("province_id", "unknown province", req.ProvinceID)
	}

	regency, err := m.reference.GetRegency(ctx, req.RegencyID)
	if err != nil {
		return err
	}
	if regency == nil {
		return database.NewValidationErrorWithValue("regency_id", "unknown regency", req.RegencyID)
	}
	if regency.ProvinceID != req.ProvinceID {
		return database.NewValidationErrorWithValue("regency_id", "does not belong to province", req.RegencyID)
	}

	commodity, err := m.reference.GetCommodity(ctx, req.CommodityID)
	if err != nil {
		return err
	}
	if commodity == nil {
		return database.NewValidationErrorWithValue("commodity_id", "unknown commodity", req.CommodityID)
	}
	return nil
}
