package engine

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"harga-pangan/database"
	models "harga-pangan/database/models_pkg"
	"harga-pangan/govapi"
	"harga-pangan/mlservice"
)

// GenerateRequest selects the series and horizon to forecast
type GenerateRequest struct {
	ProvinceID  int64
	RegencyID   int64
	CommodityID int64
	StartDate   time.Time
	EndDate     time.Time
}

// PredictionEvent is the payload of a prediction_generated event
type PredictionEvent struct {
	ProvinceID  int64                    `json:"province_id"`
	RegencyID   int64                    `json:"regency_id"`
	CommodityID int64                    `json:"commodity_id"`
	Predictions []models.PricePrediction `json:"predictions"`
	// LastObservedPrice is the newest stored price the forecast was based on
	LastObservedPrice *decimal.Decimal `json:"last_observed_price,omitempty"`
}

// PredictionSummary returns the number of points, the last predicted price and
// its percent change from the last observed price (nil when there is none)
func (e PredictionEvent) PredictionSummary() (int, decimal.Decimal, *float64) {
	if len(e.Predictions) == 0 {
		return 0, decimal.Zero, nil
	}
	last := e.Predictions[len(e.Predictions)-1].PredictedPrice
	if e.LastObservedPrice == nil || !e.LastObservedPrice.IsPositive() {
		return len(e.Predictions), last, nil
	}
	change, _ := last.Sub(*e.LastObservedPrice).Div(*e.LastObservedPrice).Mul(decimal.NewFromInt(100)).Float64()
	return len(e.Predictions), last, &change
}

// PredictionOrchestrator forwards history to the model service and stores the forecast
type PredictionOrchestrator struct {
	prices      PriceStore
	predictions PredictionStore
	predictor   Predictor
	events      EventPublisher
}

// NewPredictionOrchestrator creates a prediction orchestrator
func NewPredictionOrchestrator(prices PriceStore, predictions PredictionStore, predictor Predictor, events EventPublisher) *PredictionOrchestrator {
	if events == nil {
		events = noopPublisher{}
	}
	return &PredictionOrchestrator{
		prices:      prices,
		predictions: predictions,
		predictor:   predictor,
		events:      events,
	}
}

func (r GenerateRequest) validate() error {
	switch {
	case r.ProvinceID <= 0:
		return database.NewValidationError("province_id", "is required")
	case r.RegencyID <= 0:
		return database.NewValidationError("regency_id", "is required")
	case r.CommodityID <= 0:
		return database.NewValidationError("commodity_id", "is required")
	case r.StartDate.IsZero():
		return database.NewValidationError("start_date", "is required")
	case r.EndDate.IsZero():
		return database.NewValidationError("end_date", "is required")
	case dayOf(r.StartDate).After(dayOf(r.EndDate)):
		return database.NewValidationErrorWithValue("start_date", "must not be after end_date", r.StartDate.Format("2006-01-02"))
	}
	return nil
}

// Generate requests a forecast and upserts every returned point in one transaction
func (o *PredictionOrchestrator) Generate(ctx context.Context, req GenerateRequest) ([]models.PricePrediction, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	history, err := o.prices.History(ctx, req.ProvinceID, req.RegencyID, req.CommodityID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	points := make([]mlservice.HistoryPoint, 0, len(history))
	for _, h := range history {
		price, _ := h.Price.Float64()
		points = append(points, mlservice.HistoryPoint{
			Date:  h.Date.Format("2006-01-02"),
			Price: price,
		})
	}

	resp, err := o.predictor.Predict(ctx, mlservice.PredictRequest{
		ProvinceID:  req.ProvinceID,
		RegencyID:   req.RegencyID,
		CommodityID: req.CommodityID,
		StartDate:   dayOf(req.StartDate).Format("2006-01-02"),
		EndDate:     dayOf(req.EndDate).Format("2006-01-02"),
		History:     points,
	})
	if err != nil {
		return nil, &UpstreamError{Service: "prediction service", Err: err}
	}

	// Convert the whole response before writing so a bad point aborts with nothing stored
	batch := make([]models.PricePrediction, 0, len(resp.Predictions))
	positions := make(map[models.PredictionKey]int, len(resp.Predictions))
	for i, p := range resp.Predictions {
		date, err := govapi.ParseDate(p.Date)
		if err != nil {
			return nil, &UpstreamError{Service: "prediction service", Err: fmt.Errorf("point %d: %w", i, err)}
		}
		if math.IsNaN(p.PredictedPrice) || math.IsInf(p.PredictedPrice, 0) {
			return nil, &UpstreamError{Service: "prediction service", Err: fmt.Errorf("point %d: non-finite price", i)}
		}
		price, err := govapi.NormalizePrice(decimal.NewFromFloat(p.PredictedPrice))
		if err != nil {
			return nil, &UpstreamError{Service: "prediction service", Err: fmt.Errorf("point %d: %w", i, err)}
		}
		point := models.PricePrediction{
			ProvinceID:     req.ProvinceID,
			RegencyID:      req.RegencyID,
			CommodityID:    req.CommodityID,
			PredictionDate: date,
			PredictedPrice: price,
			ModelName:      p.ModelName,
		}
		// A repeated day keeps the later point
		if at, ok := positions[point.Key()]; ok {
			batch[at] = point
			continue
		}
		positions[point.Key()] = len(batch)
		batch = append(batch, point)
	}

	if len(batch) == 0 {
		return []models.PricePrediction{}, nil
	}

	saved, err := o.predictions.UpsertBatch(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("store predictions: %w", err)
	}

	log.Printf("📈 Stored %d predictions for %d/%d/%d", len(saved), req.ProvinceID, req.RegencyID, req.CommodityID)
	event := PredictionEvent{
		ProvinceID:  req.ProvinceID,
		RegencyID:   req.RegencyID,
		CommodityID: req.CommodityID,
		Predictions: saved,
	}
	if len(history) > 0 {
		observed := history[len(history)-1].Price
		event.LastObservedPrice = &observed
	}
	o.events.Publish(ctx, EventPredictionGenerated, event)
	return saved, nil
}
