package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	models "harga-pangan/database/models_pkg"
	"harga-pangan/mlservice"
)

// ErrNotConfigured is returned when the government pricing API has no base URL or key
var ErrNotConfigured = errors.New("government pricing API is not configured")

// UpstreamError wraps a failure of an external collaborator (pricing API or model service)
type UpstreamError struct {
	Service string
	Err     error
}

// Error implements the error interface
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

// Unwrap returns the underlying error
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Change event names published to live clients and webhooks
const (
	EventPriceCreated        = "price_created"
	EventPredictionGenerated = "prediction_generated"
)

// PriceStore is the canonical daily price store
type PriceStore interface {
	FindByKey(ctx context.Context, key models.PriceKey) (*models.DailyPrice, error)
	Create(ctx context.Context, price *models.DailyPrice) error
	UpdatePrice(ctx context.Context, id int64, price decimal.Decimal, source string) error
	History(ctx context.Context, provinceID, regencyID, commodityID int64) ([]models.DailyPrice, error)
}

// ReferenceStore resolves provinces, regencies and commodities
type ReferenceStore interface {
	ListProvinces(ctx context.Context) ([]models.Province, error)
	ListRegencies(ctx context.Context, provinceID int64) ([]models.Regency, error)
	ListCommodities(ctx context.Context) ([]models.Commodity, error)
	GetProvince(ctx context.Context, id int64) (*models.Province, error)
	GetRegency(ctx context.Context, id int64) (*models.Regency, error)
	GetCommodity(ctx context.Context, id int64) (*models.Commodity, error)
}

// SyncLogStore persists sync run audit records
type SyncLogStore interface {
	Create(ctx context.Context, run *models.SyncLog) error
}

// PredictionStore applies forecast batches atomically
type PredictionStore interface {
	UpsertBatch(ctx context.Context, points []models.PricePrediction) ([]models.PricePrediction, error)
}

// TrendStore serves the dashboard read queries
type TrendStore interface {
	Totals(ctx context.Context) (models.Totals, error)
	LatestDate(ctx context.Context) (*time.Time, error)
	AveragesByCommodity(ctx context.Context, day time.Time) ([]models.CommodityAverage, error)
	AlertWindowRows(ctx context.Context, windowDays int) ([]models.DailyPrice, error)
}

// TrainingStore persists model training runs
type TrainingStore interface {
	Create(ctx context.Context, run *models.ModelTrainingRun) error
	Save(ctx context.Context, run *models.ModelTrainingRun) error
	ListLatest(ctx context.Context, limit int) ([]models.ModelTrainingRun, error)
	LatestSuccess(ctx context.Context) (*models.ModelTrainingRun, error)
}

// SettingsStore reads and writes the single system settings row
type SettingsStore interface {
	GetSystemSetting(ctx context.Context) (*models.SystemSetting, error)
	SaveSystemSetting(ctx context.Context, setting *models.SystemSetting) error
}

// GovFetcher fetches raw rows from the government pricing API
type GovFetcher interface {
	FetchPrices(ctx context.Context, from, to time.Time) ([]map[string]any, error)
}

// Predictor is the forecasting side of the model service
type Predictor interface {
	Predict(ctx context.Context, req mlservice.PredictRequest) (*mlservice.PredictResponse, error)
}

// ModelService is the training side of the model service
type ModelService interface {
	Train(ctx context.Context, req mlservice.TrainRequest) (*mlservice.TrainResponse, error)
	GetMetrics(ctx context.Context) (*mlservice.ModelMetrics, error)
}

// EventPublisher receives change events after they are committed
type EventPublisher interface {
	Publish(ctx context.Context, event string, payload any)
}

// SummaryCache stores the rendered dashboard between refreshes
type SummaryCache interface {
	Load(ctx context.Context, dest any) bool
	Store(ctx context.Context, value any)
	Invalidate(ctx context.Context)
}

// Fanout publishes every event to each publisher in order
type Fanout []EventPublisher

// Publish implements EventPublisher
func (f Fanout) Publish(ctx context.Context, event string, payload any) {
	for _, p := range f {
		if p != nil {
			p.Publish(ctx, event, payload)
		}
	}
}

// noopPublisher is used when no live channel is wired
type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, string, any) {}

// noopCache disables dashboard caching
type noopCache struct{}

func (noopCache) Load(context.Context, any) bool { return false }
func (noopCache) Store(context.Context, any)     {}
func (noopCache) Invalidate(context.Context)     {}

// dayOf truncates t to its calendar day at UTC midnight
func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
