package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Price sources
const (
	SourceManual    = "MANUAL"
	SourceGovAPI    = "GOV_API"
	SourceSeedDummy = "SEED_DUMMY"
)

// IsValidSource reports whether s is a known observation origin tag
func IsValidSource(s string) bool {
	switch s {
	case SourceManual, SourceGovAPI, SourceSeedDummy:
		return true
	}
	return false
}

// Sync run statuses
const (
	SyncStatusSuccess = "SUCCESS"
	SyncStatusFailed  = "FAILED"
)

// Training run statuses
const (
	TrainingStatusRunning = "RUNNING"
	TrainingStatusSuccess = "SUCCESS"
	TrainingStatusFailed  = "FAILED"
)

// Province is a first-level administrative region.
// Code is the BPS province code used by the government pricing API ("31", "32").
type Province struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Code      string    `gorm:"size:10;uniqueIndex;not null" json:"code"`
	Name      string    `gorm:"size:100;not null" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for Province
func (Province) TableName() string {
	return "provinces"
}

// Regency is a second-level region (kabupaten/kota). Code is unique within a province.
type Regency struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ProvinceID int64     `gorm:"not null;uniqueIndex:idx_regency_province_code" json:"province_id"`
	Code       string    `gorm:"size:10;not null;uniqueIndex:idx_regency_province_code" json:"code"`
	Name       string    `gorm:"size:100;not null" json:"name"`
	Province   *Province `gorm:"foreignKey:ProvinceID" json:"province,omitempty"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for Regency
func (Regency) TableName() string {
	return "regencies"
}

// Commodity is a tracked food commodity. Its ID doubles as the external commodity id.
type Commodity struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name"`
	Category  string    `gorm:"size:100;not null" json:"category"`
	Unit      string    `gorm:"size:20;not null" json:"unit"`
	IsActive  bool      `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for Commodity
func (Commodity) TableName() string {
	return "commodities"
}

// PriceKey is the natural key of a daily price observation
type PriceKey struct {
	ProvinceID  int64
	RegencyID   int64
	CommodityID int64
	Date        time.Time
}

// String renders the key for logs and error messages
func (k PriceKey) String() string {
	return fmt.Sprintf("%d/%d/%d@%s", k.ProvinceID, k.RegencyID, k.CommodityID, k.Date.Format("2006-01-02"))
}

// DailyPrice is one recorded price for a commodity in a region on a calendar day.
//
// Key Fields:
//   - (ProvinceID, RegencyID, CommodityID, Date): natural key, unique
//   - Price: positive amount in Rupiah
//   - Source: MANUAL, GOV_API or SEED_DUMMY
//
// Rows are created by manual entry (strictly additive) or by the government
// sync (insert-or-overwrite). They are never deleted by the ingestion engine.
type DailyPrice struct {
	ID          int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	ProvinceID  int64           `gorm:"not null;uniqueIndex:idx_daily_price_natural_key,priority:1" json:"province_id"`
	RegencyID   int64           `gorm:"not null;uniqueIndex:idx_daily_price_natural_key,priority:2" json:"regency_id"`
	CommodityID int64           `gorm:"not null;uniqueIndex:idx_daily_price_natural_key,priority:3;index" json:"commodity_id"`
	Date        time.Time       `gorm:"type:date;not null;uniqueIndex:idx_daily_price_natural_key,priority:4;index" json:"date"`
	Price       decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"price"`
	Source      string          `gorm:"size:20;not null" json:"source"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`

	Province  *Province  `gorm:"foreignKey:ProvinceID" json:"province,omitempty"`
	Regency   *Regency   `gorm:"foreignKey:RegencyID" json:"regency,omitempty"`
	Commodity *Commodity `gorm:"foreignKey:CommodityID" json:"commodity,omitempty"`
}

// TableName specifies the table name for DailyPrice
func (DailyPrice) TableName() string {
	return "daily_prices"
}

// Key returns the natural key of the observation
func (p DailyPrice) Key() PriceKey {
	return PriceKey{
		ProvinceID:  p.ProvinceID,
		RegencyID:   p.RegencyID,
		CommodityID: p.CommodityID,
		Date:        p.Date,
	}
}

// SyncDetails is the structured part of a sync run audit record
type SyncDetails struct {
	RunID       string         `json:"run_id"`
	From        string         `json:"from"`
	To          string         `json:"to"`
	Fetched     int            `json:"fetched"`
	Inserted    int            `json:"inserted"`
	Updated     int            `json:"updated"`
	Skipped     int            `json:"skipped"`
	SkipReasons map[string]int `json:"skip_reasons,omitempty"`
	Error       string         `json:"error,omitempty"`
	Stage       string         `json:"stage,omitempty"` // fetch, decode, reconcile
}

// Value implements driver.Valuer so details persist as a JSON document
func (d SyncDetails) Value() (driver.Value, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (d *SyncDetails) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*d = SyncDetails{}
		return nil
	case []byte:
		return json.Unmarshal(v, d)
	case string:
		return json.Unmarshal([]byte(v), d)
	default:
		return fmt.Errorf("unsupported SyncDetails source type %T", src)
	}
}

// SyncLog is the immutable audit record of one government sync execution.
// Exactly one row is written per sync invocation that passes configuration checks.
type SyncLog struct {
	ID           int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	Status       string      `gorm:"size:10;not null;index" json:"status"` // SUCCESS, FAILED
	RunAt        time.Time   `gorm:"not null;index" json:"run_at"`
	Records      int         `gorm:"not null;default:0" json:"records"` // inserted + updated
	ErrorMessage *string     `gorm:"type:text" json:"error_message"`
	Details      SyncDetails `gorm:"type:jsonb" json:"details"`
}

// TableName specifies the table name for SyncLog
func (SyncLog) TableName() string {
	return "sync_logs"
}

// PredictionKey is the natural key of a forecast point
type PredictionKey struct {
	ProvinceID     int64
	RegencyID      int64
	CommodityID    int64
	PredictionDate time.Time
}

// PricePrediction is a forecast price point, unique per region/commodity/day
type PricePrediction struct {
	ID             int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	ProvinceID     int64           `gorm:"not null;uniqueIndex:idx_price_prediction_natural_key,priority:1" json:"province_id"`
	RegencyID      int64           `gorm:"not null;uniqueIndex:idx_price_prediction_natural_key,priority:2" json:"regency_id"`
	CommodityID    int64           `gorm:"not null;uniqueIndex:idx_price_prediction_natural_key,priority:3" json:"commodity_id"`
	PredictionDate time.Time       `gorm:"type:date;not null;uniqueIndex:idx_price_prediction_natural_key,priority:4" json:"prediction_date"`
	PredictedPrice decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"predicted_price"`
	ModelName      string          `gorm:"size:100;not null" json:"model_name"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for PricePrediction
func (PricePrediction) TableName() string {
	return "price_predictions"
}

// Key returns the natural key of the prediction
func (p PricePrediction) Key() PredictionKey {
	return PredictionKey{
		ProvinceID:     p.ProvinceID,
		RegencyID:      p.RegencyID,
		CommodityID:    p.CommodityID,
		PredictionDate: p.PredictionDate,
	}
}

// ModelTrainingRun tracks one training request sent to the prediction service
type ModelTrainingRun struct {
	ID           int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	ModelName    string     `gorm:"size:100;not null" json:"model_name"`
	ModelType    string     `gorm:"size:30;not null" json:"model_type"`
	Status       string     `gorm:"size:10;not null;index" json:"status"`
	StartedAt    time.Time  `gorm:"autoCreateTime;index" json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	RMSE         *float64   `json:"rmse,omitempty"`
	MAE          *float64   `json:"mae,omitempty"`
	MAPE         *float64   `json:"mape,omitempty"`
	Precision    *float64   `json:"precision,omitempty"`
	Recall       *float64   `json:"recall,omitempty"`
	F1           *float64   `json:"f1,omitempty"`
	RocAuc       *float64   `json:"roc_auc,omitempty"`
	ErrorMessage string     `gorm:"type:text" json:"error_message,omitempty"`
}

// TableName specifies the table name for ModelTrainingRun
func (ModelTrainingRun) TableName() string {
	return "model_training_runs"
}

// SystemSetting is the single-row operational settings record
type SystemSetting struct {
	ID                  int64     `gorm:"primaryKey" json:"id"`
	PriceSpikeThreshold float64   `gorm:"type:decimal(6,2);not null;default:15" json:"price_spike_threshold"` // Percent
	Timezone            string    `gorm:"size:50;default:Asia/Jakarta" json:"timezone"`
	Language            string    `gorm:"size:10;default:id" json:"language"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for SystemSetting
func (SystemSetting) TableName() string {
	return "system_settings"
}

// PriceWebhook holds webhook registration for change events
type PriceWebhook struct {
	ID                int        `gorm:"primaryKey;autoIncrement" json:"id"`
	Name              string     `gorm:"size:100;not null" json:"name"`
	URL               string     `gorm:"not null" json:"url"`
	Method            string     `gorm:"size:10;default:POST" json:"method"`
	AuthType          string     `gorm:"size:20" json:"auth_type"` // BEARER or custom header
	AuthHeader        string     `gorm:"size:100" json:"auth_header"`
	AuthValue         string     `json:"auth_value"`
	EventTypes        string     `json:"event_types"` // CSV or JSON array; empty means all
	IsActive          bool       `gorm:"default:true" json:"is_active"`
	RetryCount        int        `gorm:"default:3" json:"retry_count"`
	RetryDelaySeconds int        `gorm:"default:5" json:"retry_delay_seconds"`
	LastTriggeredAt   *time.Time `json:"last_triggered_at,omitempty"`
	TotalSent         int        `gorm:"default:0" json:"total_sent"`
	TotalFailed       int        `gorm:"default:0" json:"total_failed"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for PriceWebhook
func (PriceWebhook) TableName() string {
	return "price_webhooks"
}

// PriceWebhookLog holds webhook delivery logs
type PriceWebhookLog struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	WebhookID      int       `gorm:"index;not null" json:"webhook_id"`
	EventType      string    `gorm:"size:50;not null" json:"event_type"`
	TriggeredAt    time.Time `gorm:"index;not null" json:"triggered_at"`
	Status         string    `gorm:"type:text" json:"status"` // SUCCESS, FAILED
	HTTPStatusCode *int      `json:"http_status_code,omitempty"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	RetryAttempt   int       `gorm:"default:0" json:"retry_attempt"`
}

// TableName specifies the table name for PriceWebhookLog
func (PriceWebhookLog) TableName() string {
	return "price_webhook_logs"
}
