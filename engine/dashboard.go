package engine

import (
	"context"
	"log"
	"time"
	_ "time/tzdata" // settings accept IANA zones on hosts without a zoneinfo database

	"harga-pangan/database"
	models "harga-pangan/database/models_pkg"
	"harga-pangan/mlservice"
)

// Settings defaults used until the settings row is first written
const (
	defaultTimezone = "Asia/Jakarta"
	defaultLanguage = "id"
)

// Dashboard is the read model served to the dashboard
type Dashboard struct {
	TrendSummary
	ModelMetrics   *mlservice.ModelMetrics `json:"model_metrics"`
	SpikeThreshold float64                 `json:"spike_threshold"`
}

// DashboardService layers the spike threshold, model metrics and caching over the trend engine
type DashboardService struct {
	trend            *TrendEngine
	modelSvc         ModelService
	settings         SettingsStore
	cache            SummaryCache
	defaultThreshold float64
}

// NewDashboardService creates a dashboard service
func NewDashboardService(trend *TrendEngine, modelSvc ModelService, settings SettingsStore, cache SummaryCache, defaultThreshold float64) *DashboardService {
	if cache == nil {
		cache = noopCache{}
	}
	return &DashboardService{
		trend:            trend,
		modelSvc:         modelSvc,
		settings:         settings,
		cache:            cache,
		defaultThreshold: defaultThreshold,
	}
}

// Summary returns the cached dashboard or recomputes it
func (s *DashboardService) Summary(ctx context.Context) (*Dashboard, error) {
	var cached Dashboard
	if s.cache.Load(ctx, &cached) {
		return &cached, nil
	}

	summary, err := s.trend.Summarize(ctx)
	if err != nil {
		return nil, err
	}

	setting, err := s.Settings(ctx)
	if err != nil {
		return nil, err
	}

	dashboard := &Dashboard{
		TrendSummary:   *summary,
		SpikeThreshold: setting.PriceSpikeThreshold,
	}
	MarkSpikes(dashboard.Alerts, setting.PriceSpikeThreshold)

	if s.modelSvc != nil {
		metrics, err := s.modelSvc.GetMetrics(ctx)
		if err != nil {
			log.Printf("⚠️  Model metrics unavailable: %v", err)
		} else {
			dashboard.ModelMetrics = metrics
		}
	}

	s.cache.Store(ctx, dashboard)
	return dashboard, nil
}

// MarkSpikes flags alerts whose change reaches the threshold. Nothing is removed.
func MarkSpikes(alerts []AlertSignal, threshold float64) {
	for i := range alerts {
		alerts[i].IsSpike = alerts[i].ChangePct != nil && *alerts[i].ChangePct >= threshold
	}
}

// Settings returns the stored settings, or the defaults when none were saved
func (s *DashboardService) Settings(ctx context.Context) (*models.SystemSetting, error) {
	setting, err := s.settings.GetSystemSetting(ctx)
	if err != nil {
		return nil, err
	}
	if setting == nil {
		setting = &models.SystemSetting{
			PriceSpikeThreshold: s.defaultThreshold,
			Timezone:            defaultTimezone,
			Language:            defaultLanguage,
		}
	}
	return setting, nil
}

// UpdateSettings validates and stores the settings row, then drops the cached dashboard
func (s *DashboardService) UpdateSettings(ctx context.Context, setting *models.SystemSetting) (*models.SystemSetting, error) {
	if setting.PriceSpikeThreshold <= 0 {
		return nil, database.NewValidationErrorWithValue("price_spike_threshold", "must be positive", setting.PriceSpikeThreshold)
	}
	if setting.Timezone == "" {
		setting.Timezone = defaultTimezone
	}
	if _, err := time.LoadLocation(setting.Timezone); err != nil {
		return nil, database.NewValidationErrorWithValue("timezone", "unknown time zone", setting.Timezone)
	}
	if setting.Language == "" {
		setting.Language = defaultLanguage
	}

	if err := s.settings.SaveSystemSetting(ctx, setting); err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx)
	return setting, nil
}

// Publish drops the cached dashboard when a new observation is recorded
func (s *DashboardService) Publish(ctx context.Context, event string, _ any) {
	if event == EventPriceCreated {
		s.cache.Invalidate(ctx)
	}
}
