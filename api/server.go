package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	models "harga-pangan/database/models_pkg"
	"harga-pangan/engine"
)

// DashboardService serves the dashboard summary and system settings
type DashboardService interface {
	Summary(ctx context.Context) (*engine.Dashboard, error)
	Settings(ctx context.Context) (*models.SystemSetting, error)
	UpdateSettings(ctx context.Context, setting *models.SystemSetting) (*models.SystemSetting, error)
}

// PriceReader lists stored daily prices
type PriceReader interface {
	List(ctx context.Context, filter models.PriceFilter) ([]models.DailyPrice, int64, error)
	ListRange(ctx context.Context, commodityID int64, provinceID *int64, from, to time.Time) ([]models.DailyPrice, error)
}

// ManualRecorder records user-submitted observations
type ManualRecorder interface {
	Record(ctx context.Context, req engine.ManualEntryRequest) (*models.DailyPrice, error)
}

// PredictionGenerator requests and stores forecasts
type PredictionGenerator interface {
	Generate(ctx context.Context, req engine.GenerateRequest) ([]models.PricePrediction, error)
}

// PredictionReader lists stored forecasts
type PredictionReader interface {
	List(ctx context.Context, provinceID, regencyID, commodityID int64, from, to time.Time) ([]models.PricePrediction, error)
}

// Syncer runs the government price sync
type Syncer interface {
	Sync(ctx context.Context, from, to *time.Time) (engine.SyncResult, error)
}

// SyncLogReader lists sync run audit records
type SyncLogReader interface {
	ListLatest(ctx context.Context, limit int) ([]models.SyncLog, error)
}

// Trainer starts and lists model training runs
type Trainer interface {
	Train(ctx context.Context, req engine.TrainRequest) (*models.ModelTrainingRun, error)
	ListRuns(ctx context.Context) ([]models.ModelTrainingRun, error)
	LatestMetrics(ctx context.Context) (*models.ModelTrainingRun, error)
}

// ReferenceReader lists regions and commodities
type ReferenceReader interface {
	ListProvinces(ctx context.Context) ([]models.Province, error)
	ListRegencies(ctx context.Context, provinceID int64) ([]models.Regency, error)
	ListCommodities(ctx context.Context) ([]models.Commodity, error)
}

// WebhookRepository manages webhook registrations
type WebhookRepository interface {
	GetWebhooks() ([]models.PriceWebhook, error)
	GetWebhookByID(id int) (*models.PriceWebhook, error)
	SaveWebhook(webhook *models.PriceWebhook) error
	DeleteWebhook(id int) error
}

// WebhookCache is refreshed after registrations change
type WebhookCache interface {
	RefreshCache()
}

// Pinger reports whether a backing store is reachable
type Pinger interface {
	Ping() error
}

// ClientCounter reports connected live clients
type ClientCounter interface {
	ClientCount() int
}

// Deps holds the collaborators served over HTTP. Nil streams disable their routes.
type Deps struct {
	Dashboard    DashboardService
	Prices       PriceReader
	Manual       ManualRecorder
	Generator    PredictionGenerator
	Predictions  PredictionReader
	Sync         Syncer
	SyncLogs     SyncLogReader
	Trainer      Trainer
	Reference    ReferenceReader
	Webhooks     WebhookRepository
	WebhookCache WebhookCache
	Stream       http.Handler  // SSE change channel
	Socket       http.Handler  // WebSocket change channel
	Database     Pinger        // optional, checked by /health
	LiveClients  ClientCounter // optional, reported by /health
}

// Server handles HTTP API requests
type Server struct {
	deps       Deps
	mu         sync.Mutex
	httpServer *http.Server
}

// NewServer creates a new API server instance
func NewServer(deps Deps) *Server {
	return &Server{deps: deps}
}

// Handler builds the routed handler with middleware applied
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	// Dashboard
	mux.HandleFunc("GET /api/dashboard/summary", s.handleDashboardSummary)

	// Prices
	mux.HandleFunc("GET /api/prices/daily", s.handleListDailyPrices)
	mux.HandleFunc("POST /api/prices/daily", requireRoles(s.handleCreateDailyPrice))
	mux.HandleFunc("POST /api/prices/predictions/generate", requireRoles(s.handleGeneratePredictions))
	mux.HandleFunc("GET /api/prices/predictions", s.handleListPredictions)
	if s.deps.Stream != nil {
		mux.Handle("GET /api/prices/stream", s.deps.Stream)
	}
	if s.deps.Socket != nil {
		mux.Handle("GET /api/prices/ws", s.deps.Socket)
	}

	// Government integration
	mux.HandleFunc("POST /api/integrations/gov/prices/sync", requireRoles(s.handleGovSync, RoleAdmin, RoleAnalyst))
	mux.HandleFunc("GET /api/integrations/gov/sync-logs", requireRoles(s.handleGetSyncLogs, RoleAdmin, RoleAnalyst))

	// Models
	mux.HandleFunc("GET /api/models/active", requireRoles(s.handleGetActiveModel))
	mux.HandleFunc("GET /api/models/runs", requireRoles(s.handleGetTrainingRuns, RoleAdmin, RoleAnalyst))
	mux.HandleFunc("POST /api/models/train", requireRoles(s.handleTrainModel, RoleAdmin, RoleAnalyst))

	// Reference data
	mux.HandleFunc("GET /api/regions/provinces", s.handleGetProvinces)
	mux.HandleFunc("GET /api/regions/regencies", s.handleGetRegencies)
	mux.HandleFunc("GET /api/commodities", s.handleGetCommodities)

	// Settings
	mux.HandleFunc("GET /api/settings", requireRoles(s.handleGetSettings))
	mux.HandleFunc("PUT /api/settings", requireRoles(s.handleUpdateSettings, RoleAdmin))

	// Webhook Management Routes
	mux.HandleFunc("GET /api/config/webhooks", requireRoles(s.handleGetWebhooks, RoleAdmin))
	mux.HandleFunc("POST /api/config/webhooks", requireRoles(s.handleCreateWebhook, RoleAdmin))
	mux.HandleFunc("PUT /api/config/webhooks/{id}", requireRoles(s.handleUpdateWebhook, RoleAdmin))
	mux.HandleFunc("DELETE /api/config/webhooks/{id}", requireRoles(s.handleDeleteWebhook, RoleAdmin))

	// Reports
	mux.HandleFunc("GET /api/reports/prices.csv", requireRoles(s.handleExportPricesCSV, RoleAdmin, RoleAnalyst))

	return s.corsMiddleware(s.loggingMiddleware(mux))
}

// Start starts the HTTP server on the specified port and blocks until it stops
func (s *Server) Start(port int) error {
	serverAddr := fmt.Sprintf("0.0.0.0:%d", port)
	httpServer := &http.Server{
		Addr:              serverAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.httpServer = httpServer
	s.mu.Unlock()

	log.Printf("🚀 API Server starting on %s", serverAddr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	httpServer := s.httpServer
	s.mu.Unlock()
	if httpServer == nil {
		return nil
	}
	return httpServer.Shutdown(ctx)
}

// Middleware
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-User-ID, X-User-Role, X-Request-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
			r.Header.Set("X-Request-ID", requestID)
		}
		w.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(w, r)
		log.Printf("%s %s %v [%s]", r.Method, r.URL.Path, time.Since(start), requestID)
	})
}

// Handlers are distributed across multiple files:
// - handlers_prices.go: daily prices, manual entry, predictions, CSV export
// - handlers_sync.go: government sync trigger and audit log
// - handlers_models.go: model training and metrics
// - handlers_config.go: health, reference data, settings, webhooks
