package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"harga-pangan/api"
	"harga-pangan/cache"
	"harga-pangan/config"
	"harga-pangan/database"
	"harga-pangan/database/analytics"
	"harga-pangan/database/predictions"
	"harga-pangan/database/prices"
	"harga-pangan/database/reference"
	"harga-pangan/database/synclogs"
	"harga-pangan/database/training"
	"harga-pangan/engine"
	"harga-pangan/govapi"
	"harga-pangan/mlservice"
	"harga-pangan/notifications"
	"harga-pangan/realtime"
)

// App represents the main application
type App struct {
	config         *config.Config
	db             *database.Database
	readDB         *database.DB
	redis          *cache.RedisClient
	repo           *database.Repository
	webhookManager *notifications.WebhookManager
	broker         *realtime.Broker
	relay          *realtime.Relay
	apiServer      *api.Server
}

// New creates a new application instance
func New(cfg *config.Config) *App {
	return &App{
		config: cfg,
		db:     nil, // Will be initialized in Start()
		redis:  nil, // Will be initialized in Start()
	}
}

// Start starts the application
func (a *App) Start() error {
	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Database Connection
	fmt.Println("🗄️  Connecting to database...")

	dbPort, err := strconv.Atoi(a.config.DatabasePort)
	if err != nil {
		return fmt.Errorf("invalid database port: %w", err)
	}

	db, err := database.Connect(
		a.config.DatabaseHost,
		dbPort,
		a.config.DatabaseName,
		a.config.DatabaseUser,
		a.config.DatabasePassword,
	)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	a.db = db

	// Initialize schema (AutoMigrate + natural-key indexes)
	a.repo = database.NewRepository(a.db)
	if err := a.repo.InitSchema(); err != nil {
		return fmt.Errorf("schema initialization failed: %w", err)
	}

	// 2. Analytics read connection (may point at a replica)
	readDB, err := database.NewConnection(database.Config{
		Host:     a.config.DatabaseReadHost,
		Port:     a.config.DatabasePort,
		User:     a.config.DatabaseUser,
		Password: a.config.DatabasePassword,
		DBName:   a.config.DatabaseName,
	})
	if err != nil {
		return fmt.Errorf("analytics connection failed: %w", err)
	}
	a.readDB = readDB

	// 3. Redis Connection
	fmt.Println("🧠 Connecting to Redis...")
	redisClient := cache.NewRedisClient(
		a.config.RedisHost,
		a.config.RedisPort,
		a.config.RedisPassword,
	)

	if redisClient == nil {
		fmt.Println("⚠️  Redis connection failed. Caching and cross-instance relay disabled.")
	} else {
		a.redis = redisClient
	}
	dashboardCache := cache.NewDashboardCache(a.redis, a.config.Dashboard.CacheTTL)

	// 4. Stores
	priceRepo := prices.NewRepository(a.db.DB())
	predictionRepo := predictions.NewRepository(a.db.DB())
	referenceRepo := reference.NewRepository(a.db.DB())
	syncLogRepo := synclogs.NewRepository(a.db.DB())
	trainingRepo := training.NewRepository(a.db.DB())
	analyticsRepo := analytics.NewRepository(a.readDB.GetConn())

	// 5. Change notification: local live clients, other instances, webhooks
	a.broker = realtime.NewBroker()
	a.relay = realtime.NewRelay(a.redis, a.config.Realtime.RedisChannel, a.broker)
	a.webhookManager = notifications.NewWebhookManager(a.repo, a.redis)

	// 6. External collaborators
	var fetcher engine.GovFetcher
	if a.config.GovAPI.Configured() {
		fetcher = govapi.NewClient(a.config.GovAPI.BaseURL, a.config.GovAPI.APIKey, a.config.GovAPI.Timeout)
		log.Printf("✅ Government pricing API ENABLED (%s)", a.config.GovAPI.BaseURL)
	} else {
		log.Println("ℹ️  Government pricing API not configured, sync DISABLED")
	}
	fields, err := govapi.LoadFieldMap(a.config.GovAPI.FieldMapFile)
	if err != nil {
		return fmt.Errorf("field map: %w", err)
	}
	mlClient := mlservice.NewClient(a.config.MLService.URL, a.config.MLService.Timeout)

	// 7. Engines
	trend := engine.NewTrendEngine(analyticsRepo)
	dashboard := engine.NewDashboardService(trend, mlClient, a.repo, dashboardCache, a.config.Dashboard.DefaultSpikeThreshold)
	events := engine.Fanout{dashboard, a.broker, a.relay, a.webhookManager}

	syncEngine := engine.NewGovSyncEngine(fetcher, fields, priceRepo, referenceRepo, syncLogRepo, dashboardCache)
	manual := engine.NewManualEntry(priceRepo, referenceRepo, events)
	orchestrator := engine.NewPredictionOrchestrator(priceRepo, predictionRepo, mlClient, events)
	trainer := engine.NewModelTrainer(trainingRepo, mlClient, dashboardCache)

	// Setup WaitGroup for goroutines
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.broker.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.relay.Run(ctx)
	}()

	// 8. Start API Server after dependencies are initialized
	a.apiServer = api.NewServer(api.Deps{
		Dashboard:    dashboard,
		Prices:       priceRepo,
		Manual:       manual,
		Generator:    orchestrator,
		Predictions:  predictionRepo,
		Sync:         syncEngine,
		SyncLogs:     syncLogRepo,
		Trainer:      trainer,
		Reference:    referenceRepo,
		Webhooks:     a.repo,
		WebhookCache: a.webhookManager,
		Stream:       a.broker,
		Socket:       http.HandlerFunc(a.broker.ServeWS),
		Database:     a.readDB,
		LiveClients:  a.broker,
	})

	go func() {
		if err := a.apiServer.Start(a.config.APIPort); err != nil {
			log.Printf("⚠️  API Server failed: %v", err)
		}
	}()

	// 9. Wait for interrupt and perform graceful shutdown
	err = a.gracefulShutdown(cancel)
	wg.Wait()
	return err
}

// gracefulShutdown handles graceful shutdown with timeout
func (a *App) gracefulShutdown(cancel context.CancelFunc) error {
	// Setup signal handling
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	// Wait for interrupt signal
	<-interrupt
	fmt.Println("\n🛑 Shutdown signal received, initiating graceful shutdown...")

	// Cancel context to stop broker and relay
	cancel()

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Shutdown tasks with timeout
	shutdownComplete := make(chan struct{})
	go func() {
		if a.apiServer != nil {
			fmt.Println("🌐 Stopping API server...")
			if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
				log.Printf("Error stopping API server: %v", err)
			}
		}

		if a.readDB != nil {
			if err := a.readDB.Close(); err != nil {
				log.Printf("Error closing analytics connection: %v", err)
			}
		}

		// Close database connection
		if a.db != nil {
			if err := a.db.Close(); err != nil {
				log.Printf("Error closing database: %v", err)
			} else {
				fmt.Println("✅ Database connection closed")
			}
		}

		// Close Redis connection
		if a.redis != nil {
			if err := a.redis.Close(); err != nil {
				log.Printf("Error closing redis: %v", err)
			} else {
				fmt.Println("✅ Redis connection closed")
			}
		}

		close(shutdownComplete)
	}()

	// Wait for shutdown to complete or timeout
	select {
	case <-shutdownComplete:
		fmt.Println("✅ Graceful shutdown completed")
		return nil
	case <-shutdownCtx.Done():
		fmt.Println("⚠️  Shutdown timeout exceeded, forcing exit")
		return fmt.Errorf("shutdown timeout")
	}
}
