// Package database provides database connection management for the harga-pangan
// price monitoring system.
//
// This package includes:
//   - Database connection management using GORM and PostgreSQL
//   - A plain database/sql read connection for dashboard analytics
//   - Schema initialization (AutoMigrate + natural-key unique indexes)
//   - Typed errors for validation, conflicts and missing records
//
// Key Concepts:
//   - Daily prices are unique per (province, regency, commodity, date)
//   - Predictions are unique per (province, regency, commodity, prediction date)
//   - Sync runs are append-only audit rows
//
// Data Models:
//
//	All data models are defined in the models_pkg package so the
//	repository sub-packages can share them without import cycles.
package database

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	models "harga-pangan/database/models_pkg"
)

// Database holds the GORM database connection and provides access to the underlying DB instance.
type Database struct {
	db *gorm.DB
}

// DB returns the underlying GORM database instance for repository sub-packages.
func (d *Database) DB() *gorm.DB {
	return d.db
}

// Connect establishes database connection using GORM
func Connect(host string, port int, dbname, user, password string) (*Database, error) {
	dsn := fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=disable TimeZone=UTC",
		host, port, dbname, user, password)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent), // Silent logging for production
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &Database{db: db}, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Short aliases used by the app and api packages
type Province = models.Province
type Regency = models.Regency
type Commodity = models.Commodity
type DailyPrice = models.DailyPrice
type SyncLog = models.SyncLog
type PricePrediction = models.PricePrediction
type ModelTrainingRun = models.ModelTrainingRun
type SystemSetting = models.SystemSetting
type PriceWebhook = models.PriceWebhook
type PriceWebhookLog = models.PriceWebhookLog
