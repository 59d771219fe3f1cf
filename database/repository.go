package database

import (
	"context"
	"errors"
	"fmt"
	"log"

	"gorm.io/gorm"
)

// settingsRowID is the primary key of the single system settings row
const settingsRowID = 1

// Repository handles schema management, system settings and webhook registrations
type Repository struct {
	db *Database
}

// NewRepository creates a new repository
func NewRepository(db *Database) *Repository {
	return &Repository{db: db}
}

// InitSchema performs auto-migration and creates the natural-key indexes
func (r *Repository) InitSchema() error {
	log.Println("🔄 Starting database schema initialization...")

	err := r.db.db.AutoMigrate(
		&Province{},
		&Regency{},
		&Commodity{},
		&DailyPrice{},
		&SyncLog{},
		&PricePrediction{},
		&ModelTrainingRun{},
		&SystemSetting{},
		&PriceWebhook{},
		&PriceWebhookLog{},
	)
	if err != nil {
		return fmt.Errorf("auto-migration failed: %w", err)
	}

	// Composite index serving the alert window scan (per combination, newest first)
	if err := r.db.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_daily_prices_combo_date
		ON daily_prices (province_id, regency_id, commodity_id, date DESC)
	`).Error; err != nil {
		log.Printf("⚠️ Warning: Failed to create idx_daily_prices_combo_date: %v", err)
	}

	// Positive price guard at the storage level
	if err := r.db.db.Exec(`
		DO $$ BEGIN
			ALTER TABLE daily_prices ADD CONSTRAINT chk_daily_prices_price_positive CHECK (price > 0);
		EXCEPTION WHEN duplicate_object THEN NULL;
		END $$
	`).Error; err != nil {
		log.Printf("⚠️ Warning: Failed to create chk_daily_prices_price_positive: %v", err)
	}

	log.Println("✅ Database schema initialized")
	return nil
}

// ============================================================================
// System Settings
// ============================================================================

// GetSystemSetting returns the settings row, or nil if it was never written
func (r *Repository) GetSystemSetting(ctx context.Context) (*SystemSetting, error) {
	var setting SystemSetting
	err := r.db.db.WithContext(ctx).First(&setting, settingsRowID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, WrapDBError("GetSystemSetting", err)
	}
	return &setting, nil
}

// SaveSystemSetting writes the single settings row
func (r *Repository) SaveSystemSetting(ctx context.Context, setting *SystemSetting) error {
	setting.ID = settingsRowID
	if err := r.db.db.WithContext(ctx).Save(setting).Error; err != nil {
		return WrapDBError("SaveSystemSetting", err)
	}
	return nil
}

// ============================================================================
// Webhook Management
// ============================================================================

// GetActiveWebhooks retrieves all active webhooks
func (r *Repository) GetActiveWebhooks() ([]PriceWebhook, error) {
	var webhooks []PriceWebhook
	err := r.db.db.Where("is_active = ?", true).Find(&webhooks).Error
	return webhooks, err
}

// SaveWebhookLog saves a new webhook delivery log and bumps the webhook counters
func (r *Repository) SaveWebhookLog(entry *PriceWebhookLog) error {
	return r.db.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(entry).Error; err != nil {
			return err
		}
		counter := "total_sent"
		if entry.Status != "SUCCESS" {
			counter = "total_failed"
		}
		return tx.Model(&PriceWebhook{}).Where("id = ?", entry.WebhookID).Updates(map[string]interface{}{
			counter:             gorm.Expr(counter + " + 1"),
			"last_triggered_at": entry.TriggeredAt,
		}).Error
	})
}

// GetWebhooks retrieves all webhooks (active and inactive)
func (r *Repository) GetWebhooks() ([]PriceWebhook, error) {
	var webhooks []PriceWebhook
	err := r.db.db.Order("id ASC").Find(&webhooks).Error
	return webhooks, err
}

// GetWebhookByID retrieves a specific webhook
func (r *Repository) GetWebhookByID(id int) (*PriceWebhook, error) {
	var webhook PriceWebhook
	err := r.db.db.First(&webhook, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &webhook, err
}

// SaveWebhook creates or updates a webhook
func (r *Repository) SaveWebhook(webhook *PriceWebhook) error {
	return r.db.db.Save(webhook).Error
}

// DeleteWebhook deletes a webhook
func (r *Repository) DeleteWebhook(id int) error {
	return r.db.db.Delete(&PriceWebhook{}, id).Error
}
