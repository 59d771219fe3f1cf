package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"harga-pangan/cache"
	models "harga-pangan/database/models_pkg"
	"harga-pangan/helpers"
)

const activeWebhooksKey = "active_price_webhooks"

// WebhookStore loads registrations and records deliveries
type WebhookStore interface {
	GetActiveWebhooks() ([]models.PriceWebhook, error)
	SaveWebhookLog(entry *models.PriceWebhookLog) error
}

// WebhookManager delivers change events to registered HTTP endpoints
type WebhookManager struct {
	repo   WebhookStore
	redis  *cache.RedisClient
	client *http.Client
	sleep  func(time.Duration)
}

// WebhookPayload represents the JSON payload sent to webhooks
type WebhookPayload struct {
	Event   string    `json:"event"`
	SentAt  time.Time `json:"sent_at"`
	Message string    `json:"message"`
	Data    any       `json:"data"`
}

// NewWebhookManager creates a new webhook manager. redis may be nil.
func NewWebhookManager(repo WebhookStore, redis *cache.RedisClient) *WebhookManager {
	return &WebhookManager{
		repo:  repo,
		redis: redis,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		sleep: time.Sleep,
	}
}

// Publish delivers the event to every matching webhook in the background
func (wm *WebhookManager) Publish(_ context.Context, event string, data any) {
	webhooks, err := wm.getActiveWebhooks()
	if err != nil {
		log.Printf("⚠️  Failed to load webhooks: %v", err)
		return
	}
	if len(webhooks) == 0 {
		return
	}

	payload := WebhookPayload{
		Event:   event,
		SentAt:  time.Now().UTC(),
		Message: DescribeEvent(event, data),
		Data:    data,
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		log.Printf("⚠️  Failed to marshal webhook payload: %v", err)
		return
	}

	for _, hook := range webhooks {
		if ShouldSend(hook, event) {
			go wm.deliver(hook, event, payloadBytes)
		}
	}
}

func (wm *WebhookManager) getActiveWebhooks() ([]models.PriceWebhook, error) {
	var cached []models.PriceWebhook
	if err := wm.redis.Get(context.Background(), activeWebhooksKey, &cached); err == nil {
		return cached, nil
	}

	webhooks, err := wm.repo.GetActiveWebhooks()
	if err != nil {
		return nil, err
	}

	_ = wm.redis.Set(context.Background(), activeWebhooksKey, webhooks, time.Hour)
	return webhooks, nil
}

// ShouldSend reports whether hook subscribes to event. An empty filter subscribes to everything.
func ShouldSend(hook models.PriceWebhook, event string) bool {
	filter := strings.TrimSpace(hook.EventTypes)
	if filter == "" || filter == "null" || filter == "[]" {
		return true
	}

	var list []string
	if strings.HasPrefix(filter, "[") {
		if err := json.Unmarshal([]byte(filter), &list); err != nil {
			return false
		}
	} else {
		list = strings.Split(filter, ",")
	}
	for _, item := range list {
		if strings.TrimSpace(item) == event {
			return true
		}
	}
	return false
}

// DescribeEvent renders a one-line human readable summary for chat-style receivers
func DescribeEvent(event string, data any) string {
	switch v := data.(type) {
	case *models.DailyPrice:
		return fmt.Sprintf("🛒 Harga baru %s: %s (komoditas %d, wilayah %d/%d)",
			v.Date.Format("2006-01-02"), helpers.FormatRupiah(v.Price), v.CommodityID, v.ProvinceID, v.RegencyID)
	case interface {
		PredictionSummary() (int, decimal.Decimal, *float64)
	}:
		count, last, change := v.PredictionSummary()
		return fmt.Sprintf("📈 %d prediksi harga baru, terakhir %s (%s dari harga terakhir)",
			count, helpers.FormatRupiah(last), helpers.FormatPct(change))
	}
	return event
}

func (wm *WebhookManager) deliver(hook models.PriceWebhook, event string, payload []byte) {
	maxRetries := hook.RetryCount
	if maxRetries <= 0 {
		maxRetries = 1
	}
	method := hook.Method
	if method == "" {
		method = http.MethodPost
	}

	var lastErr error
	var lastStatus int

	for attempt := 1; attempt <= maxRetries; attempt++ {
		req, err := http.NewRequest(method, hook.URL, bytes.NewReader(payload))
		if err != nil {
			wm.logDelivery(hook.ID, event, "FAILED", 0, err.Error(), attempt)
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "Harga-Pangan-Webhook/1.0")
		req.Header.Set("X-Event-Type", event)

		if hook.AuthType == "BEARER" {
			req.Header.Set("Authorization", "Bearer "+hook.AuthValue)
		} else if hook.AuthHeader != "" {
			req.Header.Set(hook.AuthHeader, hook.AuthValue)
		}

		log.Printf("🔹 Sending %s webhook to %s (Attempt %d/%d)", event, hook.URL, attempt, maxRetries)

		resp, err := wm.client.Do(req)
		if err == nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				wm.logDelivery(hook.ID, event, "SUCCESS", resp.StatusCode, "", attempt)
				return
			}
			lastErr = nil
			lastStatus = resp.StatusCode
		} else {
			lastErr = err
			lastStatus = 0
		}

		if attempt < maxRetries {
			wm.sleep(time.Duration(hook.RetryDelaySeconds) * time.Second)
		}
	}

	errMsg := ""
	if lastErr != nil {
		errMsg = lastErr.Error()
	} else if lastStatus != 0 {
		errMsg = fmt.Sprintf("unexpected status %d", lastStatus)
	}
	wm.logDelivery(hook.ID, event, "FAILED", lastStatus, errMsg, maxRetries)
}

func (wm *WebhookManager) logDelivery(webhookID int, event, status string, code int, errMsg string, attempt int) {
	entry := &models.PriceWebhookLog{
		WebhookID:    webhookID,
		EventType:    event,
		TriggeredAt:  time.Now(),
		Status:       status,
		ErrorMessage: errMsg,
		RetryAttempt: attempt,
	}
	if code != 0 {
		entry.HTTPStatusCode = &code
	}

	if err := wm.repo.SaveWebhookLog(entry); err != nil {
		log.Printf("⚠️  Failed to save webhook log: %v", err)
	}
}

// RefreshCache drops the cached webhook registrations
func (wm *WebhookManager) RefreshCache() {
	if err := wm.redis.Delete(context.Background(), activeWebhooksKey); err == nil {
		log.Println("🔄 Webhook cache invalidated")
	}
}
