package api

import (
	"log"
	"net/http"
	"strconv"

	"harga-pangan/database"
	models "harga-pangan/database/models_pkg"
)

// handleHealth returns the health status of the API
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{"status": "ok"}
	if s.deps.LiveClients != nil {
		health["live_clients"] = s.deps.LiveClients.ClientCount()
	}
	if s.deps.Database != nil {
		if err := s.deps.Database.Ping(); err != nil {
			log.Printf("⚠️  Health check: database unreachable: %v", err)
			health["status"] = "degraded"
			health["database"] = "unreachable"
			writeJSON(w, http.StatusServiceUnavailable, health)
			return
		}
		health["database"] = "ok"
	}
	writeJSON(w, http.StatusOK, health)
}

func (s *Server) handleDashboardSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.deps.Dashboard.Summary(r.Context())
	if err != nil {
		respondWithError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// Reference data

func (s *Server) handleGetProvinces(w http.ResponseWriter, r *http.Request) {
	provinces, err := s.deps.Reference.ListProvinces(r.Context())
	if err != nil {
		respondWithError(w, err, nil)
		return
	}
	if provinces == nil {
		provinces = []models.Province{}
	}
	writeJSON(w, http.StatusOK, provinces)
}

func (s *Server) handleGetRegencies(w http.ResponseWriter, r *http.Request) {
	provinceID, err := optionalID(r, "province_id", "provinceId", "province_id")
	if err != nil {
		respondWithError(w, err, nil)
		return
	}
	var filter int64
	if provinceID != nil {
		filter = *provinceID
	}

	regencies, err := s.deps.Reference.ListRegencies(r.Context(), filter)
	if err != nil {
		respondWithError(w, err, nil)
		return
	}
	if regencies == nil {
		regencies = []models.Regency{}
	}
	writeJSON(w, http.StatusOK, regencies)
}

func (s *Server) handleGetCommodities(w http.ResponseWriter, r *http.Request) {
	commodities, err := s.deps.Reference.ListCommodities(r.Context())
	if err != nil {
		respondWithError(w, err, nil)
		return
	}
	if commodities == nil {
		commodities = []models.Commodity{}
	}
	writeJSON(w, http.StatusOK, commodities)
}

// Settings

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	setting, err := s.deps.Dashboard.Settings(r.Context())
	if err != nil {
		respondWithError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, setting)
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var setting models.SystemSetting
	if err := decodeBody(r, &setting); err != nil {
		respondWithError(w, err, nil)
		return
	}

	saved, err := s.deps.Dashboard.UpdateSettings(r.Context(), &setting)
	if err != nil {
		respondWithError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// Configuration Handlers (Webhooks)

func (s *Server) handleGetWebhooks(w http.ResponseWriter, r *http.Request) {
	webhooks, err := s.deps.Webhooks.GetWebhooks()
	if err != nil {
		respondWithError(w, err, nil)
		return
	}
	if webhooks == nil {
		webhooks = []models.PriceWebhook{}
	}
	writeJSON(w, http.StatusOK, webhooks)
}

func (s *Server) handleCreateWebhook(w http.ResponseWriter, r *http.Request) {
	var webhook models.PriceWebhook
	if err := decodeBody(r, &webhook); err != nil {
		respondWithError(w, err, nil)
		return
	}
	if webhook.URL == "" {
		respondWithError(w, database.NewValidationError("url", "is required"), nil)
		return
	}

	// Reset ID to let DB assign it
	webhook.ID = 0

	if err := s.deps.Webhooks.SaveWebhook(&webhook); err != nil {
		respondWithError(w, err, nil)
		return
	}
	s.refreshWebhooks()

	writeJSON(w, http.StatusCreated, webhook)
}

func (s *Server) handleUpdateWebhook(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		respondWithError(w, database.NewValidationErrorWithValue("id", "must be an integer", r.PathValue("id")), nil)
		return
	}

	existing, err := s.deps.Webhooks.GetWebhookByID(id)
	if err != nil {
		respondWithError(w, err, nil)
		return
	}
	if existing == nil {
		respondWithError(w, database.NewNotFoundErrorWithID("webhook", id), nil)
		return
	}

	var webhook models.PriceWebhook
	if err := decodeBody(r, &webhook); err != nil {
		respondWithError(w, err, nil)
		return
	}
	if webhook.URL == "" {
		respondWithError(w, database.NewValidationError("url", "is required"), nil)
		return
	}

	webhook.ID = id // Ensure ID matches path
	webhook.CreatedAt = existing.CreatedAt
	if err := s.deps.Webhooks.SaveWebhook(&webhook); err != nil {
		respondWithError(w, err, nil)
		return
	}
	s.refreshWebhooks()

	writeJSON(w, http.StatusOK, webhook)
}

func (s *Server) handleDeleteWebhook(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		respondWithError(w, database.NewValidationErrorWithValue("id", "must be an integer", r.PathValue("id")), nil)
		return
	}

	if err := s.deps.Webhooks.DeleteWebhook(id); err != nil {
		respondWithError(w, err, nil)
		return
	}
	s.refreshWebhooks()

	w.WriteHeader(http.StatusNoContent)
}

// refreshWebhooks drops the delivery side's cached registrations
func (s *Server) refreshWebhooks() {
	if s.deps.WebhookCache != nil {
		s.deps.WebhookCache.RefreshCache()
	}
}
