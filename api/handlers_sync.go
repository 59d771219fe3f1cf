package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"harga-pangan/database"
	models "harga-pangan/database/models_pkg"
)

const syncLogsLimit = 20

// syncRequest is the optional body of the sync trigger. Omitted bounds use the default window.
type syncRequest struct {
	DateFrom string `json:"date_from"`
	DateTo   string `json:"date_to"`
}

func (s *Server) handleGovSync(w http.ResponseWriter, r *http.Request) {
	var body syncRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		respondWithError(w, database.NewValidationError("body", "invalid JSON request body"), nil)
		return
	}

	// Query parameters are accepted as well as the body
	if body.DateFrom == "" {
		body.DateFrom = queryValue(r, "dateFrom", "date_from")
	}
	if body.DateTo == "" {
		body.DateTo = queryValue(r, "dateTo", "date_to")
	}

	var from, to *time.Time
	var err error
	if body.DateFrom != "" {
		if from, err = parseDateField("date_from", body.DateFrom); err != nil {
			respondWithError(w, err, nil)
			return
		}
	}
	if body.DateTo != "" {
		if to, err = parseDateField("date_to", body.DateTo); err != nil {
			respondWithError(w, err, nil)
			return
		}
	}

	result, err := s.deps.Sync.Sync(r.Context(), from, to)
	if err != nil {
		// Counts gathered before the failure are returned alongside the error
		var partial any
		if result.RunID != "" {
			partial = result
		}
		respondWithError(w, err, partial)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetSyncLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := s.deps.SyncLogs.ListLatest(r.Context(), syncLogsLimit)
	if err != nil {
		respondWithError(w, err, nil)
		return
	}
	if logs == nil {
		logs = []models.SyncLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}
