package api

import (
	"net/http"

	models "harga-pangan/database/models_pkg"
	"harga-pangan/engine"
)

// trainRequest is the body of POST /api/models/train
type trainRequest struct {
	ModelName string `json:"model_name"`
	ModelType string `json:"model_type"`
	DateFrom  string `json:"date_from"`
	DateTo    string `json:"date_to"`
}

func (s *Server) handleTrainModel(w http.ResponseWriter, r *http.Request) {
	var body trainRequest
	if err := decodeBody(r, &body); err != nil {
		respondWithError(w, err, nil)
		return
	}

	req := engine.TrainRequest{
		ModelName: body.ModelName,
		ModelType: body.ModelType,
	}
	var err error
	if body.DateFrom != "" {
		if req.DateFrom, err = parseDateField("date_from", body.DateFrom); err != nil {
			respondWithError(w, err, nil)
			return
		}
	}
	if body.DateTo != "" {
		if req.DateTo, err = parseDateField("date_to", body.DateTo); err != nil {
			respondWithError(w, err, nil)
			return
		}
	}

	run, err := s.deps.Trainer.Train(r.Context(), req)
	if err != nil {
		// A failed run is still returned so the caller sees its id and error message
		var result any
		if run != nil {
			result = run
		}
		respondWithError(w, err, result)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleGetTrainingRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.deps.Trainer.ListRuns(r.Context())
	if err != nil {
		respondWithError(w, err, nil)
		return
	}
	if runs == nil {
		runs = []models.ModelTrainingRun{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// handleGetActiveModel returns the latest successful run, or null when none exists
func (s *Server) handleGetActiveModel(w http.ResponseWriter, r *http.Request) {
	run, err := s.deps.Trainer.LatestMetrics(r.Context())
	if err != nil {
		respondWithError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, run)
}
