package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"harga-pangan/database"
	models "harga-pangan/database/models_pkg"
	"harga-pangan/mlservice"
)

// Supported model types
const (
	ModelTypeRandomForest = "random_forest"
	ModelTypeXGBoost      = "xgboost"
	ModelTypeEnsemble     = "ensemble"
)

const trainingRunsLimit = 50

// TrainRequest starts a model training run
type TrainRequest struct {
	ModelName string
	ModelType string
	DateFrom  *time.Time
	DateTo    *time.Time
}

// ModelTrainer tracks training runs requested from the model service
type ModelTrainer struct {
	runs    TrainingStore
	service ModelService
	cache   SummaryCache
	now     func() time.Time
}

// NewModelTrainer creates a model trainer. A successful run drops the cached
// dashboard so it picks up the new model metrics.
func NewModelTrainer(runs TrainingStore, service ModelService, cache SummaryCache) *ModelTrainer {
	if cache == nil {
		cache = noopCache{}
	}
	return &ModelTrainer{runs: runs, service: service, cache: cache, now: time.Now}
}

// Train records a RUNNING run, calls the service and finishes the run as SUCCESS or FAILED
func (t *ModelTrainer) Train(ctx context.Context, req TrainRequest) (*models.ModelTrainingRun, error) {
	if req.ModelName == "" {
		return nil, database.NewValidationError("model_name", "is required")
	}
	switch req.ModelType {
	case ModelTypeRandomForest, ModelTypeXGBoost, ModelTypeEnsemble:
	default:
		return nil, database.NewValidationErrorWithValue("model_type", "must be random_forest, xgboost or ensemble", req.ModelType)
	}
	if req.DateFrom != nil && req.DateTo != nil && req.DateFrom.After(*req.DateTo) {
		return nil, database.NewValidationError("date_from", "must not be after date_to")
	}

	run := &models.ModelTrainingRun{
		ModelName: req.ModelName,
		ModelType: req.ModelType,
		Status:    models.TrainingStatusRunning,
		StartedAt: t.now(),
	}
	if err := t.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("create training run: %w", err)
	}

	trainReq := mlservice.TrainRequest{
		ModelName: req.ModelName,
		ModelType: req.ModelType,
	}
	if req.DateFrom != nil {
		trainReq.DateFrom = req.DateFrom.Format("2006-01-02")
	}
	if req.DateTo != nil {
		trainReq.DateTo = req.DateTo.Format("2006-01-02")
	}

	resp, err := t.service.Train(ctx, trainReq)
	finished := t.now()
	run.FinishedAt = &finished
	if err != nil {
		run.Status = models.TrainingStatusFailed
		run.ErrorMessage = err.Error()
		if saveErr := t.runs.Save(context.WithoutCancel(ctx), run); saveErr != nil {
			log.Printf("⚠️  Failed to record failed training run %d: %v", run.ID, saveErr)
		}
		log.Printf("❌ Training %s (%s) failed: %v", req.ModelName, req.ModelType, err)
		return run, &UpstreamError{Service: "prediction service", Err: err}
	}

	if trainedAt, parseErr := time.Parse(time.RFC3339, resp.TrainedAt); parseErr == nil {
		run.FinishedAt = &trainedAt
	}
	run.Status = models.TrainingStatusSuccess
	run.RMSE = resp.Metrics.RMSE
	run.MAE = resp.Metrics.MAE
	run.MAPE = resp.Metrics.MAPE
	run.Precision = resp.Metrics.Precision
	run.Recall = resp.Metrics.Recall
	run.F1 = resp.Metrics.F1
	run.RocAuc = resp.Metrics.RocAuc
	if err := t.runs.Save(ctx, run); err != nil {
		return nil, fmt.Errorf("finish training run: %w", err)
	}
	t.cache.Invalidate(context.WithoutCancel(ctx))

	log.Printf("✅ Training %s (%s) finished", req.ModelName, req.ModelType)
	return run, nil
}

// ListRuns returns the most recent training runs, newest first
func (t *ModelTrainer) ListRuns(ctx context.Context) ([]models.ModelTrainingRun, error) {
	return t.runs.ListLatest(ctx, trainingRunsLimit)
}

// LatestMetrics returns the newest successful run, or nil when none exists
func (t *ModelTrainer) LatestMetrics(ctx context.Context) (*models.ModelTrainingRun, error) {
	return t.runs.LatestSuccess(ctx)
}
