package mlservice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HistoryPoint is one observed price sent as model input
type HistoryPoint struct {
	Date  string  `json:"date"`
	Price float64 `json:"price"`
}

// PredictRequest asks the model service for a forecast over [StartDate, EndDate]
type PredictRequest struct {
	ProvinceID  int64          `json:"province_id"`
	RegencyID   int64          `json:"regency_id"`
	CommodityID int64          `json:"commodity_id"`
	StartDate   string         `json:"start_date"`
	EndDate     string         `json:"end_date"`
	History     []HistoryPoint `json:"history"`
}

// PredictionPoint is one forecast value returned by the model service
type PredictionPoint struct {
	Date           string  `json:"date"`
	PredictedPrice float64 `json:"predicted_price"`
	ModelName      string  `json:"model_name"`
}

// PredictResponse is the /predict response body
type PredictResponse struct {
	Predictions []PredictionPoint `json:"predictions"`
}

// TrainRequest starts a training run
type TrainRequest struct {
	ModelName string `json:"model_name"`
	ModelType string `json:"model_type"`
	DateFrom  string `json:"date_from,omitempty"`
	DateTo    string `json:"date_to,omitempty"`
}

// Metrics are the evaluation numbers reported by a model
type Metrics struct {
	RMSE      *float64 `json:"rmse"`
	MAE       *float64 `json:"mae"`
	MAPE      *float64 `json:"mape"`
	Precision *float64 `json:"precision,omitempty"`
	Recall    *float64 `json:"recall,omitempty"`
	F1        *float64 `json:"f1,omitempty"`
	RocAuc    *float64 `json:"roc_auc,omitempty"`
}

// TrainResponse is the /train response body
type TrainResponse struct {
	ModelName string  `json:"model_name"`
	ModelType string  `json:"model_type"`
	TrainedAt string  `json:"trained_at"`
	Metrics   Metrics `json:"metrics"`
}

// ModelMetrics is the /metrics response body describing the active model
type ModelMetrics struct {
	ModelName string  `json:"model_name"`
	ModelType string  `json:"model_type,omitempty"`
	TrainedAt string  `json:"trained_at,omitempty"`
	Metrics   Metrics `json:"metrics"`
}

// Client talks to the price forecasting service over JSON
type Client struct {
	endpoint string
	client   *http.Client
}

// NewClient creates a new forecasting service client
func NewClient(endpoint string, timeout time.Duration) *Client {
	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 5,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
	}
}

// Predict requests forecasts for one (province, regency, commodity) combination
func (c *Client) Predict(ctx context.Context, req PredictRequest) (*PredictResponse, error) {
	if req.History == nil {
		req.History = []HistoryPoint{}
	}
	var resp PredictResponse
	if err := c.do(ctx, http.MethodPost, "/predict", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Train asks the service to fit a model and waits for the result
func (c *Client) Train(ctx context.Context, req TrainRequest) (*TrainResponse, error) {
	var resp TrainResponse
	if err := c.do(ctx, http.MethodPost, "/train", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetMetrics returns the active model's metrics, or nil when no model is available
func (c *Client) GetMetrics(ctx context.Context) (*ModelMetrics, error) {
	var resp *ModelMetrics
	if err := c.do(ctx, http.MethodGet, "/metrics", nil, &resp); err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	if resp == nil || resp.ModelName == "" {
		return nil, nil
	}
	return resp, nil
}

// StatusError is returned when the service answers with a non-200 status
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ML service error %d: %s", e.StatusCode, e.Body)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
