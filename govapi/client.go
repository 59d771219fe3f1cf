package govapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	pricesPath     = "prices"
	apiKeyHeader   = "x-api-key"
	defaultTimeout = 30 * time.Second
	userAgent      = "harga-pangan-sync/1.0"
)

// ErrUnexpectedPayload is returned when the API answers with something other than a JSON array
var ErrUnexpectedPayload = errors.New("govapi: response is not a JSON array")

// Client fetches daily price rows from the government pricing API
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient creates a new pricing API client
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/") + "/",
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// FetchPrices requests rows between two calendar days (inclusive). Rows are
// decoded with json.Number so numeric codes and prices keep their exact text.
func (c *Client) FetchPrices(ctx context.Context, from, to time.Time) ([]map[string]any, error) {
	endpoint, err := url.Parse(c.baseURL + pricesPath)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	params := endpoint.Query()
	params.Set("start_date", from.Format("2006-01-02"))
	params.Set("end_date", to.Format("2006-01-02"))
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(apiKeyHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, truncate(string(body), 256))
	}

	return decodeRows(body)
}

func decodeRows(body []byte) ([]map[string]any, error) {
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()

	var payload any
	if err := decoder.Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnexpectedPayload, err)
	}

	items, ok := payload.([]any)
	if !ok {
		return nil, ErrUnexpectedPayload
	}

	// Non-object elements are kept as nil rows so the caller can count them as skipped
	rows := make([]map[string]any, len(items))
	for i, item := range items {
		if row, ok := item.(map[string]any); ok {
			rows[i] = row
		}
	}
	return rows, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
