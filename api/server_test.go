package api

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"harga-pangan/database"
	models "harga-pangan/database/models_pkg"
	"harga-pangan/engine"
)

type fakePrices struct {
	lastFilter models.PriceFilter
	items      []models.DailyPrice
	rangeRows  []models.DailyPrice
}

func (f *fakePrices) List(_ context.Context, filter models.PriceFilter) ([]models.DailyPrice, int64, error) {
	f.lastFilter = filter
	return f.items, int64(len(f.items)), nil
}

func (f *fakePrices) ListRange(_ context.Context, _ int64, _ *int64, _, _ time.Time) ([]models.DailyPrice, error) {
	return f.rangeRows, nil
}

type fakeManual struct {
	err error
	got engine.ManualEntryRequest
}

func (f *fakeManual) Record(_ context.Context, req engine.ManualEntryRequest) (*models.DailyPrice, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return &models.DailyPrice{ID: 1, ProvinceID: req.ProvinceID, RegencyID: req.RegencyID, CommodityID: req.CommodityID, Date: req.Date, Price: req.Price, Source: models.SourceManual}, nil
}

type fakeSyncer struct {
	result engine.SyncResult
	err    error
	from   *time.Time
	to     *time.Time
}

func (f *fakeSyncer) Sync(_ context.Context, from, to *time.Time) (engine.SyncResult, error) {
	f.from, f.to = from, to
	return f.result, f.err
}

type fakeWebhooks struct {
	saved   []models.PriceWebhook
	deleted []int
}

func (f *fakeWebhooks) GetWebhooks() ([]models.PriceWebhook, error) { return f.saved, nil }

func (f *fakeWebhooks) GetWebhookByID(id int) (*models.PriceWebhook, error) {
	for _, w := range f.saved {
		if w.ID == id {
			return &w, nil
		}
	}
	return nil, nil
}

func (f *fakeWebhooks) SaveWebhook(w *models.PriceWebhook) error {
	if w.ID == 0 {
		w.ID = len(f.saved) + 1
	}
	f.saved = append(f.saved, *w)
	return nil
}

func (f *fakeWebhooks) DeleteWebhook(id int) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type countingRefresher struct{ calls int }

func (c *countingRefresher) RefreshCache() { c.calls++ }

func do(t *testing.T, handler http.Handler, method, target, body, role string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if role != "" {
		req.Header.Set("X-User-ID", "user-1")
		req.Header.Set("X-User-Role", role)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var body errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", database.NewValidationError("price", "must be positive"), http.StatusBadRequest},
		{"conflict", database.NewConflictError("daily price", "1/1/1"), http.StatusConflict},
		{"not found", database.NewNotFoundErrorWithID("webhook", 3), http.StatusNotFound},
		{"not configured", engine.ErrNotConfigured, http.StatusPreconditionFailed},
		{"wrapped not configured", fmt.Errorf("sync: %w", engine.ErrNotConfigured), http.StatusPreconditionFailed},
		{"upstream", &engine.UpstreamError{Service: "prediction service", Err: errors.New("timeout")}, http.StatusBadGateway},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusFor(tt.err); got != tt.want {
				t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestRoleMiddleware(t *testing.T) {
	handler := NewServer(Deps{Sync: &fakeSyncer{result: engine.SyncResult{RunID: "r"}}}).Handler()

	tests := []struct {
		name string
		role string
		want int
	}{
		{"anonymous", "", http.StatusUnauthorized},
		{"viewer", RoleViewer, http.StatusForbidden},
		{"analyst", RoleAnalyst, http.StatusOK},
		{"admin", RoleAdmin, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, handler, http.MethodPost, "/api/integrations/gov/prices/sync", "", tt.role)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d (%s)", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestHealthAndRequestID(t *testing.T) {
	handler := NewServer(Deps{}).Handler()
	rec := do(t, handler, http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("unexpected health response %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected a generated request id")
	}
}

type fakePinger struct{ err error }

func (f fakePinger) Ping() error { return f.err }

type fakeClientCounter int

func (f fakeClientCounter) ClientCount() int { return int(f) }

func TestHealthReportsDependencies(t *testing.T) {
	tests := []struct {
		name       string
		pingErr    error
		wantStatus int
		wantBody   []string
	}{
		{name: "database reachable", wantStatus: http.StatusOK, wantBody: []string{`"status":"ok"`, `"database":"ok"`, `"live_clients":3`}},
		{name: "database down", pingErr: errors.New("connection refused"), wantStatus: http.StatusServiceUnavailable, wantBody: []string{`"status":"degraded"`, `"database":"unreachable"`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewServer(Deps{Database: fakePinger{err: tt.pingErr}, LiveClients: fakeClientCounter(3)}).Handler()
			rec := do(t, handler, http.MethodGet, "/health", "", "")
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, rec.Code)
			}
			for _, want := range tt.wantBody {
				if !strings.Contains(rec.Body.String(), want) {
					t.Errorf("expected %s in %s", want, rec.Body.String())
				}
			}
		})
	}
}

func TestSyncFailureReturnsPartialCounts(t *testing.T) {
	syncer := &fakeSyncer{
		result: engine.SyncResult{RunID: "run-1", TotalFetched: 5, Inserted: 2},
		err:    &engine.UpstreamError{Service: "gov pricing API", Err: errors.New("connection reset")},
	}
	handler := NewServer(Deps{Sync: syncer}).Handler()

	rec := do(t, handler, http.MethodPost, "/api/integrations/gov/prices/sync",
		`{"date_from":"2024-01-01","date_to":"2024-01-07"}`, RoleAdmin)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	body := decodeError(t, rec)
	result, ok := body.Result.(map[string]any)
	if !ok || result["inserted"] != float64(2) || result["total_fetched"] != float64(5) {
		t.Errorf("expected partial counts in result, got %+v", body.Result)
	}
	if syncer.from == nil || syncer.from.Format("2006-01-02") != "2024-01-01" || syncer.to.Format("2006-01-02") != "2024-01-07" {
		t.Errorf("range not forwarded: %v %v", syncer.from, syncer.to)
	}
}

func TestSyncNotConfigured(t *testing.T) {
	handler := NewServer(Deps{Sync: &fakeSyncer{err: engine.ErrNotConfigured}}).Handler()
	rec := do(t, handler, http.MethodPost, "/api/integrations/gov/prices/sync", "", RoleAnalyst)

	if rec.Code != http.StatusPreconditionFailed {
		t.Fatalf("expected 412, got %d", rec.Code)
	}
	if body := decodeError(t, rec); body.Result != nil {
		t.Errorf("no run means no result, got %+v", body.Result)
	}
}

func TestSyncRejectsBadDate(t *testing.T) {
	syncer := &fakeSyncer{}
	handler := NewServer(Deps{Sync: syncer}).Handler()
	rec := do(t, handler, http.MethodPost, "/api/integrations/gov/prices/sync", `{"date_from":"yesterday"}`, RoleAdmin)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if syncer.from != nil {
		t.Error("sync must not run on invalid input")
	}
}

func TestCreateDailyPrice(t *testing.T) {
	manual := &fakeManual{}
	handler := NewServer(Deps{Manual: manual}).Handler()

	rec := do(t, handler, http.MethodPost, "/api/prices/daily",
		`{"province_id":1,"regency_id":10,"commodity_id":3,"date":"2024-02-01","price":"14500.50"}`, RoleViewer)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	if !manual.got.Price.Equal(decimal.RequireFromString("14500.50")) {
		t.Errorf("price not forwarded exactly: %s", manual.got.Price)
	}
	if manual.got.Date.Format("2006-01-02") != "2024-02-01" {
		t.Errorf("date not forwarded: %s", manual.got.Date)
	}
}

func TestCreateDailyPriceErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		body string
		want int
	}{
		{"conflict", database.NewConflictError("daily price", "1/10/3@2024-02-01"), `{"price":1}`, http.StatusConflict},
		{"validation", database.NewValidationError("regency_id", "does not belong to province"), `{"price":1}`, http.StatusBadRequest},
		{"malformed body", nil, `{"price":`, http.StatusBadRequest},
		{"malformed date", nil, `{"date":"01/02/2024x"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewServer(Deps{Manual: &fakeManual{err: tt.err}}).Handler()
			rec := do(t, handler, http.MethodPost, "/api/prices/daily", tt.body, RoleAnalyst)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d (%s)", tt.want, rec.Code, rec.Body.String())
			}
			if decodeError(t, rec).Message == "" {
				t.Error("error body must carry a message")
			}
		})
	}
}

func TestListDailyPricesPaging(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		wantSkip int
		wantTake int
	}{
		{"defaults", "", 0, 20},
		{"explicit", "?skip=40&take=50", 40, 50},
		{"take above max falls back", "?take=500", 0, 20},
		{"negative skip falls back", "?skip=-1", 0, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prices := &fakePrices{}
			handler := NewServer(Deps{Prices: prices}).Handler()
			rec := do(t, handler, http.MethodGet, "/api/prices/daily"+tt.query, "", "")
			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", rec.Code)
			}
			if prices.lastFilter.Skip != tt.wantSkip || prices.lastFilter.Take != tt.wantTake {
				t.Errorf("got skip=%d take=%d", prices.lastFilter.Skip, prices.lastFilter.Take)
			}
			if !strings.Contains(rec.Body.String(), `"items":[]`) {
				t.Errorf("empty listing must encode items as an array: %s", rec.Body.String())
			}
		})
	}
}

func TestListDailyPricesFilters(t *testing.T) {
	prices := &fakePrices{}
	handler := NewServer(Deps{Prices: prices}).Handler()

	rec := do(t, handler, http.MethodGet, "/api/prices/daily?provinceId=1&commodity_id=3&dateFrom=2024-01-01", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	f := prices.lastFilter
	if f.ProvinceID == nil || *f.ProvinceID != 1 || f.CommodityID == nil || *f.CommodityID != 3 || f.RegencyID != nil {
		t.Errorf("unexpected id filters %+v", f)
	}
	if f.DateFrom == nil || f.DateFrom.Format("2006-01-02") != "2024-01-01" || f.DateTo != nil {
		t.Errorf("unexpected date filters %+v", f)
	}

	rec = do(t, handler, http.MethodGet, "/api/prices/daily?provinceId=abc", "", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a bad id, got %d", rec.Code)
	}
}

func TestExportPricesCSV(t *testing.T) {
	prices := &fakePrices{rangeRows: []models.DailyPrice{
		{
			ProvinceID: 1, RegencyID: 10, CommodityID: 3,
			Date:      time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
			Price:     decimal.NewFromInt(13000),
			Source:    models.SourceGovAPI,
			Province:  &models.Province{Code: "31", Name: "DKI Jakarta"},
			Regency:   &models.Regency{Code: "3171", Name: "Jakarta Selatan"},
			Commodity: &models.Commodity{Name: "Beras Medium", Unit: "kg"},
		},
	}}
	handler := NewServer(Deps{Prices: prices}).Handler()

	rec := do(t, handler, http.MethodGet, "/api/reports/prices.csv?commodityId=3&startDate=2024-01-01&endDate=2024-01-31", "", RoleAnalyst)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("unexpected content type %s", ct)
	}

	records, err := csv.NewReader(rec.Body).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected header and one row, got %d", len(records))
	}
	want := []string{"2024-01-02", "31", "DKI Jakarta", "3171", "Jakarta Selatan", "Beras Medium", "kg", "13000.00", "GOV_API"}
	for i, v := range want {
		if records[1][i] != v {
			t.Errorf("column %d = %q, want %q", i, records[1][i], v)
		}
	}

	rec = do(t, handler, http.MethodGet, "/api/reports/prices.csv?commodityId=3&startDate=2024-02-01&endDate=2024-01-01", "", RoleAdmin)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("inverted range must be rejected, got %d", rec.Code)
	}
}

func TestWebhookCRUDRefreshesCache(t *testing.T) {
	store := &fakeWebhooks{}
	refresher := &countingRefresher{}
	handler := NewServer(Deps{Webhooks: store, WebhookCache: refresher}).Handler()

	rec := do(t, handler, http.MethodPost, "/api/config/webhooks", `{"name":"ops","url":"http://example.test/hook"}`, RoleAdmin)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}

	rec = do(t, handler, http.MethodPut, "/api/config/webhooks/1", `{"name":"ops","url":"http://example.test/v2"}`, RoleAdmin)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}

	rec = do(t, handler, http.MethodPut, "/api/config/webhooks/99", `{"url":"http://example.test"}`, RoleAdmin)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown webhook, got %d", rec.Code)
	}

	rec = do(t, handler, http.MethodDelete, "/api/config/webhooks/1", "", RoleAdmin)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}

	if refresher.calls != 3 {
		t.Errorf("expected 3 cache refreshes, got %d", refresher.calls)
	}

	rec = do(t, handler, http.MethodPost, "/api/config/webhooks", `{"name":"no url"}`, RoleAdmin)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without url, got %d", rec.Code)
	}

	rec = do(t, handler, http.MethodGet, "/api/config/webhooks", "", RoleAnalyst)
	if rec.Code != http.StatusForbidden {
		t.Errorf("webhooks are admin only, got %d", rec.Code)
	}
}
