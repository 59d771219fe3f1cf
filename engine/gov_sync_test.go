package engine

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"harga-pangan/database"
	models "harga-pangan/database/models_pkg"
	"harga-pangan/govapi"
)

func newTestSyncEngine(fetcher GovFetcher, prices *fakePriceStore, logs *fakeSyncLogs) *GovSyncEngine {
	engine := NewGovSyncEngine(fetcher, govapi.DefaultFieldMap(), prices, newWestJavaReference(), logs, nil)
	engine.now = func() time.Time { return time.Date(2024, 1, 10, 15, 30, 0, 0, time.UTC) }
	return engine
}

func bandungRow(date string, price any) map[string]any {
	return map[string]any{
		"kode_provinsi":  "32",
		"kode_kabupaten": "3273",
		"id_komoditas":   json.Number("1"),
		"tanggal":        date,
		"harga":          price,
	}
}

func TestSyncScenarioUnknownProvinceIsSkipped(t *testing.T) {
	fetcher := &fakeFetcher{rows: []map[string]any{
		{"province": "ignored", "kode_provinsi": "32", "kode_kabupaten": "3273", "id_komoditas": 1.0, "tanggal": "2024-01-01", "harga": 12000.0},
		{"kode_provinsi": "99", "kode_kabupaten": "0000", "id_komoditas": 1.0, "tanggal": "2024-01-01", "harga": 5000.0},
	}}
	prices := newFakePriceStore()
	logs := &fakeSyncLogs{}

	result, err := newTestSyncEngine(fetcher, prices, logs).Sync(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Inserted != 1 || result.Updated != 0 || result.Skipped != 1 {
		t.Errorf("expected inserted=1 updated=0 skipped=1, got %+v", result)
	}
	if result.TotalFetched != result.Inserted+result.Updated+result.Skipped {
		t.Errorf("skip accounting broken: %+v", result)
	}
	stored := prices.get(2, 20, 1, day(2024, 1, 1))
	if stored == nil || stored.Source != models.SourceGovAPI || !stored.Price.Equal(dec(12000)) {
		t.Fatalf("expected GOV_API row at 12000, got %+v", stored)
	}
	if len(logs.runs) != 1 || logs.runs[0].Status != models.SyncStatusSuccess {
		t.Fatalf("expected one SUCCESS run, got %+v", logs.runs)
	}
	if logs.runs[0].Records != 1 || logs.runs[0].ErrorMessage != nil {
		t.Errorf("unexpected run record %+v", logs.runs[0])
	}
	if logs.runs[0].Details.SkipReasons[skipUnknownProvince] != 1 {
		t.Errorf("expected unknown_province skip reason, got %v", logs.runs[0].Details.SkipReasons)
	}
}

func TestSyncIsIdempotent(t *testing.T) {
	fetcher := &fakeFetcher{rows: []map[string]any{
		bandungRow("2024-01-01", json.Number("12000")),
		bandungRow("2024-01-02", json.Number("12500")),
		bandungRow("2024-01-03", json.Number("-1")),
	}}
	prices := newFakePriceStore()
	logs := &fakeSyncLogs{}
	engine := newTestSyncEngine(fetcher, prices, logs)

	first, err := engine.Sync(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("first sync: %v", err)
	}
	second, err := engine.Sync(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}

	if first.Inserted != 2 || first.Updated != 0 || first.Skipped != 1 {
		t.Errorf("unexpected first result %+v", first)
	}
	if second.Inserted != 0 || second.Updated != 2 || second.Skipped != 1 {
		t.Errorf("second run must only update, got %+v", second)
	}
	if prices.count() != 2 {
		t.Errorf("expected 2 stored rows, got %d", prices.count())
	}
	if len(logs.runs) != 2 {
		t.Errorf("expected one run log per invocation, got %d", len(logs.runs))
	}
}

func TestSyncOverwritesManualRow(t *testing.T) {
	prices := newFakePriceStore()
	prices.insert(&models.DailyPrice{ProvinceID: 2, RegencyID: 20, CommodityID: 1, Date: day(2024, 1, 1), Price: dec(11000), Source: models.SourceManual})

	fetcher := &fakeFetcher{rows: []map[string]any{bandungRow("2024-01-01", "12000")}}
	result, err := newTestSyncEngine(fetcher, prices, &fakeSyncLogs{}).Sync(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Updated != 1 {
		t.Errorf("expected 1 update, got %+v", result)
	}
	stored := prices.get(2, 20, 1, day(2024, 1, 1))
	if !stored.Price.Equal(dec(12000)) || stored.Source != models.SourceGovAPI {
		t.Errorf("expected price and source overwritten, got %+v", stored)
	}
}

func TestSyncSkipReasons(t *testing.T) {
	fetcher := &fakeFetcher{rows: []map[string]any{
		nil,
		{"kode_provinsi": "32"},
		bandungRow("not-a-date", "1000"),
		bandungRow("2024-01-01", "0"),
		bandungRow("2024-01-02", "0.004"),
		bandungRow("2024-01-03", "1e20"),
		{"kode_provinsi": "32", "kode_kabupaten": "3171", "id_komoditas": "1", "tanggal": "2024-01-01", "harga": "1"},
		{"kode_provinsi": "32", "kode_kabupaten": "3273", "id_komoditas": "77", "tanggal": "2024-01-01", "harga": "1"},
		{"kode_provinsi": "32", "kode_kabupaten": "3273", "id_komoditas": "beras", "tanggal": "2024-01-01", "harga": "1"},
	}}
	logs := &fakeSyncLogs{}

	result, err := newTestSyncEngine(fetcher, newFakePriceStore(), logs).Sync(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("row-level problems must not fail the run: %v", err)
	}
	if result.Skipped != 9 || result.TotalFetched != 9 {
		t.Fatalf("expected all 9 rows skipped, got %+v", result)
	}

	expected := map[string]int{
		skipNotObject:        1,
		skipMissingField:     1,
		skipBadDate:          1,
		skipBadPrice:         3,
		skipUnknownRegency:   1,
		skipUnknownCommodity: 2,
	}
	reasons := logs.runs[0].Details.SkipReasons
	for reason, count := range expected {
		if reasons[reason] != count {
			t.Errorf("reason %s: expected %d, got %d", reason, count, reasons[reason])
		}
	}
}

func TestSyncDefaultRange(t *testing.T) {
	tests := []struct {
		name     string
		from     *time.Time
		to       *time.Time
		wantFrom time.Time
		wantTo   time.Time
	}{
		{name: "both omitted", wantFrom: day(2024, 1, 3), wantTo: day(2024, 1, 10)},
		{name: "only to", to: ptrTime(day(2024, 2, 20)), wantFrom: day(2024, 2, 13), wantTo: day(2024, 2, 20)},
		{name: "only from", from: ptrTime(day(2024, 1, 1)), wantFrom: day(2024, 1, 1), wantTo: day(2024, 1, 10)},
		{name: "both", from: ptrTime(day(2023, 12, 1)), to: ptrTime(day(2023, 12, 31)), wantFrom: day(2023, 12, 1), wantTo: day(2023, 12, 31)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := &fakeFetcher{}
			result, err := newTestSyncEngine(fetcher, newFakePriceStore(), &fakeSyncLogs{}).Sync(context.Background(), tt.from, tt.to)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !fetcher.from.Equal(tt.wantFrom) || !fetcher.to.Equal(tt.wantTo) {
				t.Errorf("expected %v..%v, fetched %v..%v", tt.wantFrom, tt.wantTo, fetcher.from, fetcher.to)
			}
			if !result.From.Equal(tt.wantFrom) || !result.To.Equal(tt.wantTo) {
				t.Errorf("result range %v..%v", result.From, result.To)
			}
		})
	}
}

func TestSyncInvertedRangeIsValidationError(t *testing.T) {
	fetcher := &fakeFetcher{}
	logs := &fakeSyncLogs{}
	_, err := newTestSyncEngine(fetcher, newFakePriceStore(), logs).Sync(context.Background(), ptrTime(day(2024, 2, 1)), ptrTime(day(2024, 1, 1)))

	var validationErr *database.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if fetcher.calls != 0 || len(logs.runs) != 0 {
		t.Error("validation must fail before any I/O")
	}
}

func TestSyncNotConfigured(t *testing.T) {
	logs := &fakeSyncLogs{}
	engine := NewGovSyncEngine(nil, govapi.DefaultFieldMap(), newFakePriceStore(), newWestJavaReference(), logs, nil)

	_, err := engine.Sync(context.Background(), nil, nil)
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if len(logs.runs) != 0 {
		t.Error("configuration errors must not write a run log")
	}
}

func TestSyncTransportFailureWritesFailedRun(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantStage string
	}{
		{name: "transport", err: errors.New("connection refused"), wantStage: "fetch"},
		{name: "format", err: govapi.ErrUnexpectedPayload, wantStage: "decode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs := &fakeSyncLogs{}
			_, err := newTestSyncEngine(&fakeFetcher{err: tt.err}, newFakePriceStore(), logs).Sync(context.Background(), nil, nil)

			if !errors.Is(err, tt.err) {
				t.Fatalf("expected original error to propagate, got %v", err)
			}
			var upstream *UpstreamError
			if !errors.As(err, &upstream) {
				t.Errorf("expected UpstreamError, got %T", err)
			}
			if len(logs.runs) != 1 {
				t.Fatalf("expected exactly one run log, got %d", len(logs.runs))
			}
			run := logs.runs[0]
			if run.Status != models.SyncStatusFailed || run.ErrorMessage == nil {
				t.Errorf("expected FAILED run with message, got %+v", run)
			}
			if run.Details.Stage != tt.wantStage || run.Details.From != "2024-01-03" || run.Details.To != "2024-01-10" {
				t.Errorf("unexpected details %+v", run.Details)
			}
		})
	}
}

func TestSyncStoreFailureKeepsPartialCounts(t *testing.T) {
	prices := newFakePriceStore()
	fetcher := &fakeFetcher{rows: []map[string]any{
		bandungRow("2024-01-01", "12000"),
		bandungRow("2024-01-02", "12100"),
	}}
	logs := &fakeSyncLogs{}
	engine := newTestSyncEngine(fetcher, prices, logs)

	// Fail the second insert
	prices.beforeCreate = func(s *fakePriceStore, p *models.DailyPrice) {
		s.beforeCreate = func(s *fakePriceStore, p *models.DailyPrice) {
			s.createErr = errors.New("disk full")
		}
	}

	result, err := engine.Sync(context.Background(), nil, nil)
	if err == nil {
		t.Fatal("expected store failure to propagate")
	}
	if result.Inserted != 1 {
		t.Errorf("expected partial count of 1 insert, got %+v", result)
	}
	if len(logs.runs) != 1 || logs.runs[0].Status != models.SyncStatusFailed || logs.runs[0].Details.Inserted != 1 {
		t.Errorf("expected FAILED run with partial counts, got %+v", logs.runs)
	}
}

func TestSyncUniqueViolationFallsBackToUpdate(t *testing.T) {
	prices := newFakePriceStore()
	prices.beforeCreate = func(s *fakePriceStore, p *models.DailyPrice) {
		s.insert(&models.DailyPrice{ProvinceID: p.ProvinceID, RegencyID: p.RegencyID, CommodityID: p.CommodityID, Date: p.Date, Price: dec(9000), Source: models.SourceManual})
	}
	fetcher := &fakeFetcher{rows: []map[string]any{bandungRow("2024-01-01", "12000")}}

	result, err := newTestSyncEngine(fetcher, prices, &fakeSyncLogs{}).Sync(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Inserted != 0 || result.Updated != 1 {
		t.Errorf("expected race to count as update, got %+v", result)
	}
	if prices.count() != 1 || !prices.get(2, 20, 1, day(2024, 1, 1)).Price.Equal(dec(12000)) {
		t.Error("expected single row holding the synced price")
	}
}

func TestSyncAcceptsIntegralCommodityNumerals(t *testing.T) {
	tests := []struct {
		name      string
		commodity any
		inserted  int
	}{
		{name: "plain string", commodity: "1", inserted: 1},
		{name: "decimal string", commodity: "1.0", inserted: 1},
		{name: "decimal json number", commodity: json.Number("1.00"), inserted: 1},
		{name: "fractional id", commodity: "1.5", inserted: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := bandungRow("2024-01-01", "12000")
			row["id_komoditas"] = tt.commodity
			prices := newFakePriceStore()

			result, err := newTestSyncEngine(&fakeFetcher{rows: []map[string]any{row}}, prices, &fakeSyncLogs{}).Sync(context.Background(), nil, nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.Inserted != tt.inserted || result.Inserted+result.Skipped != 1 {
				t.Errorf("expected inserted=%d, got %+v", tt.inserted, result)
			}
			if tt.inserted == 1 && prices.get(2, 20, 1, day(2024, 1, 1)) == nil {
				t.Error("expected row stored under commodity 1")
			}
		})
	}
}

func TestSyncRecordsRunAfterCallerCancels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fetcher := &fakeFetcher{
		rows:    []map[string]any{bandungRow("2024-01-01", "12000")},
		onFetch: cancel,
	}
	logs := &fakeSyncLogs{}

	result, err := newTestSyncEngine(fetcher, newFakePriceStore(), logs).Sync(ctx, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Inserted != 1 {
		t.Errorf("expected one inserted row, got %+v", result)
	}
	if len(logs.runs) != 1 || logs.runs[0].Status != models.SyncStatusSuccess {
		t.Fatalf("expected SUCCESS run recorded after cancellation, got %+v", logs.runs)
	}
}

func TestSyncInvalidatesDashboardCache(t *testing.T) {
	cache := &countingCache{}
	engine := NewGovSyncEngine(&fakeFetcher{}, govapi.DefaultFieldMap(), newFakePriceStore(), newWestJavaReference(), &fakeSyncLogs{}, cache)
	if _, err := engine.Sync(context.Background(), nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cache.invalidated != 1 {
		t.Errorf("expected cache invalidation after success, got %d", cache.invalidated)
	}
}

func ptrTime(t time.Time) *time.Time {
	return &t
}
