package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"harga-pangan/database"
	models "harga-pangan/database/models_pkg"
	"harga-pangan/govapi"
)

// defaultSyncWindow is the trailing range used when a bound is omitted
const defaultSyncWindow = 7 * 24 * time.Hour

// Skip reasons recorded in SyncLog details
const (
	skipNotObject        = "not_object"
	skipMissingField     = "missing_field"
	skipBadDate          = "bad_date"
	skipBadPrice         = "bad_price"
	skipUnknownProvince  = "unknown_province"
	skipUnknownRegency   = "unknown_regency"
	skipUnknownCommodity = "unknown_commodity"
)

// SyncResult reports the outcome of one government sync run.
// TotalFetched always equals Inserted + Updated + Skipped once the run completes.
type SyncResult struct {
	RunID        string    `json:"run_id"`
	From         time.Time `json:"from"`
	To           time.Time `json:"to"`
	TotalFetched int       `json:"total_fetched"`
	Inserted     int       `json:"inserted"`
	Updated      int       `json:"updated"`
	Skipped      int       `json:"skipped"`
}

// GovSyncEngine reconciles government pricing API rows into the price store
type GovSyncEngine struct {
	fetcher   GovFetcher
	fields    govapi.FieldMap
	prices    PriceStore
	reference ReferenceStore
	logs      SyncLogStore
	cache     SummaryCache
	now       func() time.Time
}

// NewGovSyncEngine creates a sync engine. A nil fetcher means the integration is not configured.
func NewGovSyncEngine(fetcher GovFetcher, fields govapi.FieldMap, prices PriceStore, reference ReferenceStore, logs SyncLogStore, cache SummaryCache) *GovSyncEngine {
	if cache == nil {
		cache = noopCache{}
	}
	return &GovSyncEngine{
		fetcher:   fetcher,
		fields:    fields,
		prices:    prices,
		reference: reference,
		logs:      logs,
		cache:     cache,
		now:       time.Now,
	}
}

// referenceIndex is the per-run snapshot used to resolve external codes
type referenceIndex struct {
	provinces   map[string]int64 // province code -> id
	regencies   map[string]int64 // "provinceID:regencyCode" -> id
	commodities map[int64]bool
}

func regencyLookupKey(provinceID int64, code string) string {
	return strconv.FormatInt(provinceID, 10) + ":" + code
}

// syncRun accumulates counters for one invocation
type syncRun struct {
	result      SyncResult
	skipReasons map[string]int
}

func (r *syncRun) skip(reason string) {
	r.result.Skipped++
	r.skipReasons[reason]++
}

// Sync fetches rows for [from, to] and upserts them by natural key.
// Omitted bounds default to the trailing 7 days ending at to (or today).
// Every call that gets past the configuration and range checks writes exactly one SyncLog.
func (e *GovSyncEngine) Sync(ctx context.Context, from, to *time.Time) (SyncResult, error) {
	if e.fetcher == nil {
		return SyncResult{}, ErrNotConfigured
	}

	end := dayOf(e.now())
	if to != nil {
		end = dayOf(*to)
	}
	start := dayOf(end.Add(-defaultSyncWindow))
	if from != nil {
		start = dayOf(*from)
	}
	if start.After(end) {
		return SyncResult{}, database.NewValidationErrorWithValue("date_from", "must not be after date_to", start.Format("2006-01-02"))
	}

	run := &syncRun{
		result: SyncResult{
			RunID: uuid.NewString(),
			From:  start,
			To:    end,
		},
		skipReasons: make(map[string]int),
	}

	log.Printf("🔄 Gov sync %s started for %s..%s", run.result.RunID, start.Format("2006-01-02"), end.Format("2006-01-02"))

	rows, err := e.fetcher.FetchPrices(ctx, start, end)
	if err != nil {
		stage := "fetch"
		if errors.Is(err, govapi.ErrUnexpectedPayload) {
			stage = "decode"
		}
		return run.result, e.fail(ctx, run, stage, &UpstreamError{Service: "gov pricing API", Err: err})
	}
	run.result.TotalFetched = len(rows)

	index, err := e.loadReferences(ctx)
	if err != nil {
		return run.result, e.fail(ctx, run, "reference", err)
	}

	for _, row := range rows {
		if err := e.reconcileRow(ctx, index, run, row); err != nil {
			return run.result, e.fail(ctx, run, "reconcile", err)
		}
	}

	// Every row is committed at this point; record the run even if the caller has gone away
	logCtx := context.WithoutCancel(ctx)
	if err := e.writeLog(logCtx, run, models.SyncStatusSuccess, "", ""); err != nil {
		return run.result, fmt.Errorf("sync completed but run log failed: %w", err)
	}
	e.cache.Invalidate(logCtx)

	log.Printf("✅ Gov sync %s finished: fetched=%d inserted=%d updated=%d skipped=%d",
		run.result.RunID, run.result.TotalFetched, run.result.Inserted, run.result.Updated, run.result.Skipped)
	return run.result, nil
}

// loadReferences builds the lookup maps for one run
func (e *GovSyncEngine) loadReferences(ctx context.Context) (*referenceIndex, error) {
	provinces, err := e.reference.ListProvinces(ctx)
	if err != nil {
		return nil, fmt.Errorf("load provinces: %w", err)
	}
	regencies, err := e.reference.ListRegencies(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("load regencies: %w", err)
	}
	commodities, err := e.reference.ListCommodities(ctx)
	if err != nil {
		return nil, fmt.Errorf("load commodities: %w", err)
	}

	index := &referenceIndex{
		provinces:   make(map[string]int64, len(provinces)),
		regencies:   make(map[string]int64, len(regencies)),
		commodities: make(map[int64]bool, len(commodities)),
	}
	for _, p := range provinces {
		index.provinces[p.Code] = p.ID
	}
	for _, r := range regencies {
		index.regencies[regencyLookupKey(r.ProvinceID, r.Code)] = r.ID
	}
	for _, c := range commodities {
		index.commodities[c.ID] = true
	}
	return index, nil
}

// reconcileRow resolves and upserts one row. Data problems are counted as
// skips; only store failures are returned.
func (e *GovSyncEngine) reconcileRow(ctx context.Context, index *referenceIndex, run *syncRun, row map[string]any) error {
	if row == nil {
		run.skip(skipNotObject)
		return nil
	}

	rec, err := e.fields.Extract(row)
	if err != nil {
		switch {
		case errors.Is(err, govapi.ErrBadDate):
			run.skip(skipBadDate)
		case errors.Is(err, govapi.ErrBadPrice):
			run.skip(skipBadPrice)
		default:
			run.skip(skipMissingField)
		}
		return nil
	}

	provinceID, ok := index.provinces[rec.ProvinceCode]
	if !ok {
		run.skip(skipUnknownProvince)
		return nil
	}
	regencyID, ok := index.regencies[regencyLookupKey(provinceID, rec.RegencyCode)]
	if !ok {
		run.skip(skipUnknownRegency)
		return nil
	}
	commodityID, ok := parseCommodityID(rec.CommodityID)
	if !ok || !index.commodities[commodityID] {
		run.skip(skipUnknownCommodity)
		return nil
	}

	key := models.PriceKey{
		ProvinceID:  provinceID,
		RegencyID:   regencyID,
		CommodityID: commodityID,
		Date:        rec.Date,
	}
	inserted, err := e.upsert(ctx, key, rec.Price)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	if inserted {
		run.result.Inserted++
	} else {
		run.result.Updated++
	}
	return nil
}

// upsert reads by natural key and branches into insert or in-place update
func (e *GovSyncEngine) upsert(ctx context.Context, key models.PriceKey, price decimal.Decimal) (bool, error) {
	existing, err := e.prices.FindByKey(ctx, key)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, e.prices.UpdatePrice(ctx, existing.ID, price, models.SourceGovAPI)
	}

	err = e.prices.Create(ctx, &models.DailyPrice{
		ProvinceID:  key.ProvinceID,
		RegencyID:   key.RegencyID,
		CommodityID: key.CommodityID,
		Date:        key.Date,
		Price:       price,
		Source:      models.SourceGovAPI,
	})
	if err == nil {
		return true, nil
	}
	if !database.IsUniqueViolation(err) {
		return false, err
	}

	// Another writer inserted the key between read and create; last write wins
	existing, err = e.prices.FindByKey(ctx, key)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, fmt.Errorf("row vanished after unique violation")
	}
	return false, e.prices.UpdatePrice(ctx, existing.ID, price, models.SourceGovAPI)
}

// fail records a FAILED run and returns cause so the caller observes the failure
// parseCommodityID accepts integral numerals such as "7" or "7.0"
func parseCommodityID(raw string) (int64, bool) {
	d, err := decimal.NewFromString(raw)
	if err != nil || !d.IsInteger() {
		return 0, false
	}
	id := d.IntPart()
	if !d.Equal(decimal.NewFromInt(id)) {
		return 0, false
	}
	return id, true
}

func (e *GovSyncEngine) fail(ctx context.Context, run *syncRun, stage string, cause error) error {
	log.Printf("❌ Gov sync %s failed at %s for %s..%s: %v",
		run.result.RunID, stage, run.result.From.Format("2006-01-02"), run.result.To.Format("2006-01-02"), cause)

	// The request context may already be cancelled; the audit row must still be written
	logCtx := context.WithoutCancel(ctx)
	if err := e.writeLog(logCtx, run, models.SyncStatusFailed, stage, cause.Error()); err != nil {
		log.Printf("⚠️  Failed to record failed sync run %s: %v", run.result.RunID, err)
	}
	return cause
}

func (e *GovSyncEngine) writeLog(ctx context.Context, run *syncRun, status, stage, errMsg string) error {
	entry := &models.SyncLog{
		Status:  status,
		RunAt:   e.now(),
		Records: run.result.Inserted + run.result.Updated,
		Details: models.SyncDetails{
			RunID:    run.result.RunID,
			From:     run.result.From.Format("2006-01-02"),
			To:       run.result.To.Format("2006-01-02"),
			Fetched:  run.result.TotalFetched,
			Inserted: run.result.Inserted,
			Updated:  run.result.Updated,
			Skipped:  run.result.Skipped,
			Error:    errMsg,
			Stage:    stage,
		},
	}
	if len(run.skipReasons) > 0 {
		entry.Details.SkipReasons = run.skipReasons
	}
	if errMsg != "" {
		entry.ErrorMessage = &errMsg
	}
	return e.logs.Create(ctx, entry)
}
