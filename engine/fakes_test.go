package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	models "harga-pangan/database/models_pkg"
	"harga-pangan/mlservice"
)

type fakePriceStore struct {
	mu        sync.Mutex
	rows      map[string]*models.DailyPrice
	nextID    int64
	createErr error
	// beforeCreate runs once before the next Create, to simulate a concurrent writer
	beforeCreate func(s *fakePriceStore, p *models.DailyPrice)
	creates      int
	updates      int
}

func newFakePriceStore() *fakePriceStore {
	return &fakePriceStore{rows: make(map[string]*models.DailyPrice)}
}

func (s *fakePriceStore) FindByKey(_ context.Context, key models.PriceKey) (*models.DailyPrice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row, ok := s.rows[key.String()]; ok {
		copied := *row
		return &copied, nil
	}
	return nil, nil
}

func (s *fakePriceStore) insert(p *models.DailyPrice) error {
	key := p.Key().String()
	if _, exists := s.rows[key]; exists {
		return errDuplicate
	}
	s.nextID++
	p.ID = s.nextID
	copied := *p
	s.rows[key] = &copied
	return nil
}

func (s *fakePriceStore) Create(_ context.Context, p *models.DailyPrice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if hook := s.beforeCreate; hook != nil {
		s.beforeCreate = nil
		hook(s, p)
	}
	if s.createErr != nil {
		return s.createErr
	}
	s.creates++
	return s.insert(p)
}

func (s *fakePriceStore) UpdatePrice(_ context.Context, id int64, price decimal.Decimal, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		if row.ID == id {
			row.Price = price
			row.Source = source
			s.updates++
			return nil
		}
	}
	return fmt.Errorf("row %d not found", id)
}

func (s *fakePriceStore) History(_ context.Context, provinceID, regencyID, commodityID int64) ([]models.DailyPrice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.DailyPrice
	for _, row := range s.rows {
		if row.ProvinceID == provinceID && row.RegencyID == regencyID && row.CommodityID == commodityID {
			out = append(out, *row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *fakePriceStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

func (s *fakePriceStore) get(p, r, c int64, date time.Time) *models.DailyPrice {
	row, _ := s.FindByKey(context.Background(), models.PriceKey{ProvinceID: p, RegencyID: r, CommodityID: c, Date: date})
	return row
}

// errDuplicate mimics the translated unique violation GORM returns
var errDuplicate = fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey)

type fakeReference struct {
	provinces   []models.Province
	regencies   []models.Regency
	commodities []models.Commodity
	listErr     error
}

// newWestJavaReference seeds provinces 31 and 32 with Bandung (3273) and one commodity
func newWestJavaReference() *fakeReference {
	return &fakeReference{
		provinces: []models.Province{
			{ID: 1, Code: "31", Name: "DKI Jakarta"},
			{ID: 2, Code: "32", Name: "Jawa Barat"},
		},
		regencies: []models.Regency{
			{ID: 10, ProvinceID: 1, Code: "3171", Name: "Jakarta Selatan"},
			{ID: 20, ProvinceID: 2, Code: "3273", Name: "Kota Bandung"},
		},
		commodities: []models.Commodity{
			{ID: 1, Name: "Beras Medium", Category: "Beras", Unit: "kg", IsActive: true},
		},
	}
}

func (f *fakeReference) ListProvinces(context.Context) ([]models.Province, error) {
	return f.provinces, f.listErr
}

func (f *fakeReference) ListRegencies(_ context.Context, provinceID int64) ([]models.Regency, error) {
	if provinceID <= 0 {
		return f.regencies, f.listErr
	}
	var out []models.Regency
	for _, r := range f.regencies {
		if r.ProvinceID == provinceID {
			out = append(out, r)
		}
	}
	return out, f.listErr
}

func (f *fakeReference) ListCommodities(context.Context) ([]models.Commodity, error) {
	return f.commodities, f.listErr
}

func (f *fakeReference) GetProvince(_ context.Context, id int64) (*models.Province, error) {
	for _, p := range f.provinces {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, nil
}

func (f *fakeReference) GetRegency(_ context.Context, id int64) (*models.Regency, error) {
	for _, r := range f.regencies {
		if r.ID == id {
			return &r, nil
		}
	}
	return nil, nil
}

func (f *fakeReference) GetCommodity(_ context.Context, id int64) (*models.Commodity, error) {
	for _, c := range f.commodities {
		if c.ID == id {
			return &c, nil
		}
	}
	return nil, nil
}

type fakeSyncLogs struct {
	runs []models.SyncLog
}

// Create fails on a cancelled context like a real database call would
func (f *fakeSyncLogs) Create(ctx context.Context, run *models.SyncLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.runs = append(f.runs, *run)
	return nil
}

type fakeFetcher struct {
	rows    []map[string]any
	err     error
	calls   int
	from    time.Time
	to      time.Time
	onFetch func()
}

func (f *fakeFetcher) FetchPrices(_ context.Context, from, to time.Time) ([]map[string]any, error) {
	f.calls++
	f.from, f.to = from, to
	if f.onFetch != nil {
		f.onFetch()
	}
	return f.rows, f.err
}

type fakePredictionStore struct {
	rows    map[models.PredictionKey]models.PricePrediction
	nextID  int64
	failAt  int // 1-based index of the point whose write fails; 0 never fails
	batches int
}

func newFakePredictionStore() *fakePredictionStore {
	return &fakePredictionStore{rows: make(map[models.PredictionKey]models.PricePrediction)}
}

// UpsertBatch stages every write and commits only if all succeed
func (f *fakePredictionStore) UpsertBatch(_ context.Context, points []models.PricePrediction) ([]models.PricePrediction, error) {
	staged := make(map[models.PredictionKey]models.PricePrediction, len(f.rows))
	for k, v := range f.rows {
		staged[k] = v
	}
	nextID := f.nextID

	saved := make([]models.PricePrediction, 0, len(points))
	for i, p := range points {
		if f.failAt == i+1 {
			return nil, fmt.Errorf("write point %d failed", i+1)
		}
		if existing, ok := staged[p.Key()]; ok {
			p.ID = existing.ID
		} else {
			nextID++
			p.ID = nextID
		}
		staged[p.Key()] = p
		saved = append(saved, p)
	}

	f.rows = staged
	f.nextID = nextID
	f.batches++
	return saved, nil
}

type fakePredictor struct {
	resp *mlservice.PredictResponse
	err  error
	last mlservice.PredictRequest
}

func (f *fakePredictor) Predict(_ context.Context, req mlservice.PredictRequest) (*mlservice.PredictResponse, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

type publishedEvent struct {
	event   string
	payload any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (r *recordingPublisher) Publish(_ context.Context, event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, publishedEvent{event: event, payload: payload})
}

type fakeTrendStore struct {
	totals   models.Totals
	latest   *time.Time
	averages map[string][]models.CommodityAverage // keyed by YYYY-MM-DD
	window   []models.DailyPrice
}

func (f *fakeTrendStore) Totals(context.Context) (models.Totals, error) {
	return f.totals, nil
}

func (f *fakeTrendStore) LatestDate(context.Context) (*time.Time, error) {
	return f.latest, nil
}

func (f *fakeTrendStore) AveragesByCommodity(_ context.Context, day time.Time) ([]models.CommodityAverage, error) {
	return f.averages[day.Format("2006-01-02")], nil
}

func (f *fakeTrendStore) AlertWindowRows(context.Context, int) ([]models.DailyPrice, error) {
	return f.window, nil
}

type fakeTrainingStore struct {
	runs   []models.ModelTrainingRun
	nextID int64
}

func (f *fakeTrainingStore) Create(_ context.Context, run *models.ModelTrainingRun) error {
	f.nextID++
	run.ID = f.nextID
	f.runs = append(f.runs, *run)
	return nil
}

func (f *fakeTrainingStore) Save(_ context.Context, run *models.ModelTrainingRun) error {
	for i := range f.runs {
		if f.runs[i].ID == run.ID {
			f.runs[i] = *run
			return nil
		}
	}
	return fmt.Errorf("run %d not found", run.ID)
}

func (f *fakeTrainingStore) ListLatest(_ context.Context, limit int) ([]models.ModelTrainingRun, error) {
	out := make([]models.ModelTrainingRun, 0, len(f.runs))
	for i := len(f.runs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, f.runs[i])
	}
	return out, nil
}

func (f *fakeTrainingStore) LatestSuccess(context.Context) (*models.ModelTrainingRun, error) {
	for i := len(f.runs) - 1; i >= 0; i-- {
		if f.runs[i].Status == models.TrainingStatusSuccess {
			run := f.runs[i]
			return &run, nil
		}
	}
	return nil, nil
}

type fakeModelService struct {
	trainResp *mlservice.TrainResponse
	trainErr  error
	metrics   *mlservice.ModelMetrics
	metricErr error
}

func (f *fakeModelService) Train(context.Context, mlservice.TrainRequest) (*mlservice.TrainResponse, error) {
	return f.trainResp, f.trainErr
}

func (f *fakeModelService) GetMetrics(context.Context) (*mlservice.ModelMetrics, error) {
	return f.metrics, f.metricErr
}

type fakeSettings struct {
	setting *models.SystemSetting
}

func (f *fakeSettings) GetSystemSetting(context.Context) (*models.SystemSetting, error) {
	return f.setting, nil
}

func (f *fakeSettings) SaveSystemSetting(_ context.Context, s *models.SystemSetting) error {
	copied := *s
	f.setting = &copied
	return nil
}

type countingCache struct {
	stored      any
	invalidated int
}

func (c *countingCache) Load(context.Context, any) bool { return false }
func (c *countingCache) Store(_ context.Context, v any) { c.stored = v }
func (c *countingCache) Invalidate(context.Context)     { c.invalidated++ }

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dec(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}
