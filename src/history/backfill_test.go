package history

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"coin-observer/src/logger"
	"coin-observer/src/models"
	"coin-observer/src/storage"

	"github.com/shopspring/decimal"
)

// -----------------------------------------------------------------------------

func newTestDB(t *testing.T) *storage.SQLiteDB {
	t.Helper()

	cfg := &models.MConfig{
		Name:    "backfilltest",
		Storage: models.MStorageConfig{DBType: "sqlite", DBPath: ":memory:"},
	}
	db, err := storage.NewSQLiteDB(cfg, logger.NewLogger("ERROR", "test"))
	if err != nil {
		t.Fatalf("NewSQLiteDB: %v", err)
	}
	if err := db.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// -----------------------------------------------------------------------------

type fakeProvider struct {
	ids        map[string]string
	points     []models.MHistoricalPoint
	err        error
	chartCalls atomic.Int32
}

func (f *fakeProvider) ResolveID(symbol string) (string, bool, error) {
	id, ok := f.ids[symbol]
	return id, ok, nil
}

func (f *fakeProvider) FetchMarketChart(id string, daysBack int) ([]models.MHistoricalPoint, error) {
	f.chartCalls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.points, nil
}

func (f *fakeProvider) FetchMetadata(symbol, id string) (models.MCoinMetadata, error) {
	return models.MCoinMetadata{Symbol: symbol, GeckoID: id}, nil
}

// -----------------------------------------------------------------------------

type fakeControl struct {
	pauses  atomic.Int32
	resumes atomic.Int32
}

func (f *fakeControl) Pause()  { f.pauses.Add(1) }
func (f *fakeControl) Resume() { f.resumes.Add(1) }

// -----------------------------------------------------------------------------

func newTestBackfiller(db *storage.SQLiteDB, provider *fakeProvider, control *fakeControl) *Backfiller {
	log := logger.NewLogger("ERROR", "test")
	b := NewBackfiller(db, provider, control, models.MHistoryConfig{
		RateLimitDelay: 0,
		MaxGapHours:    2,
		BatchSize:      50,
		BatchCooldown:  0,
		CommitEvery:    100,
	}, log)
	return b
}

// -----------------------------------------------------------------------------

func TestBackfillSkipsExistingPoints(t *testing.T) {
	db := newTestDB(t)

	existing := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if _, err := db.SavePricePoints([]models.MPricePoint{{
		Symbol:    "BTC",
		Exchange:  models.ExchangeAverage,
		Price:     decimal.NewFromInt(50000),
		Volume:    decimal.NewFromInt(1),
		Timestamp: existing,
	}}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	provider := &fakeProvider{
		ids: map[string]string{"BTC": "bitcoin"},
		points: []models.MHistoricalPoint{
			{Timestamp: existing, Price: decimal.NewFromInt(49999), Volume: decimal.NewFromInt(5)},
			{Timestamp: existing.Add(time.Hour), Price: decimal.NewFromInt(50100), Volume: decimal.NewFromInt(5)},
			{Timestamp: existing.Add(2 * time.Hour), Price: decimal.NewFromInt(50200), Volume: decimal.NewFromInt(5)},
		},
	}

	b := newTestBackfiller(db, provider, &fakeControl{})

	inserted, err := b.Backfill("BTC", 1)
	if err != nil {
		t.Fatalf("Backfill: %v", err)
	}
	if inserted != 2 {
		t.Fatalf("inserted = %d, want 2 (existing point must be skipped)", inserted)
	}

	// The existing row keeps its original price.
	points, err := db.PricePointsRange("BTC", models.ExchangeAverage, existing, existing.Add(time.Second))
	if err != nil {
		t.Fatalf("PricePointsRange: %v", err)
	}
	if len(points) != 1 || !points[0].Price.Equal(decimal.NewFromInt(50000)) {
		t.Fatalf("existing row was modified: %+v", points)
	}
}

// -----------------------------------------------------------------------------

func TestBackfillUnresolvableSymbol(t *testing.T) {
	db := newTestDB(t)
	provider := &fakeProvider{ids: map[string]string{}}

	b := newTestBackfiller(db, provider, &fakeControl{})

	inserted, err := b.Backfill("OBSCURECOIN", 7)
	if err != nil {
		t.Fatalf("unresolvable symbol must not error: %v", err)
	}
	if inserted != 0 {
		t.Fatalf("inserted = %d, want 0", inserted)
	}
}

// -----------------------------------------------------------------------------

func TestBackfillAllResumesSchedulerOnFailure(t *testing.T) {
	db := newTestDB(t)

	// Track a symbol so BackfillAll has something to process.
	if _, err := db.UpsertCoins([]models.MCoin{{Symbol: "BTC", PriceUSD: 50000, LastUpdated: time.Now()}}); err != nil {
		t.Fatalf("UpsertCoins: %v", err)
	}

	provider := &fakeProvider{
		ids: map[string]string{"BTC": "bitcoin"},
		err: errors.New("provider down"),
	}
	control := &fakeControl{}

	b := newTestBackfiller(db, provider, control)

	summary := b.BackfillAll(7, true)
	if summary.Processed != 1 || summary.Failed != 1 {
		t.Fatalf("summary = %+v, want 1 processed / 1 failed", summary)
	}
	if control.pauses.Load() != 1 {
		t.Fatalf("pauses = %d, want 1", control.pauses.Load())
	}
	if control.resumes.Load() != 1 {
		t.Fatalf("resumes = %d, want 1 (resume must survive failures)", control.resumes.Load())
	}
}

// -----------------------------------------------------------------------------

func TestFillGapsOnlyTouchesGappedSymbols(t *testing.T) {
	db := newTestDB(t)

	now := time.Now().UTC()
	coins := []models.MCoin{
		{Symbol: "BTC", PriceUSD: 50000, LastUpdated: now},
		{Symbol: "ETH", PriceUSD: 3000, LastUpdated: now},
	}
	if _, err := db.UpsertCoins(coins); err != nil {
		t.Fatalf("UpsertCoins: %v", err)
	}

	// BTC is fresh, ETH has no average rows at all.
	if _, err := db.SavePricePoints([]models.MPricePoint{{
		Symbol:    "BTC",
		Exchange:  models.ExchangeAverage,
		Price:     decimal.NewFromInt(50000),
		Volume:    decimal.NewFromInt(1),
		Timestamp: now.Add(-time.Minute),
	}}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	provider := &fakeProvider{
		ids: map[string]string{"BTC": "bitcoin", "ETH": "ethereum"},
		points: []models.MHistoricalPoint{
			{Timestamp: now.Add(-24 * time.Hour), Price: decimal.NewFromInt(2900), Volume: decimal.NewFromInt(1)},
		},
	}

	b := newTestBackfiller(db, provider, &fakeControl{})

	summary := b.FillGaps(2, false)
	if summary.Total != 1 {
		t.Fatalf("summary.Total = %d, want 1 (only ETH has a gap)", summary.Total)
	}
	if summary.Succeeded != 1 || summary.PointsInserted != 1 {
		t.Fatalf("summary = %+v, want 1 succeeded / 1 point", summary)
	}

	// The backfilled point landed under ETH's average series.
	exists, err := db.HasPricePoint("ETH", models.ExchangeAverage, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("HasPricePoint: %v", err)
	}
	if !exists {
		t.Fatal("expected ETH backfill point to be stored")
	}
}

// -----------------------------------------------------------------------------

func TestBulkSummaryCarriesFinishedAt(t *testing.T) {
	db := newTestDB(t)

	if _, err := db.UpsertCoins([]models.MCoin{{Symbol: "BTC", PriceUSD: 50000, LastUpdated: time.Now()}}); err != nil {
		t.Fatalf("UpsertCoins: %v", err)
	}

	provider := &fakeProvider{
		ids: map[string]string{"BTC": "bitcoin"},
		points: []models.MHistoricalPoint{
			{Timestamp: time.Now().UTC().Add(-time.Hour), Price: decimal.NewFromInt(50000), Volume: decimal.NewFromInt(1)},
		},
	}

	b := newTestBackfiller(db, provider, &fakeControl{})

	summary := b.BackfillAll(1, false)
	if summary.FinishedAt.IsZero() {
		t.Fatal("returned summary has zero FinishedAt")
	}
	if summary.FinishedAt.Before(summary.StartedAt) {
		t.Fatalf("FinishedAt %v precedes StartedAt %v", summary.FinishedAt, summary.StartedAt)
	}
}

// -----------------------------------------------------------------------------

// flakyDB lets the first insert commit and fails the rest, simulating a
// storage failure in the middle of a multi-batch backfill.
type flakyDB struct {
	*storage.SQLiteDB
	saves atomic.Int32
}

func (f *flakyDB) SavePricePoints(points []models.MPricePoint) (int, error) {
	if f.saves.Add(1) > 1 {
		return 0, errors.New("disk full")
	}
	return f.SQLiteDB.SavePricePoints(points)
}

func TestBulkSummaryCountsPartialCommits(t *testing.T) {
	db := newTestDB(t)

	if _, err := db.UpsertCoins([]models.MCoin{{Symbol: "BTC", PriceUSD: 50000, LastUpdated: time.Now()}}); err != nil {
		t.Fatalf("UpsertCoins: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	provider := &fakeProvider{
		ids: map[string]string{"BTC": "bitcoin"},
		points: []models.MHistoricalPoint{
			{Timestamp: now.Add(-2 * time.Hour), Price: decimal.NewFromInt(49000), Volume: decimal.NewFromInt(1)},
			{Timestamp: now.Add(-time.Hour), Price: decimal.NewFromInt(49500), Volume: decimal.NewFromInt(1)},
		},
	}

	flaky := &flakyDB{SQLiteDB: db}
	b := NewBackfiller(flaky, provider, &fakeControl{}, models.MHistoryConfig{
		MaxGapHours: 2,
		BatchSize:   50,
		CommitEvery: 1,
	}, logger.NewLogger("ERROR", "test"))

	summary := b.BackfillAll(1, false)
	if summary.Failed != 1 {
		t.Fatalf("summary = %+v, want 1 failed", summary)
	}
	if summary.PointsInserted != 1 {
		t.Fatalf("PointsInserted = %d, want 1 (first batch committed before the failure)", summary.PointsInserted)
	}

	// The committed batch really is in the store.
	exists, err := db.HasPricePoint("BTC", models.ExchangeAverage, now.Add(-2*time.Hour))
	if err != nil {
		t.Fatalf("HasPricePoint: %v", err)
	}
	if !exists {
		t.Fatal("expected the committed point to be stored")
	}
}

// -----------------------------------------------------------------------------

func TestDiscoveryBackfillsBrandNewSymbol(t *testing.T) {
	db := newTestDB(t)

	now := time.Now().UTC().Truncate(time.Second)

	// SOL appeared mid-run: tracked, no metadata, only a few minutes of
	// live average rows.
	if _, err := db.UpsertCoins([]models.MCoin{{Symbol: "SOL", PriceUSD: 150, LastUpdated: now}}); err != nil {
		t.Fatalf("UpsertCoins: %v", err)
	}
	if _, err := db.SavePricePoints([]models.MPricePoint{{
		Symbol:    "SOL",
		Exchange:  models.ExchangeAverage,
		Price:     decimal.NewFromInt(150),
		Volume:    decimal.NewFromInt(1),
		Timestamp: now.Add(-10 * time.Minute),
	}}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	historical := now.Add(-30 * 24 * time.Hour)
	provider := &fakeProvider{
		ids: map[string]string{"SOL": "solana"},
		points: []models.MHistoricalPoint{
			{Timestamp: historical, Price: decimal.NewFromInt(120), Volume: decimal.NewFromInt(1)},
		},
	}

	b := newTestBackfiller(db, provider, &fakeControl{})

	if err := b.EnrichNewSymbols(); err != nil {
		t.Fatalf("EnrichNewSymbols: %v", err)
	}

	coin, ok, err := db.GetCoin("SOL")
	if err != nil || !ok {
		t.Fatalf("GetCoin: ok=%v err=%v", ok, err)
	}
	if coin.GeckoID != "solana" {
		t.Fatalf("GeckoID = %q, want solana", coin.GeckoID)
	}

	if provider.chartCalls.Load() != 1 {
		t.Fatalf("chart fetches = %d, want 1 (new symbol must get its initial backfill)", provider.chartCalls.Load())
	}

	exists, err := db.HasPricePoint("SOL", models.ExchangeAverage, historical)
	if err != nil {
		t.Fatalf("HasPricePoint: %v", err)
	}
	if !exists {
		t.Fatal("expected historical point to be bootstrapped for the new symbol")
	}
}

// -----------------------------------------------------------------------------

func TestDiscoverySkipsSymbolsWithDeepHistory(t *testing.T) {
	db := newTestDB(t)

	now := time.Now().UTC().Truncate(time.Second)

	if _, err := db.UpsertCoins([]models.MCoin{{Symbol: "BTC", PriceUSD: 50000, LastUpdated: now}}); err != nil {
		t.Fatalf("UpsertCoins: %v", err)
	}
	// Two days of existing history means only metadata is missing.
	if _, err := db.SavePricePoints([]models.MPricePoint{{
		Symbol:    "BTC",
		Exchange:  models.ExchangeAverage,
		Price:     decimal.NewFromInt(48000),
		Volume:    decimal.NewFromInt(1),
		Timestamp: now.Add(-48 * time.Hour),
	}}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	provider := &fakeProvider{ids: map[string]string{"BTC": "bitcoin"}}
	b := newTestBackfiller(db, provider, &fakeControl{})

	if err := b.EnrichNewSymbols(); err != nil {
		t.Fatalf("EnrichNewSymbols: %v", err)
	}

	coin, ok, err := db.GetCoin("BTC")
	if err != nil || !ok {
		t.Fatalf("GetCoin: ok=%v err=%v", ok, err)
	}
	if coin.GeckoID != "bitcoin" {
		t.Fatalf("GeckoID = %q, want bitcoin", coin.GeckoID)
	}

	if provider.chartCalls.Load() != 0 {
		t.Fatalf("chart fetches = %d, want 0 (symbol already has history)", provider.chartCalls.Load())
	}
}
