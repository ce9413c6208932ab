package history

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"coin-observer/src/interfaces"
	"coin-observer/src/logger"
	"coin-observer/src/models"
)

// -----------------------------------------------------------------------------

// Backfiller fetches historical points from the external provider and fills
// detected gaps in the raw tier. Requests are serialized with a client-side
// throttle to stay inside the provider's rate budget.
type Backfiller struct {
	DB       interfaces.IDatabase
	Provider interfaces.IHistoryProvider
	Control  interfaces.ISchedulerControl
	Detector *GapDetector
	Logger   *logger.Logger

	RateDelay     time.Duration // minimum delay between provider requests
	BatchSize     int           // symbols per bulk batch
	BatchCooldown time.Duration // pause between bulk batches
	CommitEvery   int           // rows per insert transaction

	inProgress atomic.Bool
	mu         sync.Mutex
	lastRun    *models.MBackfillSummary
}

// -----------------------------------------------------------------------------

func NewBackfiller(
	db interfaces.IDatabase,
	provider interfaces.IHistoryProvider,
	control interfaces.ISchedulerControl,
	cfg models.MHistoryConfig,
	log *logger.Logger,
) *Backfiller {
	return &Backfiller{
		DB:            db,
		Provider:      provider,
		Control:       control,
		Detector:      NewGapDetector(db, log.Named("GapDetector")),
		Logger:        log,
		RateDelay:     time.Duration(cfg.RateLimitDelay * float64(time.Second)),
		BatchSize:     cfg.BatchSize,
		BatchCooldown: time.Duration(cfg.BatchCooldown * float64(time.Second)),
		CommitEvery:   cfg.CommitEvery,
	}
}

// -----------------------------------------------------------------------------

// Backfill fetches daysBack days of history for one symbol and inserts the
// points that are not already stored, committing in bounded batches.
// Returns the number of points inserted; zero is a valid outcome meaning the
// gap was already filled or the provider returned nothing.
func (b *Backfiller) Backfill(symbol string, daysBack int) (int, error) {
	if daysBack <= 0 {
		daysBack = 1
	}
	if daysBack > models.MaxBackfillDays {
		daysBack = models.MaxBackfillDays
	}

	id, ok, err := b.Provider.ResolveID(symbol)
	if err != nil {
		return 0, fmt.Errorf("resolving id for %s: %w", symbol, err)
	}
	if !ok {
		// Not backfillable, not fatal.
		b.Logger.Warning("No provider id for symbol %s, skipping backfill", symbol)
		return 0, nil
	}

	points, err := b.Provider.FetchMarketChart(id, daysBack)
	if err != nil {
		return 0, fmt.Errorf("fetching history for %s: %w", symbol, err)
	}

	inserted := 0
	pending := make([]models.MPricePoint, 0, b.CommitEvery)

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		n, err := b.DB.SavePricePoints(pending)
		if err != nil {
			return err
		}
		inserted += n
		pending = pending[:0]
		return nil
	}

	for _, pt := range points {
		exists, err := b.DB.HasPricePoint(symbol, models.ExchangeAverage, pt.Timestamp)
		if err != nil {
			return inserted, err
		}
		if exists {
			continue
		}

		pending = append(pending, models.MPricePoint{
			Symbol:    symbol,
			Exchange:  models.ExchangeAverage,
			Price:     pt.Price,
			Volume:    pt.Volume,
			Timestamp: pt.Timestamp,
		})

		if len(pending) >= b.CommitEvery {
			if err := flush(); err != nil {
				return inserted, err
			}
		}
	}

	if err := flush(); err != nil {
		return inserted, err
	}

	b.Logger.Info("Backfilled %d points for %s (%d days)", inserted, symbol, daysBack)
	return inserted, nil
}

// -----------------------------------------------------------------------------

// BackfillAll backfills every tracked symbol with the same depth. The
// scheduler is paused for the duration so periodic jobs do not compete for
// the provider's rate budget, and resumed even when the operation fails.
func (b *Backfiller) BackfillAll(daysBack int, pauseScheduler bool) models.MBackfillSummary {
	symbols, err := b.DB.ListSymbols()
	if err != nil {
		b.Logger.Error("Cannot list symbols for bulk backfill: %v", err)
		return models.MBackfillSummary{StartedAt: time.Now().UTC(), FinishedAt: time.Now().UTC()}
	}

	depth := func(string) int { return daysBack }
	return b.runBulk(symbols, depth, pauseScheduler)
}

// -----------------------------------------------------------------------------

// FillGaps backfills only the symbols that gap detection flags, each with its
// own recommended depth rather than a blanket full backfill.
func (b *Backfiller) FillGaps(maxGapHours float64, pauseScheduler bool) models.MBackfillSummary {
	report, err := b.Detector.DetectAll(maxGapHours)
	if err != nil {
		b.Logger.Error("Gap detection failed: %v", err)
		return models.MBackfillSummary{StartedAt: time.Now().UTC(), FinishedAt: time.Now().UTC()}
	}

	symbols := make([]string, 0, len(report.Gaps))
	for symbol := range report.Gaps {
		symbols = append(symbols, symbol)
	}

	depth := func(symbol string) int { return report.Gaps[symbol].RecommendedDays }
	return b.runBulk(symbols, depth, pauseScheduler)
}

// -----------------------------------------------------------------------------

// StartupCheck runs gap detection once at boot and, when anything is stale,
// triggers the gap-only fill so the service self-heals after downtime.
func (b *Backfiller) StartupCheck(maxGapHours float64) error {
	report, err := b.Detector.DetectAll(maxGapHours)
	if err != nil {
		return err
	}

	if report.SymbolsWithGaps == 0 {
		b.Logger.Info("Startup gap check: all %d symbols up to date", report.TotalSymbols)
		return nil
	}

	b.Logger.Info("Startup gap check: %d symbols need backfill, starting gap fill", report.SymbolsWithGaps)
	summary := b.FillGaps(maxGapHours, true)
	b.Logger.Info("Startup gap fill done: %d/%d succeeded, %d points inserted",
		summary.Succeeded, summary.Processed, summary.PointsInserted)
	return nil
}

// -----------------------------------------------------------------------------

// EnrichNewSymbols fills catalog metadata for symbols the price pipeline has
// started tracking, then bootstraps full-depth history for any of them that
// have none yet. Without the bootstrap a symbol first seen mid-run only ever
// accumulates live average rows, so gap detection sees it as up to date and
// its historical chart stays empty forever.
func (b *Backfiller) EnrichNewSymbols() error {
	symbols, err := b.DB.CoinsWithoutMetadata()
	if err != nil {
		return err
	}

	enriched := 0
	for _, symbol := range symbols {
		id, ok, err := b.Provider.ResolveID(symbol)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		meta, err := b.Provider.FetchMetadata(symbol, id)
		if err != nil {
			b.Logger.Warning("Metadata fetch failed for %s: %v", symbol, err)
			continue
		}
		if err := b.DB.SetCoinMetadata(meta); err != nil {
			return err
		}
		enriched++

		if b.needsBootstrap(symbol) {
			b.Logger.Info("New symbol %s has no history, starting initial backfill", symbol)
			if _, err := b.Backfill(symbol, models.MaxBackfillDays); err != nil {
				b.Logger.Error("Initial backfill failed for %s: %v", symbol, err)
			}
		}

		time.Sleep(b.RateDelay)
	}

	if enriched > 0 {
		if _, err := b.DB.RecomputeRanks(); err != nil {
			return err
		}
		b.Logger.Info("Discovery enriched %d of %d new symbols", enriched, len(symbols))
	}
	return nil
}

// -----------------------------------------------------------------------------

// needsBootstrap reports whether a symbol's average series is missing or too
// shallow to be anything but live ticks from the current session.
func (b *Backfiller) needsBootstrap(symbol string) bool {
	earliest, ok, err := b.DB.EarliestAveragePriceSince(symbol, time.Unix(0, 0))
	if err != nil {
		b.Logger.Warning("Cannot inspect history depth for %s: %v", symbol, err)
		return false
	}
	if !ok {
		return true
	}
	return time.Since(earliest.Timestamp) < 24*time.Hour
}

// -----------------------------------------------------------------------------

// runBulk iterates symbols in fixed-size batches with the provider throttle
// between symbols and a cooldown between batches. Per-symbol failures are
// counted, never propagated; the scheduler resume is guaranteed. The named
// return lets the deferred bookkeeping stamp FinishedAt on the value the
// caller receives, not just on the stored snapshot.
func (b *Backfiller) runBulk(symbols []string, depth func(string) int, pauseScheduler bool) (summary models.MBackfillSummary) {
	summary = models.MBackfillSummary{
		Total:     len(symbols),
		StartedAt: time.Now().UTC(),
	}

	if !b.inProgress.CompareAndSwap(false, true) {
		b.Logger.Warning("Bulk backfill already in progress, ignoring trigger")
		summary.FinishedAt = time.Now().UTC()
		return summary
	}

	if pauseScheduler && b.Control != nil {
		b.Control.Pause()
	}

	defer func() {
		if pauseScheduler && b.Control != nil {
			b.Control.Resume()
		}
		summary.FinishedAt = time.Now().UTC()

		b.mu.Lock()
		snapshot := summary
		b.lastRun = &snapshot
		b.mu.Unlock()

		b.inProgress.Store(false)
	}()

	for i, symbol := range symbols {
		if i > 0 && b.BatchSize > 0 && i%b.BatchSize == 0 {
			b.Logger.Info("Bulk backfill: %d/%d processed, cooling down", i, len(symbols))
			time.Sleep(b.BatchCooldown)
		}

		inserted, err := b.Backfill(symbol, depth(symbol))
		summary.Processed++
		if err != nil {
			summary.Failed++
			// Batches committed before the failure are durable state.
			summary.PointsInserted += inserted
			b.Logger.Error("Backfill failed for %s: %v", symbol, err)
		} else {
			summary.Succeeded++
			summary.PointsInserted += inserted
		}

		time.Sleep(b.RateDelay)
	}

	b.Logger.Info("Bulk backfill complete: %d processed, %d succeeded, %d failed, %d points",
		summary.Processed, summary.Succeeded, summary.Failed, summary.PointsInserted)
	return summary
}

// -----------------------------------------------------------------------------

// Status reports whether a bulk operation is in flight and the last summary.
func (b *Backfiller) Status() (bool, *models.MBackfillSummary) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inProgress.Load(), b.lastRun
}
