package history

import (
	"math"
	"time"

	"coin-observer/src/interfaces"
	"coin-observer/src/logger"
	"coin-observer/src/models"
)

// -----------------------------------------------------------------------------

// GapDetector derives the gap state of tracked symbols from the raw tier's
// latest average-row timestamps. Nothing here is persisted.
type GapDetector struct {
	DB     interfaces.IDatabase
	Logger *logger.Logger
	Now    func() time.Time
}

// -----------------------------------------------------------------------------

func NewGapDetector(db interfaces.IDatabase, log *logger.Logger) *GapDetector {
	return &GapDetector{
		DB:     db,
		Logger: log,
		Now:    time.Now,
	}
}

// -----------------------------------------------------------------------------

// ClassifyGap maps a symbol's latest stored timestamp to its gap state.
// latest == nil means the symbol has no data at all. A gap must be strictly
// larger than maxGapHours to count: an age of exactly the threshold is still
// up to date.
func ClassifyGap(symbol string, latest *time.Time, now time.Time, maxGapHours float64) models.MGapInfo {
	if latest == nil {
		return models.MGapInfo{
			Symbol:          symbol,
			Classification:  models.GapCompleteMissing,
			NeedsBackfill:   true,
			RecommendedDays: models.MaxBackfillDays,
		}
	}

	gapHours := now.Sub(*latest).Hours()
	if gapHours <= maxGapHours {
		return models.MGapInfo{
			Symbol:         symbol,
			Classification: models.GapUpToDate,
			LastTimestamp:  latest,
			GapHours:       gapHours,
		}
	}

	gapDays := gapHours / 24
	recommended := int(math.Ceil(gapDays)) + 1
	if recommended > models.MaxBackfillDays {
		recommended = models.MaxBackfillDays
	}

	return models.MGapInfo{
		Symbol:          symbol,
		Classification:  models.GapDetected,
		LastTimestamp:   latest,
		GapHours:        gapHours,
		NeedsBackfill:   true,
		RecommendedDays: recommended,
	}
}

// -----------------------------------------------------------------------------

// DetectAll scans every tracked symbol and reports which ones need backfill.
func (g *GapDetector) DetectAll(maxGapHours float64) (models.MGapReport, error) {
	now := g.Now().UTC()

	symbols, err := g.DB.ListSymbols()
	if err != nil {
		return models.MGapReport{}, err
	}

	report := models.MGapReport{
		TotalSymbols: len(symbols),
		Gaps:         make(map[string]models.MGapInfo),
		ScannedAt:    now,
	}

	for _, symbol := range symbols {
		ts, ok, err := g.DB.LatestAverageTimestamp(symbol)
		if err != nil {
			return models.MGapReport{}, err
		}

		var latest *time.Time
		if ok {
			latest = &ts
		}

		info := ClassifyGap(symbol, latest, now, maxGapHours)
		if info.NeedsBackfill {
			report.Gaps[symbol] = info
		}
	}

	report.SymbolsWithGaps = len(report.Gaps)
	report.SymbolsUpToDate = report.TotalSymbols - report.SymbolsWithGaps

	g.Logger.Info("Gap detection complete: %d of %d symbols need backfill",
		report.SymbolsWithGaps, report.TotalSymbols)
	return report, nil
}
