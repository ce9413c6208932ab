package interfaces

import (
	"time"

	"coin-observer/src/models"
)

// -----------------------------------------------------------------------------
// IDatabase defines the contract for storage operations.
// -----------------------------------------------------------------------------

type IDatabase interface {

	// Initialize sets up the database schema and tables.
	Initialize() error

	// Close the database connection
	Close() error

	// -----------------------------------------------------------------------------
	// Raw tier
	// -----------------------------------------------------------------------------

	// SavePricePoints inserts raw ticks, silently skipping rows whose
	// (symbol, exchange, timestamp) key already exists. Returns rows inserted.
	SavePricePoints(points []models.MPricePoint) (int, error)

	// HasPricePoint reports whether an exact (symbol, exchange, timestamp) row exists.
	HasPricePoint(symbol, exchange string, ts time.Time) (bool, error)

	// PricePointsRange returns raw ticks in [start, end), ordered by timestamp ascending.
	PricePointsRange(symbol, exchange string, start, end time.Time) ([]models.MPricePoint, error)

	// LatestAverageTimestamp returns the newest average-row timestamp for a symbol.
	// ok is false when the symbol has no average rows at all.
	LatestAverageTimestamp(symbol string) (ts time.Time, ok bool, err error)

	// EarliestAveragePriceSince returns the oldest average row at or after since.
	EarliestAveragePriceSince(symbol string, since time.Time) (p models.MPricePoint, ok bool, err error)

	// -----------------------------------------------------------------------------
	// Candle tiers
	// -----------------------------------------------------------------------------

	// SeriesInRange lists distinct (symbol, exchange) pairs with rows
	// timestamped in [start, end) for the given tier (raw or candle).
	SeriesInRange(tier string, start, end time.Time) ([]models.MSeriesKey, error)

	// CandleExists reports whether a candle row exists for the exact window start.
	CandleExists(tier, symbol, exchange string, windowStart time.Time) (bool, error)

	// CandlesRange returns candles with window_start in [start, end), ascending.
	CandlesRange(tier, symbol, exchange string, start, end time.Time) ([]models.MCandle, error)

	// SaveCandles inserts candles in a single transaction, skipping rows whose
	// key already exists. All-or-nothing on error. Returns rows inserted.
	SaveCandles(tier string, candles []models.MCandle) (int, error)

	// ChartCandles returns the most recent candles for a series, ascending,
	// capped at limit.
	ChartCandles(tier, symbol, exchange string, limit int) ([]models.MCandle, error)

	// ChartPricePoints returns the most recent raw ticks for a series, ascending.
	ChartPricePoints(symbol, exchange string, limit int) ([]models.MPricePoint, error)

	// -----------------------------------------------------------------------------
	// Retention
	// -----------------------------------------------------------------------------

	// DeleteOlderThan removes rows timestamped strictly before cutoff.
	DeleteOlderThan(tier string, cutoff time.Time) (int64, error)

	// -----------------------------------------------------------------------------
	// Tracked symbols / metadata
	// -----------------------------------------------------------------------------

	// UpsertCoins merges current market data into the coins table. Metadata
	// columns (name, gecko id, market cap, supply) are left untouched on update.
	UpsertCoins(coins []models.MCoin) (int, error)

	// SetCoinMetadata fills the catalog metadata for one symbol.
	SetCoinMetadata(meta models.MCoinMetadata) error

	// RecomputeRanks reassigns market-cap ranks (1 = largest cap); coins with
	// no positive market cap get rank 0. Returns rows changed.
	RecomputeRanks() (int, error)

	// ListCoins returns all tracked coins ordered by market-cap rank.
	ListCoins() ([]models.MCoin, error)

	// GetCoin returns one coin; ok is false when untracked.
	GetCoin(symbol string) (c models.MCoin, ok bool, err error)

	// ListSymbols returns all tracked symbols.
	ListSymbols() ([]string, error)

	// CoinsWithoutMetadata returns symbols still lacking catalog metadata.
	CoinsWithoutMetadata() ([]string, error)

	// StaleSymbols returns symbols whose last update is before threshold.
	StaleSymbols(threshold time.Time) ([]string, error)
}
