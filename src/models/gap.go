package models

import "time"

// -----------------------------------------------------------------------------
// Gap classification
// -----------------------------------------------------------------------------

const (
	GapUpToDate        = "up_to_date"
	GapDetected        = "gap_detected"
	GapCompleteMissing = "complete_missing"
)

// MaxBackfillDays caps how far back any single backfill reaches.
const MaxBackfillDays = 365

// -----------------------------------------------------------------------------

// MGapInfo is the derived gap state for one symbol. It is computed on demand
// from the raw tier's latest average-row timestamp and never persisted.
type MGapInfo struct {
	Symbol          string     `json:"symbol"`
	Classification  string     `json:"type"`
	LastTimestamp   *time.Time `json:"last_data,omitempty"`
	GapHours        float64    `json:"gap_hours"`
	NeedsBackfill   bool       `json:"needs_backfill"`
	RecommendedDays int        `json:"recommended_days"`
}

// -----------------------------------------------------------------------------

// MGapReport summarizes gap detection across all tracked symbols.
type MGapReport struct {
	TotalSymbols    int                 `json:"total_symbols"`
	SymbolsWithGaps int                 `json:"symbols_with_gaps"`
	SymbolsUpToDate int                 `json:"symbols_up_to_date"`
	Gaps            map[string]MGapInfo `json:"gaps"`
	ScannedAt       time.Time           `json:"scan_timestamp"`
}

// -----------------------------------------------------------------------------

// MBackfillSummary reports the outcome of a bulk backfill operation.
type MBackfillSummary struct {
	Total          int       `json:"total"`
	Processed      int       `json:"processed"`
	Succeeded      int       `json:"succeeded"`
	Failed         int       `json:"failed"`
	PointsInserted int       `json:"points_inserted"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
}
