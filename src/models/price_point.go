package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExchangeAverage is the sentinel exchange name for cross-exchange mean rows.
const ExchangeAverage = "average"

// -----------------------------------------------------------------------------

// MPricePoint represents one stored raw tick for a symbol on an exchange.
// Rows are immutable once written; uniqueness is (symbol, exchange, timestamp).
type MPricePoint struct {
	Symbol    string          `json:"symbol"`
	Exchange  string          `json:"exchange"`
	Price     decimal.Decimal `json:"price"`
	Volume    decimal.Decimal `json:"volume"`
	Timestamp time.Time       `json:"timestamp"`
}

// -----------------------------------------------------------------------------

// MSeriesKey identifies one (symbol, exchange) series within a tier.
type MSeriesKey struct {
	Symbol   string `json:"symbol"`
	Exchange string `json:"exchange"`
}
