package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// -----------------------------------------------------------------------------

// MTicker is the validated record an exchange adapter emits for one trading
// pair. Adapters normalize the venue payload into this shape at the boundary;
// nothing downstream touches untyped maps.
type MTicker struct {
	Symbol        string          `json:"symbol"`
	Exchange      string          `json:"exchange"`
	Pair          string          `json:"pair"`
	QuoteCurrency string          `json:"quote_currency"`
	Price         decimal.Decimal `json:"price"`
	Volume24h     decimal.Decimal `json:"volume_24h"`
	High24h       float64         `json:"high_24h"`
	Low24h        float64         `json:"low_24h"`
	ChangePct24h  float64         `json:"price_change_pct_24h"`
	Timestamp     time.Time       `json:"timestamp"`
}

// -----------------------------------------------------------------------------

// MAveragePrice is the cross-exchange mean for one symbol at one instant.
type MAveragePrice struct {
	Symbol        string          `json:"symbol"`
	Price         decimal.Decimal `json:"price"`
	Volume24h     decimal.Decimal `json:"volume_24h"`
	High24h       float64         `json:"high_24h"`
	Low24h        float64         `json:"low_24h"`
	ChangePct24h  float64         `json:"price_change_pct_24h"`
	ExchangeCount int             `json:"exchange_count"`
	Timestamp     time.Time       `json:"timestamp"`
}

// -----------------------------------------------------------------------------

// MHistoricalPoint is one point returned by the historical data provider.
type MHistoricalPoint struct {
	Timestamp time.Time       `json:"timestamp"`
	Price     decimal.Decimal `json:"price"`
	Volume    decimal.Decimal `json:"volume"`
}
