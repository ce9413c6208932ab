package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// -----------------------------------------------------------------------------

// MCandle represents one OHLC candle for an aligned window of a resolution tier.
// Candles are write-once: one row per (symbol, exchange, tier, window_start).
type MCandle struct {
	Symbol      string          `json:"symbol"`
	Exchange    string          `json:"exchange"`
	Open        decimal.Decimal `json:"open"`
	High        decimal.Decimal `json:"high"`
	Low         decimal.Decimal `json:"low"`
	Close       decimal.Decimal `json:"close"`
	VolumeSum   decimal.Decimal `json:"volume_sum"`
	WindowStart time.Time       `json:"window_start"`
}

// -----------------------------------------------------------------------------

// MChartPoint is one entry of a chart query response. Open/High/Low are
// omitted for the raw tier, where only a close price exists per tick.
type MChartPoint struct {
	Timestamp int64    `json:"timestamp"`
	Open      *float64 `json:"open,omitempty"`
	High      *float64 `json:"high,omitempty"`
	Low       *float64 `json:"low,omitempty"`
	Close     float64  `json:"close"`
	Volume    float64  `json:"volume"`
}
