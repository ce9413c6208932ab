package models

// -----------------------------------------------------------------------------
// Storage tiers
// -----------------------------------------------------------------------------

const (
	TierRaw = "raw"
	Tier5m  = "5m"
	Tier1h  = "1h"
	Tier1d  = "1d"
	Tier1w  = "1w"
)

// CandleTiers lists the aggregated tiers in rollup order (source before target).
var CandleTiers = []string{Tier5m, Tier1h, Tier1d, Tier1w}

// -----------------------------------------------------------------------------

// IsCandleTier reports whether the tier holds OHLC candles (everything but raw).
func IsCandleTier(tier string) bool {
	for _, t := range CandleTiers {
		if t == tier {
			return true
		}
	}
	return false
}
