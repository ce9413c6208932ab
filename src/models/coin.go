package models

import "time"

// -----------------------------------------------------------------------------

// MCoin is the tracked-symbol row: latest aggregated market data plus the
// descriptive metadata filled in by the catalog enrichment.
type MCoin struct {
	Symbol            string    `json:"symbol"`
	Name              string    `json:"name"`
	GeckoID           string    `json:"gecko_id,omitempty"`
	PriceUSD          float64   `json:"price_usd"`
	High24h           float64   `json:"price_24h_high"`
	Low24h            float64   `json:"price_24h_low"`
	Change1h          float64   `json:"price_change_1h"`
	Change24h         float64   `json:"price_change_24h"`
	Change7d          float64   `json:"price_change_7d"`
	Change30d         float64   `json:"price_change_30d"`
	Volume24h         float64   `json:"volume_24h_usd"`
	MarketCap         float64   `json:"market_cap"`
	CirculatingSupply float64   `json:"circulating_supply"`
	MarketCapRank     int       `json:"market_cap_rank"`
	ExchangeCount     int       `json:"exchange_count"`
	LastUpdated       time.Time `json:"last_updated"`
}

// -----------------------------------------------------------------------------

// MCoinMetadata is the catalog lookup result used for enrichment.
type MCoinMetadata struct {
	Symbol            string  `json:"symbol"`
	GeckoID           string  `json:"gecko_id"`
	Name              string  `json:"name"`
	MarketCap         float64 `json:"market_cap"`
	CirculatingSupply float64 `json:"circulating_supply"`
}
