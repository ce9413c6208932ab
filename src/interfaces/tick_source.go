package interfaces

import "coin-observer/src/models"

// -----------------------------------------------------------------------------
// ITickSource interface for fetching ticker data from one exchange.
// -----------------------------------------------------------------------------

type ITickSource interface {

	// Name returns the unique venue identifier (binance, kraken, mexc).
	Name() string

	// FetchTickers retrieves the current 24h ticker snapshot for all USD(T)
	// pairs on the venue. A failure means zero records from this venue for
	// the cycle, never a fatal error for the caller.
	FetchTickers() ([]models.MTicker, error)
}
