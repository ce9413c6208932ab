package interfaces

import "coin-observer/src/models"

// -----------------------------------------------------------------------------
// IHistoryProvider defines the contract with the external historical-data
// provider and the id-resolution part of the metadata catalog.
// -----------------------------------------------------------------------------

type IHistoryProvider interface {

	// ResolveID maps a local symbol to the provider's identifier.
	// ok is false when the symbol has no mapping (not an error).
	ResolveID(symbol string) (id string, ok bool, err error)

	// FetchMarketChart returns historical points covering the last daysBack days.
	FetchMarketChart(id string, daysBack int) ([]models.MHistoricalPoint, error)

	// FetchMetadata returns descriptive metadata for one provider id.
	FetchMetadata(symbol, id string) (models.MCoinMetadata, error)
}

// -----------------------------------------------------------------------------
// ISchedulerControl is the pause/resume handle the Backfiller holds so bulk
// operations can stop the periodic jobs from competing for the provider's
// rate budget.
// -----------------------------------------------------------------------------

type ISchedulerControl interface {
	Pause()
	Resume()
}
