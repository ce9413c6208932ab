package models

import "time"

// -----------------------------------------------------------------------------
// Scheduler status
// -----------------------------------------------------------------------------

const (
	SchedulerStopped = "STOPPED"
	SchedulerRunning = "RUNNING"
	SchedulerPaused  = "PAUSED"
)

// MJobStatus describes one scheduled job.
type MJobStatus struct {
	Name      string    `json:"name"`
	Interval  string    `json:"interval"`
	LastRun   time.Time `json:"last_run"`
	NextRun   time.Time `json:"next_run"`
	Running   bool      `json:"running"`
	LastError string    `json:"last_error,omitempty"`
}

// MSchedulerStatus is the full scheduler state snapshot.
type MSchedulerStatus struct {
	State string       `json:"state"`
	Jobs  []MJobStatus `json:"jobs"`
}

// -----------------------------------------------------------------------------
// Price update cycle result
// -----------------------------------------------------------------------------

// MUpdateResult counts the work done by one price-update cycle.
type MUpdateResult struct {
	RawStored    int `json:"raw_stored"`
	CoinsUpdated int `json:"coins_updated"`
	RanksChanged int `json:"ranks_changed"`
}

// -----------------------------------------------------------------------------
// Websocket broadcast payload
// -----------------------------------------------------------------------------

// MLatestData is the snapshot pushed to websocket clients after each
// price-update cycle.
type MLatestData struct {
	Type      string               `json:"type"` // "INITIAL" or "UPDATE"
	Prices    map[string]MCoin     `json:"prices"`
	Tickers   map[string][]MTicker `json:"tickers"`
	Timestamp int64                `json:"timestamp"`
}
