package aggregation

import (
	"fmt"
	"time"

	"coin-observer/src/models"
)

// -----------------------------------------------------------------------------

// Resolution describes one rollup tier: its window length, the tier it reads
// from, and how far behind the aligned boundary each pass re-scans. Lookbacks
// are at least two full windows so late-arriving source data from the
// previous run is still covered.
type Resolution struct {
	Name     string
	Source   string
	Window   time.Duration
	Lookback time.Duration
}

// -----------------------------------------------------------------------------

// Resolutions in rollup order: each tier sources the one before it.
var Resolutions = []Resolution{
	{Name: models.Tier5m, Source: models.TierRaw, Window: 5 * time.Minute, Lookback: 10 * time.Minute},
	{Name: models.Tier1h, Source: models.Tier5m, Window: time.Hour, Lookback: 2 * time.Hour},
	{Name: models.Tier1d, Source: models.Tier1h, Window: 24 * time.Hour, Lookback: 48 * time.Hour},
	{Name: models.Tier1w, Source: models.Tier1d, Window: 7 * 24 * time.Hour, Lookback: 14 * 24 * time.Hour},
}

// -----------------------------------------------------------------------------

// ResolutionByName looks up a rollup tier by its name.
func ResolutionByName(name string) (Resolution, error) {
	for _, r := range Resolutions {
		if r.Name == name {
			return r, nil
		}
	}
	return Resolution{}, fmt.Errorf("unknown resolution '%s'", name)
}

// -----------------------------------------------------------------------------

// Floor aligns t down to the resolution's window boundary in UTC.
// Day windows align to UTC midnight and week windows to Monday midnight;
// Truncate alone would anchor both to the Unix epoch, which is a Thursday.
func (r Resolution) Floor(t time.Time) time.Time {
	t = t.UTC()

	switch r.Name {
	case models.Tier1d:
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	case models.Tier1w:
		y, m, d := t.Date()
		midnight := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		back := (int(midnight.Weekday()) + 6) % 7 // Monday=0 ... Sunday=6
		return midnight.AddDate(0, 0, -back)
	default:
		return t.Truncate(r.Window)
	}
}
