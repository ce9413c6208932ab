package aggregation

import (
	"testing"
	"time"

	"coin-observer/src/models"
)

// -----------------------------------------------------------------------------

func TestFloorAlignments(t *testing.T) {
	// Wednesday 2026-01-07 12:07:31 UTC
	ts := time.Date(2026, 1, 7, 12, 7, 31, 0, time.UTC)

	cases := []struct {
		tier string
		want time.Time
	}{
		{models.Tier5m, time.Date(2026, 1, 7, 12, 5, 0, 0, time.UTC)},
		{models.Tier1h, time.Date(2026, 1, 7, 12, 0, 0, 0, time.UTC)},
		{models.Tier1d, time.Date(2026, 1, 7, 0, 0, 0, 0, time.UTC)},
		{models.Tier1w, time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)}, // Monday
	}

	for _, c := range cases {
		res, err := ResolutionByName(c.tier)
		if err != nil {
			t.Fatalf("ResolutionByName(%s): %v", c.tier, err)
		}
		got := res.Floor(ts)
		if !got.Equal(c.want) {
			t.Fatalf("Floor(%s, %s) = %s, want %s", c.tier, ts, got, c.want)
		}
	}
}

// -----------------------------------------------------------------------------

func TestFloorWeekOnMonday(t *testing.T) {
	res, err := ResolutionByName(models.Tier1w)
	if err != nil {
		t.Fatalf("ResolutionByName: %v", err)
	}

	// A Monday at midnight floors to itself.
	monday := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	if got := res.Floor(monday); !got.Equal(monday) {
		t.Fatalf("Floor(monday) = %s, want %s", got, monday)
	}

	// Sunday 23:59 floors back to the previous Monday, not to the epoch grid.
	sunday := time.Date(2026, 1, 11, 23, 59, 59, 0, time.UTC)
	if got := res.Floor(sunday); !got.Equal(monday) {
		t.Fatalf("Floor(sunday) = %s, want %s", got, monday)
	}
}

// -----------------------------------------------------------------------------

func TestResolutionByNameUnknown(t *testing.T) {
	if _, err := ResolutionByName("3m"); err == nil {
		t.Fatal("expected error for unknown resolution")
	}
}

// -----------------------------------------------------------------------------

func TestRollupOrder(t *testing.T) {
	want := []string{models.Tier5m, models.Tier1h, models.Tier1d, models.Tier1w}
	if len(Resolutions) != len(want) {
		t.Fatalf("got %d resolutions, want %d", len(Resolutions), len(want))
	}
	for i, res := range Resolutions {
		if res.Name != want[i] {
			t.Fatalf("resolution %d is %s, want %s", i, res.Name, want[i])
		}
		if res.Lookback < 2*res.Window {
			t.Fatalf("%s lookback %s is less than two windows", res.Name, res.Lookback)
		}
	}
}
