package history

import (
	"testing"
	"time"

	"coin-observer/src/models"
)

// -----------------------------------------------------------------------------

func TestClassifyGapThreshold(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// One second past the threshold is a gap.
	over := now.Add(-(2*time.Hour + time.Second))
	info := ClassifyGap("BTC", &over, now, 2)
	if info.Classification != models.GapDetected {
		t.Fatalf("2h00m01s old: classification = %s, want %s", info.Classification, models.GapDetected)
	}
	if !info.NeedsBackfill {
		t.Fatal("2h00m01s old: expected NeedsBackfill")
	}

	// One second under the threshold is fine.
	under := now.Add(-(2*time.Hour - time.Second))
	info = ClassifyGap("BTC", &under, now, 2)
	if info.Classification != models.GapUpToDate {
		t.Fatalf("1h59m59s old: classification = %s, want %s", info.Classification, models.GapUpToDate)
	}
	if info.NeedsBackfill {
		t.Fatal("1h59m59s old: expected no backfill")
	}

	// Exactly the threshold is still up to date.
	exact := now.Add(-2 * time.Hour)
	info = ClassifyGap("BTC", &exact, now, 2)
	if info.Classification != models.GapUpToDate {
		t.Fatalf("exactly 2h old: classification = %s, want %s", info.Classification, models.GapUpToDate)
	}
}

// -----------------------------------------------------------------------------

func TestClassifyGapCompleteMissing(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	info := ClassifyGap("NEW", nil, now, 2)
	if info.Classification != models.GapCompleteMissing {
		t.Fatalf("classification = %s, want %s", info.Classification, models.GapCompleteMissing)
	}
	if !info.NeedsBackfill {
		t.Fatal("expected NeedsBackfill for missing symbol")
	}
	if info.RecommendedDays != models.MaxBackfillDays {
		t.Fatalf("RecommendedDays = %d, want %d", info.RecommendedDays, models.MaxBackfillDays)
	}
}

// -----------------------------------------------------------------------------

func TestClassifyGapRecommendedDays(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// A 3.5 day gap rounds up to 4, plus one day of overlap.
	latest := now.Add(-84 * time.Hour)
	info := ClassifyGap("BTC", &latest, now, 2)
	if info.RecommendedDays != 5 {
		t.Fatalf("RecommendedDays = %d, want 5", info.RecommendedDays)
	}

	// Huge gaps are capped.
	old := now.AddDate(-3, 0, 0)
	info = ClassifyGap("BTC", &old, now, 2)
	if info.RecommendedDays != models.MaxBackfillDays {
		t.Fatalf("RecommendedDays = %d, want cap %d", info.RecommendedDays, models.MaxBackfillDays)
	}
}
