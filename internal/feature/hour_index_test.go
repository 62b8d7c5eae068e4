package feature

import (
	"testing"
	"time"
)

func TestHourBucketIndexProbability(t *testing.T) {
	idx := NewHourBucketIndex(nil)

	// Three transactions at 10:xx UTC, one of them a chargeback.
	idx.Record(1, ts("2025-09-01T10:00:00Z"), false)
	idx.Record(2, ts("2025-09-01T10:15:00Z"), true)
	idx.Record(1, ts("2025-09-02T10:45:00Z"), false)

	if got := idx.ProbabilityForHour(10); got != 0.333 {
		t.Errorf("ProbabilityForHour(10) = %v, want 0.333", got)
	}
}

func TestHourBucketIndexEmptyBucket(t *testing.T) {
	idx := NewHourBucketIndex(nil)

	// A bucket with no transactions must not blow up on division; it yields
	// zero probability.
	if got := idx.ProbabilityForHour(3); got != 0 {
		t.Errorf("ProbabilityForHour(3) = %v, want 0", got)
	}

	if got := idx.ProbabilityForHour(-1); got != 0 {
		t.Errorf("ProbabilityForHour(-1) = %v, want 0", got)
	}
	if got := idx.ProbabilityForHour(24); got != 0 {
		t.Errorf("ProbabilityForHour(24) = %v, want 0", got)
	}
}

func TestHourBucketIndexStats(t *testing.T) {
	idx := NewHourBucketIndex(nil)

	idx.Record(1, ts("2025-09-01T23:10:00Z"), true)
	idx.Record(2, ts("2025-09-03T23:20:00Z"), false)
	idx.Record(1, ts("2025-09-02T23:30:00Z"), false)

	stats := idx.Stats(23)
	if stats.Total != 3 {
		t.Errorf("Total = %d, want 3", stats.Total)
	}
	if stats.CbkCount != 1 {
		t.Errorf("CbkCount = %d, want 1", stats.CbkCount)
	}
	if stats.DistinctUsers != 2 {
		t.Errorf("DistinctUsers = %d, want 2", stats.DistinctUsers)
	}
	if want := ts("2025-09-03T23:20:00Z"); !stats.Latest.Equal(want) {
		t.Errorf("Latest = %v, want %v", stats.Latest, want)
	}
}

func TestHourOfDayIsUTC(t *testing.T) {
	// The bucket follows the UTC hour regardless of the timestamp's location.
	loc := mustLoadLocation(t, "America/Sao_Paulo")
	at := ts("2025-09-01T10:00:00Z").In(loc)

	if got := HourOfDay(at); got != 10 {
		t.Errorf("HourOfDay = %d, want 10", got)
	}
}

func mustLoadLocation(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Skipf("timezone database unavailable: %v", err)
	}
	return loc
}
