package feature

import (
	"sync"
	"time"

	"github.com/fraud-feature-store/internal/logging"
)

// hourBucket accumulates unwindowed totals for one hour of day
type hourBucket struct {
	mu       sync.Mutex
	total    int64
	cbkCount int64
	users    map[int64]struct{}
	latest   time.Time
}

// HourBucketIndex maintains, per hour-of-day bucket (0..23, UTC), running
// counters over the entire dataset and the latest transaction instant seen
// for that bucket. It is shared across all entities, so each bucket carries
// its own lock to keep concurrent ingestion from serializing on one mutex.
type HourBucketIndex struct {
	buckets [24]hourBucket
	logger  *logging.Logger
}

// NewHourBucketIndex creates an empty index
func NewHourBucketIndex(logger *logging.Logger) *HourBucketIndex {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	idx := &HourBucketIndex{logger: logger}
	for h := range idx.buckets {
		idx.buckets[h].users = make(map[int64]struct{})
	}
	return idx
}

// Record adds one transaction observation to its hour bucket
func (idx *HourBucketIndex) Record(userID int64, at time.Time, hasCbk bool) {
	b := &idx.buckets[HourOfDay(at)]

	b.mu.Lock()
	defer b.mu.Unlock()

	b.total++
	if hasCbk {
		b.cbkCount++
	}
	b.users[userID] = struct{}{}
	if at.After(b.latest) {
		b.latest = at
	}
}

// ProbabilityForHour returns the chargeback probability for an hour-of-day
// bucket, rounded to three decimals. A bucket with no transactions yields 0
// with a logged warning rather than a division by zero.
func (idx *HourBucketIndex) ProbabilityForHour(hour int) float64 {
	if hour < 0 || hour > 23 {
		return 0
	}
	b := &idx.buckets[hour]

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.total == 0 {
		idx.logger.WithField("hour", hour).Warn("hour bucket has no transactions, returning zero probability")
		return 0
	}
	return Round3(float64(b.cbkCount) / float64(b.total))
}

// HourStats is a read-only snapshot of one hour bucket's counters.
type HourStats struct {
	Total         int64
	CbkCount      int64
	DistinctUsers int64
	Latest        time.Time
}

// Stats returns a snapshot of the bucket counters for an hour of day
func (idx *HourBucketIndex) Stats(hour int) HourStats {
	if hour < 0 || hour > 23 {
		return HourStats{}
	}
	b := &idx.buckets[hour]

	b.mu.Lock()
	defer b.mu.Unlock()

	return HourStats{
		Total:         b.total,
		CbkCount:      b.cbkCount,
		DistinctUsers: int64(len(b.users)),
		Latest:        b.latest,
	}
}
