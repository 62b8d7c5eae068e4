package feature

import (
	"sync"
	"time"
)

// CardUsageIndex maps each user to the set of card numbers seen per week
// bucket. The distinct-card feature is answered by unioning the buckets
// adjacent to the reference week, so no pairwise comparison over the raw
// transactions is needed.
type CardUsageIndex struct {
	mu     sync.RWMutex
	byUser map[int64]map[int64]map[string]struct{}
}

// NewCardUsageIndex creates an empty index
func NewCardUsageIndex() *CardUsageIndex {
	return &CardUsageIndex{
		byUser: make(map[int64]map[int64]map[string]struct{}),
	}
}

// Record notes that the user used the card in the week bucket of at
func (c *CardUsageIndex) Record(userID int64, at time.Time, cardNumber string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	weeks, ok := c.byUser[userID]
	if !ok {
		weeks = make(map[int64]map[string]struct{})
		c.byUser[userID] = weeks
	}

	bucket := WeekBucket(at)
	cards, ok := weeks[bucket]
	if !ok {
		cards = make(map[string]struct{})
		weeks[bucket] = cards
	}
	cards[cardNumber] = struct{}{}
}

// DistinctCardsAround returns the number of distinct cards the user used in
// the week bucket of at and the two neighbouring buckets.
func (c *CardUsageIndex) DistinctCardsAround(userID int64, at time.Time) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	weeks, ok := c.byUser[userID]
	if !ok {
		return 0
	}

	bucket := WeekBucket(at)
	distinct := make(map[string]struct{})
	for w := bucket - 1; w <= bucket+1; w++ {
		for card := range weeks[w] {
			distinct[card] = struct{}{}
		}
	}
	return int64(len(distinct))
}

// HourlyMaxTracker keeps, per (user, calendar-hour bucket), the maximum
// 1h-window transaction count observed within that bucket. The averaged
// feature takes the per-bucket maxima first and the mean across buckets
// second; averaging raw per-transaction counts gives a different number.
type HourlyMaxTracker struct {
	mu     sync.RWMutex
	byUser map[int64]map[int64]int64
}

// NewHourlyMaxTracker creates an empty tracker
func NewHourlyMaxTracker() *HourlyMaxTracker {
	return &HourlyMaxTracker{
		byUser: make(map[int64]map[int64]int64),
	}
}

// Observe records a 1h-window count observation for the user at an instant
func (h *HourlyMaxTracker) Observe(userID int64, at time.Time, count1h int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	buckets, ok := h.byUser[userID]
	if !ok {
		buckets = make(map[int64]int64)
		h.byUser[userID] = buckets
	}

	bucket := HourBucket(at)
	cur, seen := buckets[bucket]
	if !seen || count1h > cur {
		buckets[bucket] = count1h
	}
}

// AverageMax returns the mean of the per-bucket maxima across all distinct
// calendar-hour buckets seen for the user; zero if the user is unknown.
func (h *HourlyMaxTracker) AverageMax(userID int64) float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()

	buckets, ok := h.byUser[userID]
	if !ok || len(buckets) == 0 {
		return 0
	}

	var sum int64
	for _, m := range buckets {
		sum += m
	}
	return float64(sum) / float64(len(buckets))
}
