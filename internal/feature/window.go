// Package feature implements the windowed feature-computation engine. Given a
// chronological stream of transactions it maintains rolling aggregates per
// user, per card-BIN and per hour of day, and derives the feature vectors
// consumed by fraud scoring. Results are identical whether transactions are
// replayed in one batch or ingested incrementally.
package feature

import (
	"fmt"
	"time"
)

// Lookback durations used by the engine.
const (
	WindowHour  = time.Hour
	WindowWeek  = 7 * 24 * time.Hour
	secondsWeek = 7 * 24 * 60 * 60
)

// EntityKey partitions the time series held by an EntityWindowStore.
type EntityKey string

// UserKey returns the entity key for a user's time series
func UserKey(userID int64) EntityKey {
	return EntityKey(fmt.Sprintf("user:%d", userID))
}

// CardBINKey returns the entity key for a card-BIN time series
func CardBINKey(bin string) EntityKey {
	return EntityKey("bin:" + bin)
}

// WindowSpec describes one lookback window. The window covers the open
// interval (Reference-Duration, Reference): events at or before the lower
// bound and at or after the reference instant are excluded, so a transaction
// never falls inside its own window.
type WindowSpec struct {
	// Duration is the lookback length; zero means unbounded (from epoch).
	Duration time.Duration
	// Reference is the exclusive upper bound of the window.
	Reference time.Time
}

// Window builds a bounded window ending strictly before ref
func Window(d time.Duration, ref time.Time) WindowSpec {
	return WindowSpec{Duration: d, Reference: ref}
}

// UnboundedWindow builds a window from epoch up to (excluding) ref
func UnboundedWindow(ref time.Time) WindowSpec {
	return WindowSpec{Reference: ref}
}

// Unbounded reports whether the window has no lower bound
func (w WindowSpec) Unbounded() bool {
	return w.Duration <= 0
}

// Start returns the exclusive lower bound of a bounded window
func (w WindowSpec) Start() time.Time {
	return w.Reference.Add(-w.Duration)
}

// WeekBucket returns the integer week index of t since the Unix epoch,
// used to group card usage for the distinct-card-count feature.
func WeekBucket(t time.Time) int64 {
	sec := t.UTC().Unix()
	bucket := sec / secondsWeek
	if sec < 0 && sec%secondsWeek != 0 {
		bucket--
	}
	return bucket
}

// HourBucket returns the integer calendar-hour index of t since the Unix
// epoch, used for the per-hour transaction-rate feature.
func HourBucket(t time.Time) int64 {
	sec := t.UTC().Unix()
	bucket := sec / 3600
	if sec < 0 && sec%3600 != 0 {
		bucket--
	}
	return bucket
}

// HourOfDay returns the UTC hour-of-day bucket (0..23) for t.
func HourOfDay(t time.Time) int {
	return t.UTC().Hour()
}
