package feature

import (
	"time"

	"github.com/fraud-feature-store/internal/types"
)

// WindowSet carries the five aggregate tuples computed for one transaction.
type WindowSet struct {
	User1h          Aggregate
	User7d          Aggregate
	UserLifetime    Aggregate
	CardBIN7d       Aggregate
	CardBINLifetime Aggregate
}

// WindowAggregator computes the required windowed aggregates for a single
// incoming transaction against the user and card-BIN stores. It is a pure
// reader: aggregation never mutates store state.
type WindowAggregator struct {
	users        *EntityWindowStore
	bins         *EntityWindowStore
	lifetimeMode types.LifetimeWindowMode
}

// NewWindowAggregator creates an aggregator over the given stores.
// The lifetime mode selects between the legacy 7-day-bounded lifetime window
// and a true unbounded window.
func NewWindowAggregator(users, bins *EntityWindowStore, mode types.LifetimeWindowMode) *WindowAggregator {
	if mode == "" {
		mode = types.LifetimeModeLegacy
	}
	return &WindowAggregator{
		users:        users,
		bins:         bins,
		lifetimeMode: mode,
	}
}

// Aggregate computes the window set for a transaction by the given user and
// card BIN, referenced at the transaction's instant. An entity seen for the
// first time produces all-zero aggregates.
func (a *WindowAggregator) Aggregate(userID int64, cardBIN string, ref time.Time) WindowSet {
	userKey := UserKey(userID)
	binKey := CardBINKey(cardBIN)

	return WindowSet{
		User1h:          a.users.RangeAggregate(userKey, Window(WindowHour, ref)),
		User7d:          a.users.RangeAggregate(userKey, Window(WindowWeek, ref)),
		UserLifetime:    a.users.RangeAggregate(userKey, a.lifetimeWindow(ref)),
		CardBIN7d:       a.bins.RangeAggregate(binKey, Window(WindowWeek, ref)),
		CardBINLifetime: a.bins.RangeAggregate(binKey, a.lifetimeWindow(ref)),
	}
}

// lifetimeWindow returns the window used for "lifetime" aggregates. In legacy
// mode this is the same 7-day bound as the 7d window.
func (a *WindowAggregator) lifetimeWindow(ref time.Time) WindowSpec {
	if a.lifetimeMode == types.LifetimeModeUnbounded {
		return UnboundedWindow(ref)
	}
	return Window(WindowWeek, ref)
}
