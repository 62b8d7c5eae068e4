package feature

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Aggregate is the result of a range query over one entity's time series.
type Aggregate struct {
	Count       int64
	CbkCount    int64
	NonCbkCount int64
	AmountSum   decimal.Decimal
}

// event is a single observation in an entity's time series
type event struct {
	at     time.Time
	seq    uint64
	hasCbk bool
	amount decimal.Decimal
}

// series holds one entity's time-ordered events plus running prefix totals,
// so any range aggregate is two binary searches and a subtraction.
// prefix slices have length len(events)+1 with prefix[0] == zero.
type series struct {
	events       []event
	cbkPrefix    []int64
	nonCbkPrefix []int64
	amountPrefix []decimal.Decimal
}

// EntityWindowStore holds, per entity key, an ordered-by-time sequence of
// transaction events supporting O(log n) windowed aggregation. Events may be
// appended out of time order; timestamp ties keep arrival order.
type EntityWindowStore struct {
	mu      sync.RWMutex
	series  map[EntityKey]*series
	nextSeq uint64
}

// NewEntityWindowStore creates an empty store
func NewEntityWindowStore() *EntityWindowStore {
	return &EntityWindowStore{
		series: make(map[EntityKey]*series),
	}
}

// Append inserts an event into the entity's time series, keeping time order.
// An event older than the current tail is placed at its chronological
// position; equal timestamps preserve arrival order.
func (s *EntityWindowStore) Append(key EntityKey, at time.Time, hasCbk bool, amount decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ser, ok := s.series[key]
	if !ok {
		ser = &series{
			cbkPrefix:    []int64{0},
			nonCbkPrefix: []int64{0},
			amountPrefix: []decimal.Decimal{decimal.Zero},
		}
		s.series[key] = ser
	}

	s.nextSeq++
	ev := event{at: at, seq: s.nextSeq, hasCbk: hasCbk, amount: amount}

	// First index strictly after the new event's instant. Equal timestamps
	// sort before it, which keeps insertion order stable.
	idx := sort.Search(len(ser.events), func(i int) bool {
		return ser.events[i].at.After(at)
	})

	ser.events = append(ser.events, event{})
	copy(ser.events[idx+1:], ser.events[idx:])
	ser.events[idx] = ev

	ser.recomputePrefixFrom(idx)
}

// recomputePrefixFrom rebuilds the prefix totals starting at event index idx.
// The in-order ingestion path always appends at the tail, making this O(1).
func (ser *series) recomputePrefixFrom(idx int) {
	n := len(ser.events)

	ser.cbkPrefix = append(ser.cbkPrefix, 0)
	ser.nonCbkPrefix = append(ser.nonCbkPrefix, 0)
	ser.amountPrefix = append(ser.amountPrefix, decimal.Zero)

	for i := idx; i < n; i++ {
		ev := ser.events[i]
		cbk := int64(0)
		nonCbk := int64(1)
		if ev.hasCbk {
			cbk, nonCbk = 1, 0
		}
		ser.cbkPrefix[i+1] = ser.cbkPrefix[i] + cbk
		ser.nonCbkPrefix[i+1] = ser.nonCbkPrefix[i] + nonCbk
		ser.amountPrefix[i+1] = ser.amountPrefix[i].Add(ev.amount)
	}
}

// RangeAggregate returns the event count split by chargeback flag and the
// amount sum over the window. A key that was never appended to yields a zero
// aggregate, not an error. The bounds are strict on both sides: events at or
// before reference-duration and at or after reference are excluded.
func (s *EntityWindowStore) RangeAggregate(key EntityKey, spec WindowSpec) Aggregate {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ser, ok := s.series[key]
	if !ok {
		return Aggregate{AmountSum: decimal.Zero}
	}

	lo := 0
	if !spec.Unbounded() {
		start := spec.Start()
		lo = sort.Search(len(ser.events), func(i int) bool {
			return ser.events[i].at.After(start)
		})
	}
	hi := sort.Search(len(ser.events), func(i int) bool {
		return !ser.events[i].at.Before(spec.Reference)
	})

	if lo >= hi {
		return Aggregate{AmountSum: decimal.Zero}
	}

	cbk := ser.cbkPrefix[hi] - ser.cbkPrefix[lo]
	nonCbk := ser.nonCbkPrefix[hi] - ser.nonCbkPrefix[lo]
	return Aggregate{
		Count:       cbk + nonCbk,
		CbkCount:    cbk,
		NonCbkCount: nonCbk,
		AmountSum:   ser.amountPrefix[hi].Sub(ser.amountPrefix[lo]),
	}
}

// Len returns the number of events held for a key
func (s *EntityWindowStore) Len(key EntityKey) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ser, ok := s.series[key]
	if !ok {
		return 0
	}
	return len(ser.events)
}
