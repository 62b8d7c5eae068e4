package feature

import (
	"fmt"
	"hash/fnv"
	"sort"
	"sync"

	"github.com/fraud-feature-store/internal/errors"
	"github.com/fraud-feature-store/internal/logging"
	"github.com/fraud-feature-store/internal/models"
	"github.com/fraud-feature-store/internal/types"
)

// userLockShards bounds the per-user lock pool; users hashing to the same
// shard occasionally serialize against each other, which is harmless.
const userLockShards = 256

// Pipeline is the top-level ingestion entry point. It owns every store the
// engine needs, updates them per transaction, assembles the feature vector
// and maintains the latest snapshot per user. Construct one per process (or
// per test) and discard it to reset all state; none of the stores are global.
type Pipeline struct {
	users  *EntityWindowStore
	bins   *EntityWindowStore
	hours  *HourBucketIndex
	cards  *CardUsageIndex
	hourly *HourlyMaxTracker

	assembler *FeatureAssembler
	logger    *logging.Logger

	// per-user striped locks: distinct users may ingest in parallel, one
	// user's stream is strictly serialized
	userLocks [userLockShards]sync.Mutex

	snapMu sync.RWMutex
	latest map[int64]*models.FeatureVector
}

// PipelineConfig configures a feature pipeline
type PipelineConfig struct {
	// LifetimeWindowMode selects the lifetime window bound. Default: legacy.
	LifetimeWindowMode types.LifetimeWindowMode
	// Logger for engine warnings. Default: global logger.
	Logger *logging.Logger
}

// NewPipeline creates a pipeline with empty stores
func NewPipeline(cfg *PipelineConfig) *Pipeline {
	if cfg == nil {
		cfg = &PipelineConfig{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	users := NewEntityWindowStore()
	bins := NewEntityWindowStore()
	hours := NewHourBucketIndex(logger)
	cards := NewCardUsageIndex()
	hourly := NewHourlyMaxTracker()
	aggregator := NewWindowAggregator(users, bins, cfg.LifetimeWindowMode)

	return &Pipeline{
		users:     users,
		bins:      bins,
		hours:     hours,
		cards:     cards,
		hourly:    hourly,
		assembler: NewFeatureAssembler(aggregator, hours, cards, hourly),
		logger:    logger,
		latest:    make(map[int64]*models.FeatureVector),
	}
}

// Ingest validates a transaction, records it into every store, assembles its
// feature vector, and advances the user's latest snapshot if this
// transaction's instant is the newest seen for that user. A malformed
// transaction is rejected before any store is touched.
func (p *Pipeline) Ingest(txn *models.Transaction) (*models.FeatureVector, error) {
	if txn == nil {
		return nil, errors.NewMalformedTransactionError("transaction", "is required")
	}
	if err := txn.Validate(); err != nil {
		return nil, err
	}

	unlock := p.lockUser(txn.UserID)
	defer unlock()

	p.users.Append(UserKey(txn.UserID), txn.TransactionDate, txn.HasCbk, txn.TransactionAmount)
	p.bins.Append(CardBINKey(txn.CardBIN()), txn.TransactionDate, txn.HasCbk, txn.TransactionAmount)
	p.hours.Record(txn.UserID, txn.TransactionDate, txn.HasCbk)
	p.cards.Record(txn.UserID, txn.TransactionDate, txn.CardNumber)

	// The 1h observation feeds the per-hour-bucket maxima and must be
	// recorded before assembly so the vector sees its own bucket.
	count1h := p.users.RangeAggregate(UserKey(txn.UserID), Window(WindowHour, txn.TransactionDate)).Count
	p.hourly.Observe(txn.UserID, txn.TransactionDate, count1h)

	vector := p.assembler.Assemble(txn)
	p.updateLatest(vector)

	return vector, nil
}

// IngestBatch sorts the transactions chronologically (arrival order breaks
// timestamp ties) and replays them through Ingest. Malformed transactions
// are skipped with a warning; valid ones are unaffected. The returned
// vectors follow the replay order.
func (p *Pipeline) IngestBatch(txns []*models.Transaction) []*models.FeatureVector {
	ordered := make([]*models.Transaction, len(txns))
	copy(ordered, txns)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].TransactionDate.Before(ordered[j].TransactionDate)
	})

	vectors := make([]*models.FeatureVector, 0, len(ordered))
	for _, txn := range ordered {
		vector, err := p.Ingest(txn)
		if err != nil {
			p.logger.WithError(err).WithField("transactionId", safeID(txn)).Warn("skipping malformed transaction in batch")
			continue
		}
		vectors = append(vectors, vector)
	}
	return vectors
}

// GetLatestFeatures returns the latest feature vector for a user
func (p *Pipeline) GetLatestFeatures(userID int64) (*models.FeatureVector, error) {
	p.snapMu.RLock()
	defer p.snapMu.RUnlock()

	vector, ok := p.latest[userID]
	if !ok {
		return nil, errors.NewFeaturesNotFoundError(userID)
	}
	return vector, nil
}

// Snapshots returns the latest feature vector of every user
func (p *Pipeline) Snapshots() []*models.FeatureVector {
	p.snapMu.RLock()
	defer p.snapMu.RUnlock()

	vectors := make([]*models.FeatureVector, 0, len(p.latest))
	for _, vector := range p.latest {
		vectors = append(vectors, vector)
	}
	return vectors
}

// HourStats exposes the hour-of-day bucket counters, mainly for diagnostics
func (p *Pipeline) HourStats(hour int) HourStats {
	return p.hours.Stats(hour)
}

// updateLatest replaces the user's snapshot unless an already-held snapshot
// is newer. Equal instants let the later-processed transaction win, matching
// the stable insertion-order tie-break.
func (p *Pipeline) updateLatest(vector *models.FeatureVector) {
	p.snapMu.Lock()
	defer p.snapMu.Unlock()

	cur, ok := p.latest[vector.UserID]
	if ok && vector.TransactionDate.Before(cur.TransactionDate) {
		return
	}
	p.latest[vector.UserID] = vector
}

// lockUser acquires the stripe lock for a user and returns the unlock func
func (p *Pipeline) lockUser(userID int64) func() {
	h := fnv.New32a()
	fmt.Fprintf(h, "%d", userID)
	mu := &p.userLocks[h.Sum32()%userLockShards]
	mu.Lock()
	return mu.Unlock
}

func safeID(txn *models.Transaction) string {
	if txn == nil {
		return ""
	}
	return txn.TransactionID
}
