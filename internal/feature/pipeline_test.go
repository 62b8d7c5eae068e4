package feature

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fraud-feature-store/internal/models"
	"github.com/fraud-feature-store/internal/types"
)

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	return NewPipeline(nil)
}

func txn(id string, userID int64, card string, at time.Time, amount int64, hasCbk bool) *models.Transaction {
	return &models.Transaction{
		TransactionID:     id,
		UserID:            userID,
		CardNumber:        card,
		MerchantID:        1000,
		DeviceID:          2000,
		TransactionDate:   at,
		TransactionAmount: decimal.NewFromInt(amount),
		HasCbk:            hasCbk,
	}
}

func TestIngestFirstTransaction(t *testing.T) {
	p := newTestPipeline(t)

	v, err := p.Ingest(txn("t1", 1, "4111111111111111", ts("2025-09-01T10:00:00Z"), 100, false))
	require.NoError(t, err)

	// The reference transaction is excluded from its own windows, so a
	// user's first transaction sees empty windows everywhere.
	assert.Equal(t, int64(0), v.TxnsByUserLast1h)
	assert.Equal(t, int64(0), v.TxnsByUserLast7d)
	assert.Equal(t, 0.0, v.NumCbk1hPercent)
	assert.Equal(t, 0.0, v.NumCbk7dPercent)
	assert.Equal(t, 0.0, v.UserCbkCountLifetimePercent)
	assert.Equal(t, 0.0, v.NumCbkCardBin7dPercent)
	assert.Equal(t, 0.0, v.NumCbkCardBinTotalPercent)
	assert.True(t, v.AvgTransactionAmount7d.IsZero())
	assert.True(t, v.AvgTransactionAmountLifetime.IsZero())

	// The transaction's own card and hour are recorded before assembly.
	assert.Equal(t, int64(1), v.DistinctCards2Weeks)
	assert.Equal(t, 0.0, v.AvgTxnsByUser1h)
	assert.Equal(t, 0.0, v.CbkProbabilityHour)
}

func TestIngestScenarioUserSix(t *testing.T) {
	p := newTestPipeline(t)
	card := "4111111111111111"

	_, err := p.Ingest(txn("t1", 6, card, ts("2025-09-01T10:00:00Z"), 100, false))
	require.NoError(t, err)

	v2, err := p.Ingest(txn("t2", 6, card, ts("2025-09-01T10:30:00Z"), 50, true))
	require.NoError(t, err)

	// Only the prior non-chargeback transaction is in the 1h window; the
	// transaction itself is excluded.
	assert.Equal(t, int64(1), v2.TxnsByUserLast1h)
	assert.Equal(t, 0.0, v2.NumCbk1hPercent)
	assert.True(t, v2.AvgTransactionAmount7d.Equal(decimal.NewFromInt(100)))
	// Hour bucket 10 now holds two transactions, one charged back.
	assert.Equal(t, 0.5, v2.CbkProbabilityHour)

	v3, err := p.Ingest(txn("t3", 6, card, ts("2025-09-08T10:00:01Z"), 200, false))
	require.NoError(t, err)

	// t1 sits exactly one second past the 7-day lower bound and is excluded
	// by the strict boundary; only the chargeback at 10:30 remains, and the
	// ratio floor keeps the result at 1/(1+1).
	assert.Equal(t, int64(1), v3.TxnsByUserLast7d)
	assert.Equal(t, 0.5, v3.NumCbk7dPercent)
	assert.Equal(t, int64(0), v3.TxnsByUserLast1h)
}

func TestIngestSevenDayWindowInclusion(t *testing.T) {
	p := newTestPipeline(t)
	card := "4111111111111111"

	_, err := p.Ingest(txn("t1", 6, card, ts("2025-09-01T10:00:00Z"), 100, false))
	require.NoError(t, err)
	_, err = p.Ingest(txn("t2", 6, card, ts("2025-09-01T10:30:00Z"), 50, true))
	require.NoError(t, err)

	// A third transaction before the boundary sees both priors.
	v3, err := p.Ingest(txn("t3", 6, card, ts("2025-09-08T09:59:59Z"), 200, false))
	require.NoError(t, err)

	assert.Equal(t, int64(2), v3.TxnsByUserLast7d)
	assert.Equal(t, 0.5, v3.NumCbk7dPercent)
	assert.True(t, v3.AvgTransactionAmount7d.Equal(decimal.NewFromInt(75)))
}

func TestIngestMalformedTransaction(t *testing.T) {
	p := newTestPipeline(t)

	tests := []struct {
		name string
		txn  *models.Transaction
	}{
		{
			name: "nil transaction",
			txn:  nil,
		},
		{
			name: "missing id",
			txn:  txn("", 1, "4111111111111111", ts("2025-09-01T10:00:00Z"), 10, false),
		},
		{
			name: "bad user id",
			txn:  txn("t1", 0, "4111111111111111", ts("2025-09-01T10:00:00Z"), 10, false),
		},
		{
			name: "short card number",
			txn:  txn("t1", 1, "41", ts("2025-09-01T10:00:00Z"), 10, false),
		},
		{
			name: "zero date",
			txn:  txn("t1", 1, "4111111111111111", time.Time{}, 10, false),
		},
		{
			name: "negative amount",
			txn:  txn("t1", 1, "4111111111111111", ts("2025-09-01T10:00:00Z"), -5, false),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Ingest(tt.txn)
			assert.Error(t, err)
		})
	}

	// Rejections must leave no partial state behind.
	_, err := p.GetLatestFeatures(1)
	assert.Error(t, err)
	assert.Equal(t, 0, p.users.Len(UserKey(1)))
}

func TestLatestSnapshotOutOfOrder(t *testing.T) {
	p := newTestPipeline(t)
	card := "4111111111111111"

	v2, err := p.Ingest(txn("t2", 1, card, ts("2025-09-02T10:00:00Z"), 20, false))
	require.NoError(t, err)

	// An older transaction arriving late updates the windows but must not
	// take over the latest snapshot.
	_, err = p.Ingest(txn("t1", 1, card, ts("2025-09-01T10:00:00Z"), 10, false))
	require.NoError(t, err)

	latest, err := p.GetLatestFeatures(1)
	require.NoError(t, err)
	assert.Equal(t, v2.TransactionID, latest.TransactionID)

	// The late arrival still counts for subsequent lookbacks.
	v3, err := p.Ingest(txn("t3", 1, card, ts("2025-09-02T11:00:00Z"), 30, false))
	require.NoError(t, err)
	assert.Equal(t, int64(2), v3.TxnsByUserLast7d)

	latest, err = p.GetLatestFeatures(1)
	require.NoError(t, err)
	assert.Equal(t, "t3", latest.TransactionID)
}

func TestIngestBatchSortsBeforeReplay(t *testing.T) {
	p := newTestPipeline(t)
	card := "4111111111111111"

	txns := []*models.Transaction{
		txn("t3", 1, card, ts("2025-09-03T10:00:00Z"), 30, false),
		txn("t1", 1, card, ts("2025-09-01T10:00:00Z"), 10, false),
		txn("t2", 1, card, ts("2025-09-02T10:00:00Z"), 20, true),
	}

	vectors := p.IngestBatch(txns)
	require.Len(t, vectors, 3)

	// Replay order is chronological regardless of how the batch arrived.
	assert.Equal(t, "t1", vectors[0].TransactionID)
	assert.Equal(t, "t3", vectors[2].TransactionID)

	// t3's window reflects both earlier transactions.
	assert.Equal(t, int64(2), vectors[2].TxnsByUserLast7d)

	latest, err := p.GetLatestFeatures(1)
	require.NoError(t, err)
	assert.Equal(t, "t3", latest.TransactionID)
}

func TestIngestBatchSkipsMalformed(t *testing.T) {
	p := newTestPipeline(t)

	txns := []*models.Transaction{
		txn("t1", 1, "4111111111111111", ts("2025-09-01T10:00:00Z"), 10, false),
		txn("", 1, "4111111111111111", ts("2025-09-01T11:00:00Z"), 10, false),
		txn("t2", 1, "4111111111111111", ts("2025-09-01T12:00:00Z"), 10, false),
	}

	vectors := p.IngestBatch(txns)
	require.Len(t, vectors, 2)
	assert.Equal(t, "t1", vectors[0].TransactionID)
	assert.Equal(t, "t2", vectors[1].TransactionID)
}

func TestDeterministicReplay(t *testing.T) {
	card1 := "4111111111111111"
	card2 := "5500000000000004"

	build := func() []*models.Transaction {
		return []*models.Transaction{
			txn("a1", 1, card1, ts("2025-09-01T10:00:00Z"), 100, false),
			txn("b1", 2, card2, ts("2025-09-01T10:05:00Z"), 40, true),
			txn("a2", 1, card1, ts("2025-09-01T10:10:00Z"), 150, true),
			txn("b2", 2, card2, ts("2025-09-01T10:20:00Z"), 60, false),
			txn("a3", 1, card2, ts("2025-09-05T08:00:00Z"), 300, false),
			txn("b3", 2, card1, ts("2025-09-09T22:30:00Z"), 20, false),
		}
	}

	// Two batches with different presented orders must produce identical
	// vectors for every transaction once replayed.
	first := build()
	second := build()
	for i, j := 0, len(second)-1; i < j; i, j = i+1, j-1 {
		second[i], second[j] = second[j], second[i]
	}

	p1 := NewPipeline(nil)
	p2 := NewPipeline(nil)

	byID := func(vectors []*models.FeatureVector) map[string]*models.FeatureVector {
		m := make(map[string]*models.FeatureVector, len(vectors))
		for _, v := range vectors {
			m[v.TransactionID] = v
		}
		return m
	}

	v1 := byID(p1.IngestBatch(first))
	v2 := byID(p2.IngestBatch(second))

	require.Equal(t, len(v1), len(v2))
	for id, a := range v1 {
		b := v2[id]
		require.NotNil(t, b, "missing vector for %s", id)
		assert.Equal(t, a.TxnsByUserLast1h, b.TxnsByUserLast1h, id)
		assert.Equal(t, a.TxnsByUserLast7d, b.TxnsByUserLast7d, id)
		assert.Equal(t, a.NumCbk1hPercent, b.NumCbk1hPercent, id)
		assert.Equal(t, a.NumCbk7dPercent, b.NumCbk7dPercent, id)
		assert.Equal(t, a.UserCbkCountLifetimePercent, b.UserCbkCountLifetimePercent, id)
		assert.Equal(t, a.NumCbkCardBin7dPercent, b.NumCbkCardBin7dPercent, id)
		assert.Equal(t, a.NumCbkCardBinTotalPercent, b.NumCbkCardBinTotalPercent, id)
		assert.Equal(t, a.CbkProbabilityHour, b.CbkProbabilityHour, id)
		assert.True(t, a.AvgTransactionAmount7d.Equal(b.AvgTransactionAmount7d), id)
		assert.True(t, a.AvgTransactionAmountLifetime.Equal(b.AvgTransactionAmountLifetime), id)
		assert.Equal(t, a.DistinctCards2Weeks, b.DistinctCards2Weeks, id)
		assert.Equal(t, a.AvgTxnsByUser1h, b.AvgTxnsByUser1h, id)
	}
}

func TestLifetimeWindowModes(t *testing.T) {
	card := "4111111111111111"
	old := ts("2025-08-01T10:00:00Z")
	now := ts("2025-09-01T10:00:00Z")

	// legacy mode: the lifetime window carries the 7-day bound, so a
	// chargeback a month ago is invisible to the lifetime ratio.
	legacy := NewPipeline(&PipelineConfig{LifetimeWindowMode: types.LifetimeModeLegacy})
	_, err := legacy.Ingest(txn("t1", 1, card, old, 100, true))
	require.NoError(t, err)
	v, err := legacy.Ingest(txn("t2", 1, card, now, 50, false))
	require.NoError(t, err)
	assert.Equal(t, 0.0, v.UserCbkCountLifetimePercent)

	unbounded := NewPipeline(&PipelineConfig{LifetimeWindowMode: types.LifetimeModeUnbounded})
	_, err = unbounded.Ingest(txn("t1", 1, card, old, 100, true))
	require.NoError(t, err)
	v, err = unbounded.Ingest(txn("t2", 1, card, now, 50, false))
	require.NoError(t, err)
	assert.Equal(t, 0.5, v.UserCbkCountLifetimePercent)
	assert.True(t, v.AvgTransactionAmountLifetime.Equal(decimal.NewFromInt(100)))
}

func TestDistinctCardsAcrossWeeks(t *testing.T) {
	p := newTestPipeline(t)

	_, err := p.Ingest(txn("t1", 1, "4111111111111111", ts("2025-09-01T10:00:00Z"), 10, false))
	require.NoError(t, err)

	v, err := p.Ingest(txn("t2", 1, "5500000000000004", ts("2025-09-08T10:00:00Z"), 10, false))
	require.NoError(t, err)

	assert.Equal(t, int64(2), v.DistinctCards2Weeks)
}

func TestAvgTxnsByUserPerHourBucket(t *testing.T) {
	p := newTestPipeline(t)
	card := "4111111111111111"
	base := ts("2025-09-01T10:00:00Z")

	// Three transactions inside one calendar hour: 1h counts observed are
	// 0, 1, 2 so the bucket max is 2.
	_, err := p.Ingest(txn("t1", 1, card, base, 10, false))
	require.NoError(t, err)
	_, err = p.Ingest(txn("t2", 1, card, base.Add(10*time.Minute), 10, false))
	require.NoError(t, err)
	_, err = p.Ingest(txn("t3", 1, card, base.Add(20*time.Minute), 10, false))
	require.NoError(t, err)

	// A transaction days later opens a second bucket with a 1h count of 0;
	// the feature averages the bucket maxima: (2 + 0) / 2.
	v, err := p.Ingest(txn("t4", 1, card, base.Add(72*time.Hour), 10, false))
	require.NoError(t, err)
	assert.Equal(t, 1.0, v.AvgTxnsByUser1h)
}

func TestGetLatestFeaturesUnknownUser(t *testing.T) {
	p := newTestPipeline(t)

	_, err := p.GetLatestFeatures(404)
	assert.Error(t, err)
}

func TestSnapshots(t *testing.T) {
	p := newTestPipeline(t)

	_, err := p.Ingest(txn("t1", 1, "4111111111111111", ts("2025-09-01T10:00:00Z"), 10, false))
	require.NoError(t, err)
	_, err = p.Ingest(txn("t2", 2, "5500000000000004", ts("2025-09-01T11:00:00Z"), 20, false))
	require.NoError(t, err)
	_, err = p.Ingest(txn("t3", 1, "4111111111111111", ts("2025-09-01T12:00:00Z"), 30, false))
	require.NoError(t, err)

	snaps := p.Snapshots()
	require.Len(t, snaps, 2)

	ids := map[string]bool{}
	for _, s := range snaps {
		ids[s.TransactionID] = true
	}
	assert.True(t, ids["t3"], "user 1 snapshot should be the latest transaction")
	assert.True(t, ids["t2"])
}
