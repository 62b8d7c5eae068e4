package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fraud-feature-store/internal/models"
)

// setupTestFeatureCache creates a FeatureCache backed by miniredis.
func setupTestFeatureCache(t *testing.T, ttl time.Duration) (*FeatureCache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	return NewFeatureCache(NewRedisCacheWithClient(client), ttl), mr
}

func testVector(userID int64) *models.FeatureVector {
	return &models.FeatureVector{
		TransactionID:          "txn-1",
		UserID:                 userID,
		TransactionDate:        time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC),
		TxnsByUserLast1h:       2,
		TxnsByUserLast7d:       5,
		NumCbk7dPercent:        0.25,
		CbkProbabilityHour:     0.1,
		AvgTransactionAmount7d: decimal.NewFromInt(120),
		DistinctCards2Weeks:    1,
		AvgTxnsByUser1h:        1.5,
	}
}

func TestFeatureCacheSetGet(t *testing.T) {
	cache, _ := setupTestFeatureCache(t, time.Minute)
	ctx := context.Background()

	vector := testVector(42)
	require.NoError(t, cache.Set(ctx, vector))

	got, found, err := cache.Get(ctx, 42)
	require.NoError(t, err)
	require.True(t, found)

	assert.Equal(t, vector.TransactionID, got.TransactionID)
	assert.Equal(t, vector.TxnsByUserLast7d, got.TxnsByUserLast7d)
	assert.Equal(t, vector.NumCbk7dPercent, got.NumCbk7dPercent)
	assert.True(t, vector.AvgTransactionAmount7d.Equal(got.AvgTransactionAmount7d))
	assert.True(t, vector.TransactionDate.Equal(got.TransactionDate))
}

func TestFeatureCacheMiss(t *testing.T) {
	cache, _ := setupTestFeatureCache(t, time.Minute)

	got, found, err := cache.Get(context.Background(), 404)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, got)
}

func TestFeatureCacheExpiry(t *testing.T) {
	cache, mr := setupTestFeatureCache(t, 30*time.Second)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, testVector(7)))

	mr.FastForward(31 * time.Second)

	_, found, err := cache.Get(ctx, 7)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestFeatureCacheInvalidate(t *testing.T) {
	cache, _ := setupTestFeatureCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, testVector(9)))
	require.NoError(t, cache.Invalidate(ctx, 9))

	_, found, err := cache.Get(ctx, 9)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestFeatureKey(t *testing.T) {
	cache, _ := setupTestFeatureCache(t, time.Minute)
	assert.Equal(t, "features:42", cache.FeatureKey(42))
}
