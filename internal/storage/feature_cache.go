package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fraud-feature-store/internal/models"
)

// FeatureCache caches the latest feature vector per user in Redis so the
// read path can skip Postgres on repeated lookups. Entries are written on
// every ingest and expire after a short TTL.
type FeatureCache struct {
	redis *RedisCache
	ttl   time.Duration
}

// NewFeatureCache creates a new feature cache
func NewFeatureCache(redis *RedisCache, ttl time.Duration) *FeatureCache {
	return &FeatureCache{
		redis: redis,
		ttl:   ttl,
	}
}

// FeatureKey builds the cache key for a user's latest vector.
// Format: features:<user_id>
func (c *FeatureCache) FeatureKey(userID int64) string {
	return fmt.Sprintf("features:%d", userID)
}

// Set stores a user's latest feature vector with the configured TTL
func (c *FeatureCache) Set(ctx context.Context, vector *models.FeatureVector) error {
	data, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("failed to marshal feature vector: %w", err)
	}
	return c.redis.Set(ctx, c.FeatureKey(vector.UserID), data, c.ttl)
}

// Get retrieves a user's cached vector. A miss returns (nil, false, nil).
func (c *FeatureCache) Get(ctx context.Context, userID int64) (*models.FeatureVector, bool, error) {
	data, err := c.redis.Get(ctx, c.FeatureKey(userID))
	if err != nil {
		// Key not found is not an error, just a cache miss
		if err.Error() == "redis: nil" {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get from cache: %w", err)
	}

	var vector models.FeatureVector
	if err := json.Unmarshal([]byte(data), &vector); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal cached vector: %w", err)
	}

	return &vector, true, nil
}

// Invalidate removes a user's cached vector
func (c *FeatureCache) Invalidate(ctx context.Context, userID int64) error {
	return c.redis.Del(ctx, c.FeatureKey(userID))
}

// Refresh updates the TTL on a user's cached vector
func (c *FeatureCache) Refresh(ctx context.Context, userID int64) error {
	return c.redis.Expire(ctx, c.FeatureKey(userID), c.ttl)
}

// GetTTL returns the configured TTL for this cache
func (c *FeatureCache) GetTTL() time.Duration {
	return c.ttl
}
