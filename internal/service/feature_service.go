// Package service wires the feature engine to its storage backends and
// implements the decision rules on top of assembled feature vectors.
package service

import (
	"context"

	"github.com/fraud-feature-store/internal/errors"
	"github.com/fraud-feature-store/internal/feature"
	"github.com/fraud-feature-store/internal/logging"
	"github.com/fraud-feature-store/internal/models"
	"github.com/fraud-feature-store/internal/retry"
	"github.com/fraud-feature-store/internal/storage"
	"github.com/fraud-feature-store/internal/types"
)

// FeatureService orchestrates transaction ingestion: append to the ClickHouse
// transaction log, run the in-memory feature pipeline, then push the latest
// snapshot to Postgres and the Redis cache. The repositories are optional so
// the service can run purely in memory for backfill replays and tests.
type FeatureService struct {
	pipeline     *feature.Pipeline
	txnRepo      *storage.TransactionRepository
	snapshotRepo *storage.SnapshotRepository
	cache        *storage.FeatureCache
	logger       *logging.Logger
}

// FeatureServiceConfig configures a feature service
type FeatureServiceConfig struct {
	Pipeline     *feature.Pipeline
	TxnRepo      *storage.TransactionRepository
	SnapshotRepo *storage.SnapshotRepository
	Cache        *storage.FeatureCache
	Logger       *logging.Logger
}

// NewFeatureService creates a new feature service
func NewFeatureService(cfg *FeatureServiceConfig) *FeatureService {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &FeatureService{
		pipeline:     cfg.Pipeline,
		txnRepo:      cfg.TxnRepo,
		snapshotRepo: cfg.SnapshotRepo,
		cache:        cfg.Cache,
		logger:       logger,
	}
}

// IngestTransaction validates the transaction, appends it to the durable log,
// runs it through the feature pipeline and publishes the user's new snapshot.
// The log write is retried and fatal on failure; snapshot and cache writes are
// best effort since the pipeline already holds the authoritative state.
func (s *FeatureService) IngestTransaction(ctx context.Context, txn *models.Transaction) (*models.FeatureVector, error) {
	if txn == nil {
		return nil, errors.NewMalformedTransactionError("transaction", "is required")
	}
	if err := txn.Validate(); err != nil {
		return nil, err
	}

	if s.txnRepo != nil {
		err := retry.WithRetry(ctx, func(ctx context.Context, attempt int) error {
			return s.txnRepo.Insert(ctx, txn)
		})
		if err != nil {
			return nil, errors.NewDatabaseError("insert transaction", err)
		}
	}

	vector, err := s.pipeline.Ingest(txn)
	if err != nil {
		return nil, err
	}

	s.publishSnapshot(ctx, vector)

	s.logger.WithFields(map[string]interface{}{
		"transactionId": txn.TransactionID,
		"userId":        txn.UserID,
		"mode":          types.IngestModeStream,
	}).Debug("transaction ingested")

	return vector, nil
}

// IngestBatch appends the batch to the durable log, replays it through the
// pipeline in chronological order and publishes the resulting snapshots.
// Malformed transactions are skipped; the valid remainder is processed.
func (s *FeatureService) IngestBatch(ctx context.Context, txns []*models.Transaction) ([]*models.FeatureVector, error) {
	valid := make([]*models.Transaction, 0, len(txns))
	for _, txn := range txns {
		if txn == nil {
			continue
		}
		if err := txn.Validate(); err != nil {
			s.logger.WithError(err).WithField("transactionId", txn.TransactionID).Warn("skipping malformed transaction in batch")
			continue
		}
		valid = append(valid, txn)
	}

	if s.txnRepo != nil && len(valid) > 0 {
		err := retry.WithRetry(ctx, func(ctx context.Context, attempt int) error {
			return s.txnRepo.BatchInsert(ctx, valid)
		})
		if err != nil {
			return nil, errors.NewDatabaseError("batch insert transactions", err)
		}
	}

	vectors := s.pipeline.IngestBatch(valid)

	// One snapshot write per user, not per transaction.
	latest := make(map[int64]*models.FeatureVector, len(vectors))
	for _, vector := range vectors {
		cur, ok := latest[vector.UserID]
		if !ok || !vector.TransactionDate.Before(cur.TransactionDate) {
			latest[vector.UserID] = vector
		}
	}
	for _, vector := range latest {
		s.publishSnapshot(ctx, vector)
	}

	s.logger.WithFields(map[string]interface{}{
		"processed": len(vectors),
		"skipped":   len(txns) - len(valid),
		"mode":      types.IngestModeBatch,
	}).Info("batch ingested")

	return vectors, nil
}

// GetUserFeatures returns the latest feature vector for a user, consulting
// the cache, then the in-memory pipeline, then the Postgres snapshot.
func (s *FeatureService) GetUserFeatures(ctx context.Context, userID int64) (*models.FeatureVector, error) {
	if userID <= 0 {
		return nil, errors.NewInvalidParameterError("user_id", "must be positive")
	}

	if s.cache != nil {
		vector, found, err := s.cache.Get(ctx, userID)
		if err != nil {
			s.logger.WithError(err).WithField("userId", userID).Warn("feature cache read failed")
		} else if found {
			return vector, nil
		}
	}

	vector, err := s.pipeline.GetLatestFeatures(userID)
	if err == nil {
		if s.cache != nil {
			if cacheErr := s.cache.Set(ctx, vector); cacheErr != nil {
				s.logger.WithError(cacheErr).WithField("userId", userID).Warn("feature cache write failed")
			}
		}
		return vector, nil
	}

	// The pipeline only knows transactions seen since process start; fall
	// back to the durable snapshot for users ingested by a previous run.
	if s.snapshotRepo != nil {
		stored, dbErr := s.snapshotRepo.GetByUser(ctx, userID)
		if dbErr != nil {
			return nil, errors.NewDatabaseError("get feature snapshot", dbErr)
		}
		if stored != nil {
			return stored, nil
		}
	}

	return nil, err
}

// RebuildFromLog replays the entire transaction log through the pipeline.
// Used by the backfill binary to reconstruct state after a restart; the
// stream is already in chronological order.
func (s *FeatureService) RebuildFromLog(ctx context.Context) (int, error) {
	if s.txnRepo == nil {
		return 0, errors.NewInternalError("transaction repository not configured", nil)
	}

	count := 0
	err := s.txnRepo.StreamAll(ctx, func(txn *models.Transaction) error {
		if _, err := s.pipeline.Ingest(txn); err != nil {
			s.logger.WithError(err).WithField("transactionId", txn.TransactionID).Warn("skipping malformed transaction in replay")
			return nil
		}
		count++
		return nil
	})
	if err != nil {
		return count, errors.NewDatabaseError("stream transactions", err)
	}

	return count, nil
}

// PublishSnapshots persists every user's current snapshot. Called after a
// replay, which rebuilds pipeline state without writing per-transaction
// snapshots.
func (s *FeatureService) PublishSnapshots(ctx context.Context) int {
	snapshots := s.pipeline.Snapshots()
	for _, vector := range snapshots {
		s.publishSnapshot(ctx, vector)
	}
	return len(snapshots)
}

// publishSnapshot writes the snapshot to Postgres and the cache, logging
// failures without surfacing them
func (s *FeatureService) publishSnapshot(ctx context.Context, vector *models.FeatureVector) {
	if s.snapshotRepo != nil {
		err := retry.WithRetry(ctx, func(ctx context.Context, attempt int) error {
			return s.snapshotRepo.Upsert(ctx, vector)
		})
		if err != nil {
			s.logger.WithError(err).WithField("userId", vector.UserID).Error("failed to persist feature snapshot")
		}
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, vector); err != nil {
			s.logger.WithError(err).WithField("userId", vector.UserID).Warn("failed to cache feature snapshot")
		}
	}
}
