package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fraud-feature-store/internal/models"
)

// SnapshotRepository stores the latest feature vector per user in Postgres.
// The vector itself lives in a JSONB column; the indexed columns exist so the
// upsert can refuse to replace a newer snapshot with an older one.
type SnapshotRepository struct {
	pool *pgxpool.Pool
}

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(pool *pgxpool.Pool) *SnapshotRepository {
	return &SnapshotRepository{
		pool: pool,
	}
}

// Upsert stores a user's latest feature vector. A row already holding a
// strictly newer transaction_date is left untouched; an equal instant is
// overwritten so the later-processed transaction wins.
func (r *SnapshotRepository) Upsert(ctx context.Context, vector *models.FeatureVector) error {
	featuresJSON, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("failed to marshal feature vector: %w", err)
	}

	query := `
		INSERT INTO feature_snapshots (
			user_id,
			transaction_id,
			transaction_date,
			features,
			updated_at
		) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id)
		DO UPDATE SET
			transaction_id = EXCLUDED.transaction_id,
			transaction_date = EXCLUDED.transaction_date,
			features = EXCLUDED.features,
			updated_at = EXCLUDED.updated_at
		WHERE feature_snapshots.transaction_date <= EXCLUDED.transaction_date
	`

	_, err = r.pool.Exec(
		ctx,
		query,
		vector.UserID,
		vector.TransactionID,
		vector.TransactionDate,
		featuresJSON,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert feature snapshot: %w", err)
	}

	return nil
}

// GetByUser retrieves a user's latest feature vector, or nil when the user
// has never transacted
func (r *SnapshotRepository) GetByUser(ctx context.Context, userID int64) (*models.FeatureVector, error) {
	query := `
		SELECT features
		FROM feature_snapshots
		WHERE user_id = $1
	`

	var featuresJSON []byte
	err := r.pool.QueryRow(ctx, query, userID).Scan(&featuresJSON)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query feature snapshot: %w", err)
	}

	var vector models.FeatureVector
	if err := json.Unmarshal(featuresJSON, &vector); err != nil {
		return nil, fmt.Errorf("failed to unmarshal feature vector: %w", err)
	}

	return &vector, nil
}

// GetAll retrieves every stored snapshot, most recently updated first
func (r *SnapshotRepository) GetAll(ctx context.Context, limit int) ([]*models.FeatureVector, error) {
	query := `
		SELECT features
		FROM feature_snapshots
		ORDER BY updated_at DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query feature snapshots: %w", err)
	}
	defer rows.Close()

	var vectors []*models.FeatureVector
	for rows.Next() {
		var featuresJSON []byte
		if err := rows.Scan(&featuresJSON); err != nil {
			return nil, fmt.Errorf("failed to scan feature snapshot: %w", err)
		}

		var vector models.FeatureVector
		if err := json.Unmarshal(featuresJSON, &vector); err != nil {
			return nil, fmt.Errorf("failed to unmarshal feature vector: %w", err)
		}
		vectors = append(vectors, &vector)
	}

	return vectors, rows.Err()
}

// Delete removes a user's snapshot
func (r *SnapshotRepository) Delete(ctx context.Context, userID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM feature_snapshots WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete feature snapshot: %w", err)
	}
	return nil
}
