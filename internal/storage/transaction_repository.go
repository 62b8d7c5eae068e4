package storage

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/fraud-feature-store/internal/models"
)

// TransactionRepository persists the raw transaction log in ClickHouse. The
// log is the source of truth for replay: the backfill binary reads it back in
// chronological order to rebuild the in-memory feature stores.
type TransactionRepository struct {
	db *ClickHouseDB
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *ClickHouseDB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

const transactionColumns = `
	transaction_id, user_id, card_number, merchant_id, device_id,
	transaction_date, transaction_amount, has_cbk
`

// Insert inserts a single transaction
func (r *TransactionRepository) Insert(ctx context.Context, txn *models.Transaction) error {
	if err := txn.Validate(); err != nil {
		return err
	}

	query := fmt.Sprintf(`INSERT INTO transactions (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, transactionColumns)

	err := r.db.Conn().Exec(ctx, query,
		txn.TransactionID,
		txn.UserID,
		txn.CardNumber,
		txn.MerchantID,
		txn.DeviceID,
		txn.TransactionDate,
		// Amounts travel as strings so the decimal survives unrounded.
		txn.TransactionAmount.String(),
		txn.HasCbk,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}

	return nil
}

// BatchInsert inserts multiple transactions in a batch
func (r *TransactionRepository) BatchInsert(ctx context.Context, transactions []*models.Transaction) error {
	if len(transactions) == 0 {
		return nil
	}

	batch, err := r.db.Conn().PrepareBatch(ctx, fmt.Sprintf(`INSERT INTO transactions (%s)`, transactionColumns))
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, txn := range transactions {
		if err := txn.Validate(); err != nil {
			return fmt.Errorf("invalid transaction %s: %w", txn.TransactionID, err)
		}

		err = batch.Append(
			txn.TransactionID,
			txn.UserID,
			txn.CardNumber,
			txn.MerchantID,
			txn.DeviceID,
			txn.TransactionDate,
			txn.TransactionAmount.String(),
			txn.HasCbk,
		)
		if err != nil {
			return fmt.Errorf("failed to append transaction %s to batch: %w", txn.TransactionID, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	return nil
}

// GetByID retrieves a transaction by its identifier
func (r *TransactionRepository) GetByID(ctx context.Context, transactionID string) (*models.Transaction, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM transactions
		WHERE transaction_id = ?
		LIMIT 1
	`, transactionColumns)

	rows, err := r.db.Conn().Query(ctx, query, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transaction: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, nil
	}
	return scanTransaction(rows.Scan)
}

// GetByUser retrieves a user's transactions in chronological order
func (r *TransactionRepository) GetByUser(ctx context.Context, userID int64, limit int) ([]*models.Transaction, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM transactions
		WHERE user_id = ?
		ORDER BY transaction_date ASC
		LIMIT ?
	`, transactionColumns)

	rows, err := r.db.Conn().Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*models.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows.Scan)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, txn)
	}
	return transactions, rows.Err()
}

// StreamAll feeds every stored transaction to fn in chronological order.
// Used by the backfill replay; fn returning an error aborts the stream.
func (r *TransactionRepository) StreamAll(ctx context.Context, fn func(*models.Transaction) error) error {
	query := fmt.Sprintf(`
		SELECT %s
		FROM transactions
		ORDER BY transaction_date ASC, transaction_id ASC
	`, transactionColumns)

	rows, err := r.db.Conn().Query(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		txn, err := scanTransaction(rows.Scan)
		if err != nil {
			return err
		}
		if err := fn(txn); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Count returns the number of stored transactions
func (r *TransactionRepository) Count(ctx context.Context) (uint64, error) {
	var count uint64
	if err := r.db.Conn().QueryRow(ctx, `SELECT count() FROM transactions`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

func scanTransaction(scan func(dest ...interface{}) error) (*models.Transaction, error) {
	var txn models.Transaction
	var amount string

	err := scan(
		&txn.TransactionID,
		&txn.UserID,
		&txn.CardNumber,
		&txn.MerchantID,
		&txn.DeviceID,
		&txn.TransactionDate,
		&amount,
		&txn.HasCbk,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}

	txn.TransactionAmount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("failed to parse transaction amount %q: %w", amount, err)
	}
	return &txn, nil
}
