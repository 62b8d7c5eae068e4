package models

import (
	"time"

	"github.com/fraud-feature-store/internal/errors"
	"github.com/shopspring/decimal"
)

// CardBINLength is the number of leading card digits that form the BIN
const CardBINLength = 6

// Transaction represents a financial transaction as delivered by the
// ingestion endpoint. Transactions are immutable facts: once ingested they
// are never updated, only aggregated over.
type Transaction struct {
	TransactionID     string          `json:"transaction_id" ch:"transaction_id"`
	UserID            int64           `json:"user_id" ch:"user_id"`
	CardNumber        string          `json:"card_number" ch:"card_number"`
	MerchantID        int64           `json:"merchant_id" ch:"merchant_id"`
	DeviceID          int64           `json:"device_id" ch:"device_id"`
	TransactionDate   time.Time       `json:"transaction_date" ch:"transaction_date"`
	TransactionAmount decimal.Decimal `json:"transaction_amount" ch:"transaction_amount"`
	HasCbk            bool            `json:"has_cbk" ch:"has_cbk"`
}

// CardBIN returns the first six characters of the masked card number,
// used as the card-issuer grouping key.
func (t *Transaction) CardBIN() string {
	if len(t.CardNumber) < CardBINLength {
		return t.CardNumber
	}
	return t.CardNumber[:CardBINLength]
}

// Validate checks the transaction for structural defects. A transaction that
// fails validation is rejected before any aggregate state is touched.
func (t *Transaction) Validate() error {
	if t.TransactionID == "" {
		return errors.NewMalformedTransactionError("transaction_id", "is required")
	}
	if t.UserID <= 0 {
		return errors.NewMalformedTransactionError("user_id", "must be a positive integer")
	}
	if len(t.CardNumber) < CardBINLength {
		return errors.NewMalformedTransactionError("card_number", "must carry at least the 6-digit BIN")
	}
	if t.TransactionDate.IsZero() {
		return errors.NewMalformedTransactionError("transaction_date", "is required")
	}
	if t.TransactionAmount.IsNegative() {
		return errors.NewMalformedTransactionError("transaction_amount", "cannot be negative")
	}
	return nil
}
