package models

import (
	"time"

	"github.com/fraud-feature-store/internal/types"
)

// Decision is the approve/deny recommendation returned by the evaluation
// endpoint for a single transaction.
type Decision struct {
	TransactionID  string               `json:"transaction_id"`
	Recommendation types.Recommendation `json:"recommendation"`
	Reason         string               `json:"reason"`
	Timestamp      time.Time            `json:"timestamp"`
}
