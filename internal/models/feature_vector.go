package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// FeatureVector is the per-transaction derived feature record consumed by
// downstream fraud scoring. It is created once when the transaction is
// processed and never mutated afterwards.
type FeatureVector struct {
	TransactionID   string    `json:"transaction_id"`
	UserID          int64     `json:"user_id"`
	TransactionDate time.Time `json:"transaction_date"`

	// Windowed counts for the user, reference transaction excluded
	TxnsByUserLast1h int64 `json:"txns_by_user_last_1h"`
	TxnsByUserLast7d int64 `json:"txns_by_user_last_7d"`

	// Chargeback ratios, bounded in [0,1)
	NumCbk1hPercent             float64 `json:"num_cbk_1h_percent"`
	NumCbk7dPercent             float64 `json:"num_cbk_7d_percent"`
	UserCbkCountLifetimePercent float64 `json:"user_cbk_count_lifetime_percent"`
	NumCbkCardBin7dPercent      float64 `json:"num_cbk_card_bin_7d_percent"`
	NumCbkCardBinTotalPercent   float64 `json:"num_cbk_card_bin_total_percent"`

	// Global probability of chargeback for the transaction's hour of day,
	// rounded to 3 decimals
	CbkProbabilityHour float64 `json:"cbk_probability_hour"`

	// Amount averages over the user's windows
	AvgTransactionAmount7d       decimal.Decimal `json:"avg_transaction_amount_7d"`
	AvgTransactionAmountLifetime decimal.Decimal `json:"avg_transaction_amount_lifetime"`

	// Distinct cards used by the user in the surrounding week buckets
	DistinctCards2Weeks int64 `json:"distinct_cards_2_weeks"`

	// Average of the per-hour-bucket maxima of the 1h window count
	AvgTxnsByUser1h float64 `json:"avg_txns_by_user_1h"`
}
