package feature

import (
	"github.com/fraud-feature-store/internal/models"
	"github.com/shopspring/decimal"
)

// FeatureAssembler combines window aggregates, chargeback ratios, the
// hour-of-day probability and the auxiliary indices into one feature vector.
// Assembly is a pure read over the current store state; the pipeline is
// responsible for recording the transaction into every store first.
type FeatureAssembler struct {
	aggregator *WindowAggregator
	hours      *HourBucketIndex
	cards      *CardUsageIndex
	hourly     *HourlyMaxTracker
}

// NewFeatureAssembler creates an assembler over the given components
func NewFeatureAssembler(aggregator *WindowAggregator, hours *HourBucketIndex, cards *CardUsageIndex, hourly *HourlyMaxTracker) *FeatureAssembler {
	return &FeatureAssembler{
		aggregator: aggregator,
		hours:      hours,
		cards:      cards,
		hourly:     hourly,
	}
}

// Assemble derives the feature vector for a transaction from the current
// store state. The stores must already contain the transaction itself; its
// own instant is excluded from every window by the strict reference bound.
func (a *FeatureAssembler) Assemble(txn *models.Transaction) *models.FeatureVector {
	ws := a.aggregator.Aggregate(txn.UserID, txn.CardBIN(), txn.TransactionDate)

	return &models.FeatureVector{
		TransactionID:   txn.TransactionID,
		UserID:          txn.UserID,
		TransactionDate: txn.TransactionDate,

		TxnsByUserLast1h: ws.User1h.Count,
		TxnsByUserLast7d: ws.User7d.Count,

		NumCbk1hPercent:             CbkRatio(ws.User1h.CbkCount, ws.User1h.NonCbkCount),
		NumCbk7dPercent:             CbkRatio(ws.User7d.CbkCount, ws.User7d.NonCbkCount),
		UserCbkCountLifetimePercent: CbkRatio(ws.UserLifetime.CbkCount, ws.UserLifetime.NonCbkCount),
		NumCbkCardBin7dPercent:      CbkRatio(ws.CardBIN7d.CbkCount, ws.CardBIN7d.NonCbkCount),
		NumCbkCardBinTotalPercent:   CbkRatio(ws.CardBINLifetime.CbkCount, ws.CardBINLifetime.NonCbkCount),

		CbkProbabilityHour: a.hours.ProbabilityForHour(HourOfDay(txn.TransactionDate)),

		AvgTransactionAmount7d:       averageAmount(ws.User7d),
		AvgTransactionAmountLifetime: averageAmount(ws.UserLifetime),

		DistinctCards2Weeks: a.cards.DistinctCardsAround(txn.UserID, txn.TransactionDate),
		AvgTxnsByUser1h:     a.hourly.AverageMax(txn.UserID),
	}
}

// averageAmount divides the window's amount sum by its count, zero when the
// window is empty
func averageAmount(agg Aggregate) decimal.Decimal {
	if agg.Count == 0 {
		return decimal.Zero
	}
	return agg.AmountSum.Div(decimal.NewFromInt(agg.Count))
}
