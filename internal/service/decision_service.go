package service

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fraud-feature-store/internal/config"
	"github.com/fraud-feature-store/internal/models"
	"github.com/fraud-feature-store/internal/types"
)

// DecisionService applies the rule set to a transaction and its feature
// vector. Rules are checked in a fixed order and the first match denies;
// thresholds come from configuration.
type DecisionService struct {
	cfg config.DecisionConfig
}

// NewDecisionService creates a new decision service
func NewDecisionService(cfg config.DecisionConfig) *DecisionService {
	return &DecisionService{cfg: cfg}
}

// Evaluate returns an approve/deny recommendation for the transaction given
// its feature vector. Ratio and average guards skip rules whose baseline is
// zero so a user's first transactions are not denied by default.
func (s *DecisionService) Evaluate(txn *models.Transaction, vector *models.FeatureVector) *models.Decision {
	decision := &models.Decision{
		TransactionID:  txn.TransactionID,
		Recommendation: types.RecommendationApprove,
		Reason:         "no rule matched",
		Timestamp:      time.Now().UTC(),
	}

	if vector.UserCbkCountLifetimePercent > 0 {
		return s.deny(decision, fmt.Sprintf("user has chargeback history (lifetime ratio %.3f)", vector.UserCbkCountLifetimePercent))
	}

	if vector.AvgTxnsByUser1h > 0 {
		threshold := s.cfg.VolumeMultiplier * vector.AvgTxnsByUser1h
		if float64(vector.TxnsByUserLast1h) >= threshold {
			return s.deny(decision, fmt.Sprintf("transaction velocity %d exceeds %.1fx hourly baseline %.2f", vector.TxnsByUserLast1h, s.cfg.VolumeMultiplier, vector.AvgTxnsByUser1h))
		}
	}

	if vector.AvgTransactionAmount7d.IsPositive() {
		threshold := vector.AvgTransactionAmount7d.Mul(decimal.NewFromFloat(s.cfg.AmountMultiplier))
		if txn.TransactionAmount.GreaterThanOrEqual(threshold) {
			return s.deny(decision, fmt.Sprintf("amount %s exceeds %.1fx 7-day average %s", txn.TransactionAmount, s.cfg.AmountMultiplier, vector.AvgTransactionAmount7d))
		}
	}

	if vector.DistinctCards2Weeks >= s.cfg.MaxDistinctCards {
		return s.deny(decision, fmt.Sprintf("%d distinct cards used in surrounding weeks", vector.DistinctCards2Weeks))
	}

	if vector.NumCbkCardBin7dPercent >= s.cfg.MaxCardBinCbk7dPct {
		return s.deny(decision, fmt.Sprintf("card BIN 7-day chargeback ratio %.3f over threshold", vector.NumCbkCardBin7dPercent))
	}

	return decision
}

func (s *DecisionService) deny(decision *models.Decision, reason string) *models.Decision {
	decision.Recommendation = types.RecommendationDeny
	decision.Reason = reason
	return decision
}
