package feature

import "math"

// CbkRatio converts a (chargeback, non-chargeback) count pair into a bounded
// ratio in [0,1):
//
//	ratio = cbk / (cbk + max(nonCbk, 1))
//
// The max(_, 1) floor prevents division by zero when both counts are zero and
// keeps the ratio strictly below 1 when no negative examples exist yet.
// Downstream models are trained on exactly this formula, floor included.
func CbkRatio(cbkCount, nonCbkCount int64) float64 {
	if nonCbkCount < 1 {
		nonCbkCount = 1
	}
	return float64(cbkCount) / float64(cbkCount+nonCbkCount)
}

// Round3 rounds a probability to three decimal places.
func Round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
