// Package types provides common type definitions for the fraud feature store.
package types

// Recommendation represents the outcome of a transaction evaluation
type Recommendation string

const (
	// RecommendationApprove indicates the transaction should be accepted
	RecommendationApprove Recommendation = "approve"
	// RecommendationDeny indicates the transaction should be rejected
	RecommendationDeny Recommendation = "deny"
)

// LifetimeWindowMode selects how the "lifetime" aggregation window is bounded
type LifetimeWindowMode string

const (
	// LifetimeModeLegacy bounds the lifetime window at 7 days, the same
	// bound the 7d window carries
	LifetimeModeLegacy LifetimeWindowMode = "legacy"
	// LifetimeModeUnbounded aggregates from epoch up to the reference instant
	LifetimeModeUnbounded LifetimeWindowMode = "unbounded"
)

// IngestMode represents how transactions are delivered to the pipeline
type IngestMode string

const (
	// IngestModeStream processes transactions one at a time as they arrive
	IngestModeStream IngestMode = "stream"
	// IngestModeBatch sorts a full collection chronologically before replay
	IngestModeBatch IngestMode = "batch"
)

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
