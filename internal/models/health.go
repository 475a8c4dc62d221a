package models

import "time"

// ProviderHealth is a point-in-time snapshot of one provider's rolling
// request statistics as maintained by the health tracker.
type ProviderHealth struct {
	// ConsecutiveErrors counts failures since the last success.
	ConsecutiveErrors int `json:"consecutive_errors"`

	// TotalRequests counts every recorded request outcome.
	TotalRequests int64 `json:"total_requests"`

	// FailedRequests counts recorded failures.
	FailedRequests int64 `json:"failed_requests"`

	// SuccessRate is (total-failed)/total expressed as a percentage.
	SuccessRate float64 `json:"success_rate_pct"`

	// AvgResponseTime is the exponentially blended response time,
	// updated as (old+new)/2 on each success.
	AvgResponseTime time.Duration `json:"avg_response_time"`

	// Healthy clears when ConsecutiveErrors reaches the configured
	// threshold. It is never set back automatically; an operator must
	// re-enable the provider.
	Healthy bool `json:"healthy"`
}

// TimeframeQuality scores one timeframe's fused series. All fields are
// percentages in [0,100], recomputed every fusion cycle and never persisted
// beyond the current cycle.
type TimeframeQuality struct {
	Completeness      float64 `json:"completeness_pct"`
	Consistency       float64 `json:"consistency_pct"`
	Freshness         float64 `json:"freshness_pct"`
	SourceReliability float64 `json:"source_reliability_pct"`
	Overall           float64 `json:"overall_pct"`
}
