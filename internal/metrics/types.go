// internal/metrics/types.go
package metrics

import "time"

// InferenceRecord describes one successful chat call. Records are appended and never mutated.
type InferenceRecord struct {
	Timestamp       time.Time `json:"timestamp"`
	Question        string    `json:"question"`
	ResponseLength  int       `json:"response_length"`
	LatencyMs       float64   `json:"latency_ms"`
	TokensGenerated int       `json:"tokens_generated"`
}

// ModelMetrics is the single mutable aggregate for the served model.
// TotalInferences counts successful chat calls only; Errors is tracked separately.
type ModelMetrics struct {
	ModelName       string  `json:"model_name"`
	AdapterPath     string  `json:"adapter_path"`
	LoadTimeSeconds float64 `json:"load_time_s"`
	TotalInferences int64   `json:"total_inferences"`
	AvgLatencyMs    float64 `json:"avg_latency_ms"`
	Errors          int64   `json:"errors"`
}

// Stats holds values derived from the full inference history.
type Stats struct {
	TotalRequests     int64   `json:"total_requests"`
	ErrorRate         float64 `json:"error_rate"`
	AvgLatencyMs      float64 `json:"avg_latency_ms"`
	MinLatencyMs      float64 `json:"min_latency_ms"`
	MaxLatencyMs      float64 `json:"max_latency_ms"`
	AvgResponseLength float64 `json:"avg_response_length"`
}

// Summary is the snapshot returned by Tracker.Summary and persisted by Tracker.Save.
type Summary struct {
	Model            ModelMetrics      `json:"model"`
	RecentInferences []InferenceRecord `json:"recent_inferences"`
	Stats            Stats             `json:"stats"`
}

// RunningStat holds the necessary values for online calculation of mean, variance, and stddev.
type RunningStat struct {
	Count int64   `json:"-"`
	Mean  float64 `json:"mean"`
	M2    float64 `json:"-"` // Sum of squares of differences from the current mean
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}
