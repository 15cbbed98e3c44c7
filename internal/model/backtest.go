package model

import "time"

// BacktestStatus is the lifecycle state of a BacktestJob.
type BacktestStatus string

const (
	BacktestQueued    BacktestStatus = "queued"
	BacktestRunning   BacktestStatus = "running"
	BacktestCompleted BacktestStatus = "completed"
	BacktestFailed    BacktestStatus = "failed"
	BacktestCancelled BacktestStatus = "cancelled"
)

// Granularity is the backtest bar size.
type Granularity string

const (
	GranularityDaily Granularity = "daily"
	Granularity5Min  Granularity = "5m"
)

// Interpolation governs how per-date ETF holdings are reconstructed between
// quarterly disclosure snapshots.
type Interpolation string

const (
	InterpolationLinear Interpolation = "linear"
	InterpolationStep   Interpolation = "step"
)

// BacktestConfig is the input to a backtest run.
type BacktestConfig struct {
	StartDate     time.Time     `json:"start_date"`
	EndDate       time.Time     `json:"end_date"`
	Granularity   Granularity   `json:"granularity"`
	EngineConfig  EngineConfig  `json:"engine_config"`
	Securities    []string      `json:"securities,omitempty"`
	Interpolation Interpolation `json:"interpolation"`
}

// PerDateCount is one element of the statistics.per_date_counts series.
type PerDateCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// BacktestStatistics summarizes a completed backtest.
type BacktestStatistics struct {
	TotalSignals          int            `json:"total_signals"`
	HighConfidenceCount   int            `json:"high_confidence_count"`
	MediumConfidenceCount int            `json:"medium_confidence_count"`
	LowConfidenceCount    int            `json:"low_confidence_count"`
	PerDateCounts         []PerDateCount `json:"per_date_counts"`
}

// BacktestResult is the final, persisted outcome of a completed job.
type BacktestResult struct {
	Statistics BacktestStatistics `json:"statistics"`
	Signals    []TradingSignal    `json:"signals"`
	ConfigEcho BacktestConfig     `json:"config_echo"`
}

// BacktestJob tracks an async backtest's lifecycle.
type BacktestJob struct {
	JobID      string          `json:"job_id"`
	Status     BacktestStatus  `json:"status"`
	Progress   float64         `json:"progress"`
	Message    string          `json:"message,omitempty"`
	Config     BacktestConfig  `json:"config"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	Result     *BacktestResult `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// BacktestJobFilterParams narrows a job listing.
type BacktestJobFilterParams struct {
	Limit  int
	Offset int
	Status BacktestStatus
}
