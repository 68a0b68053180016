package domain

import "time"

// EvaluationStatus is reported to the admin surface.
type EvaluationStatus struct {
	IsRunning             bool       `json:"is_running"`
	ActiveConstraintCount int        `json:"active_constraint_count"`
	LastRunAt             *time.Time `json:"last_run_at,omitempty"`
	LastRunEvents         int        `json:"last_run_events"`
	LastRunTrades         int        `json:"last_run_trades"`
}

// EvaluationSummary describes one evaluation tick.
type EvaluationSummary struct {
	Skipped       bool          `json:"skipped"`
	Constraints   int           `json:"constraints"`
	Symbols       int           `json:"symbols"`
	Events        int           `json:"events"`
	Trades        int           `json:"trades"`
	SkippedTrades int           `json:"skipped_trades"`
	Failures      int           `json:"failures"`
	Duration      time.Duration `json:"duration"`
}

// RefreshSummary describes one bulk price refresh.
type RefreshSummary struct {
	Positions int           `json:"positions"`
	Symbols   int           `json:"symbols"`
	Updated   int           `json:"updated"`
	Missing   []string      `json:"missing,omitempty"`
	Duration  time.Duration `json:"duration"`
}
