package syncer

import "time"

// Run status values. A run is created as started, mutated as each resource
// completes, and finalized with one of the terminal aggregate statuses.
const (
	StatusStarted        = "started"
	StatusInProgress     = "in_progress"
	StatusSuccess        = "success"
	StatusPartialSuccess = "partial_success"
	StatusFailed         = "failed"
	StatusError          = "error"
)

// ResourceResult is the outcome of one resource's sync within a run.
type ResourceResult struct {
	Success bool   `json:"success"`
	Count   int    `json:"count"`
	Error   string `json:"error,omitempty"`
}

// RunResult is the outcome of one orchestrator execution.
type RunResult struct {
	RunID       string                    `json:"run_id"`
	Status      string                    `json:"status"`
	StartedAt   time.Time                 `json:"started_at"`
	CompletedAt time.Time                 `json:"completed_at"`
	Resources   map[string]ResourceResult `json:"resources"`
}
