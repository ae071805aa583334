package model

import "time"

// RunStatus represents the current state of a refinement run.
type RunStatus string

const (
	RunStatusQueued     RunStatus = "queued"
	RunStatusValidating RunStatus = "validating"
	RunStatusRefining   RunStatus = "refining"
	RunStatusApproved   RunStatus = "approved"
	RunStatusExhausted  RunStatus = "exhausted"
	RunStatusFailed     RunStatus = "failed"
)

// Terminal reports whether the status is a terminal state.
func (s RunStatus) Terminal() bool {
	return s == RunStatusApproved || s == RunStatusExhausted || s == RunStatusFailed
}

// Run represents a single convergence-loop run over one artifact.
type Run struct {
	ID        string     `json:"id"`
	Ticker    string     `json:"ticker"`
	Status    RunStatus  `json:"status"`
	Result    *RunResult `json:"result,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// RunResult holds the final outcome of a run.
type RunResult struct {
	FinalScore   int               `json:"final_score"`
	Approved     bool              `json:"approved"`
	Iterations   int               `json:"iterations"`
	History      []IterationRecord `json:"history"`
	TotalTokens  int               `json:"total_tokens"`
	TotalCost    float64           `json:"total_cost"`
	SearchCalls  int               `json:"search_calls"`
	ComputeCalls int               `json:"compute_calls"`
	Error        string            `json:"error,omitempty"`
}
