package dto

import "time"

// SubmitRunRequest starts an optimization run over a prepared input directory.
type SubmitRunRequest struct {
	InputDir      string `json:"input_dir" validate:"required"`
	MaxIterations int    `json:"max_iterations,omitempty" validate:"omitempty,min=1,max=50"`
}

// RunSubmitted acknowledges a queued run.
type RunSubmitted struct {
	RunID    string    `json:"run_id"`
	Status   string    `json:"status"`
	Enqueued time.Time `json:"enqueued_at"`
}

// RunStatusResponse reports progress for a run.
type RunStatusResponse struct {
	RunID           string             `json:"run_id"`
	Status          string             `json:"status"`
	BestIteration   int                `json:"best_iteration"`
	BestScore       float64            `json:"best_score"`
	TotalIterations int                `json:"total_iterations"`
	FinalOutputPath string             `json:"final_output_path,omitempty"`
	StartedAt       time.Time          `json:"started_at"`
	EndedAt         *time.Time         `json:"ended_at,omitempty"`
	Iterations      []IterationMetrics `json:"iterations,omitempty"`
}

// IterationMetrics is the per-iteration slice of a status response.
type IterationMetrics struct {
	Iteration      int     `json:"iteration"`
	Score          float64 `json:"score"`
	SolveOutcome   string  `json:"solve_outcome"`
	Degraded       bool    `json:"degraded"`
	ActionsApplied int     `json:"actions_applied"`
	ActionsFailed  int     `json:"actions_failed"`
}
