package models

import "time"

// RunStatus tracks the orchestrator state machine.
type RunStatus string

const (
	RunStarted   RunStatus = "RUN_STARTED"
	RunIterating RunStatus = "ITERATING"
	RunConverged RunStatus = "CONVERGED"
	RunExhausted RunStatus = "EXHAUSTED"
	RunStalled   RunStatus = "STALLED"
	RunFailed    RunStatus = "FAILED"
)

// Terminal reports whether the status ends the run.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunConverged, RunExhausted, RunStalled, RunFailed:
		return true
	}
	return false
}

// IterationRecord is the immutable closure of one loop pass.
type IterationRecord struct {
	Index          int                  `json:"iteration" db:"iteration"`
	RunID          string               `json:"run_id" db:"run_id"`
	Score          float64              `json:"score" db:"score"`
	Outcome        SolveOutcome         `json:"solve_outcome" db:"solve_outcome"`
	Degraded       bool                 `json:"degraded" db:"degraded"`
	ActionsApplied int                  `json:"actions_applied" db:"actions_applied"`
	ActionsFailed  int                  `json:"actions_failed" db:"actions_failed"`
	WorkspacePath  string               `json:"workspace_path" db:"workspace_path"`
	StartedAt      time.Time            `json:"started_at" db:"started_at"`
	EndedAt        time.Time            `json:"ended_at" db:"ended_at"`
	Analysis       *UtilizationAnalysis `json:"analysis,omitempty" db:"-"`
}

// RunRecord owns all iteration records of one optimization run.
type RunRecord struct {
	ID              string            `json:"run_id" db:"id"`
	Status          RunStatus         `json:"status" db:"status"`
	StartedAt       time.Time         `json:"started_at" db:"started_at"`
	EndedAt         time.Time         `json:"ended_at" db:"ended_at"`
	BestIteration   int               `json:"best_iteration" db:"best_iteration"`
	BestScore       float64           `json:"best_score" db:"best_score"`
	TotalIterations int               `json:"total_iterations" db:"total_iterations"`
	FinalOutputPath string            `json:"final_output_path" db:"final_output_path"`
	Iterations      []IterationRecord `json:"iterations,omitempty" db:"-"`
}

// RunResult is the value returned by the orchestrator's Run entry point.
type RunResult struct {
	RunID           string            `json:"run_id"`
	Status          RunStatus         `json:"status"`
	BestIteration   int               `json:"best_iteration"`
	BestScore       float64           `json:"best_score"`
	TotalIterations int               `json:"total_iterations"`
	FinalOutputPath string            `json:"final_output_path"`
	Iterations      []IterationRecord `json:"per_iteration_metrics"`
	Summary         string            `json:"summary"`
}
