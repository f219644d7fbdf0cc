package solver

import (
	"context"
	"runtime"
	"time"
)

// Status is the solver-side termination state of a solve call.
type Status int

const (
	StatusOptimal Status = iota
	StatusTimeLimitWithSolution
	StatusTimeLimitNoSolution
	StatusSolutionLimit
	StatusInfeasible
	StatusError
)

// String returns the wire name of the status.
func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "OPTIMAL"
	case StatusTimeLimitWithSolution:
		return "TIME_LIMIT_WITH_SOLUTION"
	case StatusTimeLimitNoSolution:
		return "TIME_LIMIT_NO_SOLUTION"
	case StatusSolutionLimit:
		return "SOLUTION_LIMIT"
	case StatusInfeasible:
		return "INFEASIBLE"
	default:
		return "ERROR"
	}
}

// HasSolution reports whether at least one incumbent is available.
func (s Status) HasSolution() bool {
	switch s {
	case StatusOptimal, StatusTimeLimitWithSolution, StatusSolutionLimit:
		return true
	}
	return false
}

// Options tune a solve call. Zero values mean engine defaults.
type Options struct {
	// MemoryFraction bounds solver memory as a fraction of system RAM.
	MemoryFraction float64
	// Threads caps worker threads. Zero picks cpu-1 capped at 32.
	Threads int
	// TimeLimit bounds wall-clock search time.
	TimeLimit time.Duration
	// SolutionLimit stops search after this many incumbents.
	SolutionLimit int
	// FocusFeasibility biases search toward finding feasible solutions fast.
	FocusFeasibility bool
}

// Normalized fills unset options with the engine defaults used across runs.
func (o Options) Normalized() Options {
	if o.MemoryFraction <= 0 || o.MemoryFraction > 1 {
		o.MemoryFraction = 0.95
	}
	if o.Threads <= 0 {
		o.Threads = runtime.NumCPU() - 1
	}
	if o.Threads < 1 {
		o.Threads = 1
	}
	if o.Threads > 32 {
		o.Threads = 32
	}
	if o.TimeLimit <= 0 {
		o.TimeLimit = 7 * time.Hour
	}
	if o.SolutionLimit <= 0 {
		o.SolutionLimit = 20
	}
	return o
}

// Solution carries the incumbent found by a solve call. Values index by VarID.
type Solution struct {
	Status    Status
	Objective float64
	Runtime   time.Duration

	values []float64
}

// NewSolution wraps raw variable values returned by an engine bridge.
func NewSolution(status Status, objective float64, values []float64, runtime time.Duration) *Solution {
	return &Solution{Status: status, Objective: objective, Runtime: runtime, values: values}
}

// Value returns the solved value of a variable, or 0 when no incumbent exists.
func (s *Solution) Value(v VarID) float64 {
	if s == nil || int(v) >= len(s.values) {
		return 0
	}
	return s.values[v]
}

// Enabled reads a binary variable with the usual integrality tolerance.
func (s *Solution) Enabled(v VarID) bool {
	return s.Value(v) > 0.5
}

// Solver is the port to a mixed-integer engine. Implementations must respect
// ctx cancellation and return the best incumbent found so far when interrupted.
type Solver interface {
	Solve(ctx context.Context, m *Model, opts Options) (*Solution, error)
}
