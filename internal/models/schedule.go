package models

import "time"

// Assignment links a student to one section of a requested course.
type Assignment struct {
	StudentID string `json:"student_id"`
	SectionID string `json:"section_id"`
}

// SolveOutcome classifies how the external solver finished.
type SolveOutcome string

const (
	SolveOptimal             SolveOutcome = "OPTIMAL"
	SolveTimeLimitSolution   SolveOutcome = "TIME_LIMIT_WITH_SOLUTION"
	SolveTimeLimitNoSolution SolveOutcome = "TIME_LIMIT_NO_SOLUTION"
	SolveSolutionLimit       SolveOutcome = "SOLUTION_LIMIT"
	SolveInfeasible          SolveOutcome = "INFEASIBLE"
	SolveError               SolveOutcome = "ERROR"
)

// HasSolution reports whether the outcome carries usable variable values.
func (o SolveOutcome) HasSolution() bool {
	switch o {
	case SolveOptimal, SolveTimeLimitSolution, SolveSolutionLimit:
		return true
	}
	return false
}

// SolvedSchedule is the extracted decision output of one solve.
type SolvedSchedule struct {
	Outcome        SolveOutcome      `json:"outcome"`
	SectionPeriods map[string]string `json:"section_periods"`
	Assignments    []Assignment      `json:"assignments"`
	Violations     map[string]int    `json:"violations"`
	Objective      float64           `json:"objective"`
	Runtime        time.Duration     `json:"runtime"`
}

// EnrollmentCounts tallies assignments per section.
func (s *SolvedSchedule) EnrollmentCounts() map[string]int {
	counts := make(map[string]int)
	for _, a := range s.Assignments {
		counts[a.SectionID]++
	}
	return counts
}
