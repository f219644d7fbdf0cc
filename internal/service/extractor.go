package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/noah-isme/optimo/internal/models"
	"github.com/noah-isme/optimo/internal/solver"
	appErrors "github.com/noah-isme/optimo/pkg/errors"
	"github.com/noah-isme/optimo/pkg/export"
)

// Output artifact file names written per iteration.
const (
	FileMasterSchedule       = "Master_Schedule.csv"
	FileStudentAssignments   = "Student_Assignments.csv"
	FileTeacherSchedule      = "Teacher_Schedule.csv"
	FileConstraintViolations = "Constraint_Violations.csv"
)

// SolutionExtractor invokes the solver and reads variable values back into
// roster terms. Binary variables are read with a 0.5 rounding threshold.
type SolutionExtractor struct {
	engine solver.Solver
	opts   solver.Options
	csv    *export.CSVExporter
	logger *zap.Logger
}

// NewSolutionExtractor builds an extractor around a solver port.
func NewSolutionExtractor(engine solver.Solver, opts solver.Options, logger *zap.Logger) *SolutionExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SolutionExtractor{
		engine: engine,
		opts:   opts.Normalized(),
		csv:    export.NewCSVExporter(),
		logger: logger,
	}
}

// Solve runs the engine and extracts the incumbent. No-solution terminations
// return the outcome-bearing schedule together with a typed error so the
// caller can distinguish solver failure from an empty result.
func (e *SolutionExtractor) Solve(ctx context.Context, built *BuiltModel) (*models.SolvedSchedule, error) {
	solution, err := e.engine.Solve(ctx, built.Model, e.opts)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code,
			appErrors.ErrInternal.Status, "solver invocation failed")
	}

	schedule := &models.SolvedSchedule{
		Outcome:        outcomeFor(solution.Status),
		SectionPeriods: make(map[string]string),
		Violations:     make(map[string]int),
		Objective:      solution.Objective,
		Runtime:        solution.Runtime,
	}

	switch solution.Status {
	case solver.StatusInfeasible:
		return schedule, appErrors.Clone(appErrors.ErrInfeasible,
			"model reported infeasible despite soft capacity")
	case solver.StatusTimeLimitNoSolution:
		return schedule, appErrors.Clone(appErrors.ErrSolverTimeout,
			"time limit reached without an incumbent")
	case solver.StatusError:
		return schedule, appErrors.Clone(appErrors.ErrSolverNoSolution, "solver terminated abnormally")
	}

	for key, v := range built.Assign {
		if solution.Enabled(v) {
			schedule.Assignments = append(schedule.Assignments, models.Assignment{
				StudentID: key.StudentID,
				SectionID: key.SectionID,
			})
		}
	}
	for key, v := range built.Scheduled {
		if solution.Enabled(v) {
			schedule.SectionPeriods[key.SectionID] = key.Period
		}
	}
	for sectionID, v := range built.Violation {
		if value := solution.Value(v); value > 0.5 {
			schedule.Violations[sectionID] = int(value + 0.5)
		}
	}

	e.logger.Info("solution extracted",
		zap.String("outcome", string(schedule.Outcome)),
		zap.Int("assignments", len(schedule.Assignments)),
		zap.Int("scheduled_sections", len(schedule.SectionPeriods)),
		zap.Int("sections_over_capacity", len(schedule.Violations)),
		zap.Duration("runtime", schedule.Runtime))

	return schedule, nil
}

// WriteArtifacts renders the four schedule CSVs into dir. A schedule without
// a solution still writes every file with correct headers and no rows.
func (e *SolutionExtractor) WriteArtifacts(schedule *models.SolvedSchedule, roster *models.Roster, dir string) error {
	master := export.Dataset{Headers: []string{"Section ID", "Period"}}
	assignments := export.Dataset{Headers: []string{"Student ID", "Section ID"}}
	teacher := export.Dataset{Headers: []string{"Teacher ID", "Section ID", "Period"}}
	violations := export.Dataset{Headers: []string{"Metric", "Count", "Total", "Percentage"}}

	if schedule != nil && schedule.Outcome.HasSolution() {
		for _, section := range roster.Sections {
			period, ok := schedule.SectionPeriods[section.ID]
			if !ok {
				continue
			}
			master.Append(map[string]string{"Section ID": section.ID, "Period": period})
			teacher.Append(map[string]string{
				"Teacher ID": section.TeacherID,
				"Section ID": section.ID,
				"Period":     period,
			})
		}
		for _, assignment := range schedule.Assignments {
			assignments.Append(map[string]string{
				"Student ID": assignment.StudentID,
				"Section ID": assignment.SectionID,
			})
		}

		totalRequests := roster.TotalRequests()
		violations.Append(map[string]string{
			"Metric":     "Missed Requests",
			"Count":      "0",
			"Total":      fmt.Sprintf("%d", totalRequests),
			"Percentage": "0.00%",
		})
		overCapacity := len(schedule.Violations)
		totalOverages := 0
		for _, v := range schedule.Violations {
			totalOverages += v
		}
		pct := "0.00%"
		if len(roster.Sections) > 0 {
			pct = fmt.Sprintf("%.2f%%", float64(overCapacity)/float64(len(roster.Sections))*100)
		}
		violations.Append(map[string]string{
			"Metric":     "Sections Over Capacity",
			"Count":      fmt.Sprintf("%d", overCapacity),
			"Total":      fmt.Sprintf("%d", totalOverages),
			"Percentage": pct,
		})
		violations.Append(map[string]string{
			"Metric":     "Overall Satisfaction",
			"Count":      fmt.Sprintf("%d", totalRequests),
			"Total":      fmt.Sprintf("%d", totalRequests),
			"Percentage": "100.00%",
		})
	}

	files := map[string]export.Dataset{
		FileMasterSchedule:       master,
		FileStudentAssignments:   assignments,
		FileTeacherSchedule:      teacher,
		FileConstraintViolations: violations,
	}
	for name, data := range files {
		content, err := e.csv.Render(data)
		if err != nil {
			return fmt.Errorf("render %s: %w", name, err)
		}
		if err := os.WriteFile(filepath.Join(dir, name), content, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return nil
}

func outcomeFor(status solver.Status) models.SolveOutcome {
	switch status {
	case solver.StatusOptimal:
		return models.SolveOptimal
	case solver.StatusTimeLimitWithSolution:
		return models.SolveTimeLimitSolution
	case solver.StatusTimeLimitNoSolution:
		return models.SolveTimeLimitNoSolution
	case solver.StatusSolutionLimit:
		return models.SolveSolutionLimit
	case solver.StatusInfeasible:
		return models.SolveInfeasible
	default:
		return models.SolveError
	}
}
