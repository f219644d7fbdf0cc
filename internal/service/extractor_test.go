package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/optimo/internal/models"
	"github.com/noah-isme/optimo/internal/solver"
	appErrors "github.com/noah-isme/optimo/pkg/errors"
)

var _ solver.Solver = (*stubSolver)(nil)

func TestSolveExtractsIncumbent(t *testing.T) {
	roster := builderRoster()
	b := NewScheduleModelBuilder(12, nil)
	built, err := b.Build(roster, nil)
	require.NoError(t, err)

	values := make([]float64, built.Model.NumVars())
	values[built.Assign[AssignKey{"ST1", "S1"}]] = 1
	values[built.Assign[AssignKey{"ST2", "S2"}]] = 1
	values[built.Scheduled[ScheduleKey{"S1", "R1"}]] = 1
	values[built.Scheduled[ScheduleKey{"S2", "R2"}]] = 1
	values[built.Violation["S1"]] = 2.9999

	engine := &stubSolver{status: solver.StatusOptimal, values: values}
	extractor := NewSolutionExtractor(engine, solver.Options{}, nil)

	schedule, err := extractor.Solve(context.Background(), built)
	require.NoError(t, err)

	assert.Equal(t, models.SolveOptimal, schedule.Outcome)
	assert.Len(t, schedule.Assignments, 2)
	assert.Equal(t, "R1", schedule.SectionPeriods["S1"])
	assert.Equal(t, "R2", schedule.SectionPeriods["S2"])
	assert.Equal(t, 3, schedule.Violations["S1"])
	assert.NotContains(t, schedule.Violations, "S2")
	assert.Equal(t, 2*time.Second, schedule.Runtime)
}

func TestSolveInfeasibleReturnsTypedError(t *testing.T) {
	built := mustBuild(t)
	engine := &stubSolver{status: solver.StatusInfeasible}
	extractor := NewSolutionExtractor(engine, solver.Options{}, nil)

	schedule, err := extractor.Solve(context.Background(), built)
	require.Error(t, err)
	require.NotNil(t, schedule)
	assert.Equal(t, models.SolveInfeasible, schedule.Outcome)
	assert.True(t, appErrors.Is(err, appErrors.ErrInfeasible))
}

func TestSolveTimeLimitNoSolution(t *testing.T) {
	built := mustBuild(t)
	engine := &stubSolver{status: solver.StatusTimeLimitNoSolution}
	extractor := NewSolutionExtractor(engine, solver.Options{}, nil)

	schedule, err := extractor.Solve(context.Background(), built)
	require.Error(t, err)
	require.NotNil(t, schedule)
	assert.Equal(t, models.SolveTimeLimitNoSolution, schedule.Outcome)
	assert.True(t, appErrors.Is(err, appErrors.ErrSolverTimeout))
}

func TestSolveEngineFailureIsInternal(t *testing.T) {
	built := mustBuild(t)
	engine := &stubSolver{err: errors.New("binary not found")}
	extractor := NewSolutionExtractor(engine, solver.Options{}, nil)

	schedule, err := extractor.Solve(context.Background(), built)
	require.Error(t, err)
	assert.Nil(t, schedule)
	assert.True(t, appErrors.Is(err, appErrors.ErrInternal))
}

func TestWriteArtifactsWithSolution(t *testing.T) {
	roster := builderRoster()
	dir := t.TempDir()

	schedule := &models.SolvedSchedule{
		Outcome:        models.SolveOptimal,
		SectionPeriods: map[string]string{"S1": "R1", "S2": "R2"},
		Assignments: []models.Assignment{
			{StudentID: "ST1", SectionID: "S1"},
			{StudentID: "ST2", SectionID: "S2"},
		},
		Violations: map[string]int{"S1": 2},
	}

	extractor := NewSolutionExtractor(&stubSolver{}, solver.Options{}, nil)
	require.NoError(t, extractor.WriteArtifacts(schedule, roster, dir))

	master := readArtifact(t, dir, FileMasterSchedule)
	assert.Contains(t, master, "Section ID,Period")
	assert.Contains(t, master, "S1,R1")

	teacher := readArtifact(t, dir, FileTeacherSchedule)
	assert.Contains(t, teacher, "T1,S1,R1")

	violations := readArtifact(t, dir, FileConstraintViolations)
	assert.Contains(t, violations, "Missed Requests,0,2,0.00%")
	assert.Contains(t, violations, "Sections Over Capacity,1,2,50.00%")
	assert.Contains(t, violations, "Overall Satisfaction,2,2,100.00%")
}

func TestWriteArtifactsWithoutSolutionWritesHeadersOnly(t *testing.T) {
	roster := builderRoster()
	dir := t.TempDir()

	schedule := &models.SolvedSchedule{Outcome: models.SolveTimeLimitNoSolution}
	extractor := NewSolutionExtractor(&stubSolver{}, solver.Options{}, nil)
	require.NoError(t, extractor.WriteArtifacts(schedule, roster, dir))

	for _, name := range []string{FileMasterSchedule, FileStudentAssignments, FileTeacherSchedule, FileConstraintViolations} {
		content := readArtifact(t, dir, name)
		lines := strings.Split(strings.TrimSpace(content), "\n")
		assert.Len(t, lines, 1, "%s should carry only its header", name)
	}
}

type stubSolver struct {
	status solver.Status
	values []float64
	err    error
}

func (s *stubSolver) Solve(_ context.Context, m *solver.Model, _ solver.Options) (*solver.Solution, error) {
	if s.err != nil {
		return nil, s.err
	}
	values := s.values
	if values == nil {
		values = make([]float64, m.NumVars())
	}
	return solver.NewSolution(s.status, 0, values, 2*time.Second), nil
}

func mustBuild(t *testing.T) *BuiltModel {
	t.Helper()
	built, err := NewScheduleModelBuilder(12, nil).Build(builderRoster(), nil)
	require.NoError(t, err)
	return built
}

func readArtifact(t *testing.T, dir, name string) string {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	return string(raw)
}
