package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/optimo/internal/models"
	appErrors "github.com/noah-isme/optimo/pkg/errors"
)

func newMockRepo(t *testing.T) (*RunRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRunRepository(sqlx.NewDb(db, "postgres")), mock
}

func sampleRun() *models.RunRecord {
	return &models.RunRecord{
		ID:              "run-1",
		Status:          models.RunConverged,
		StartedAt:       time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		EndedAt:         time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
		BestIteration:   2,
		BestScore:       -1.5,
		TotalIterations: 3,
		FinalOutputPath: "/data/runs/run_20260314_090000/final",
	}
}

func TestCreateRun(t *testing.T) {
	repo, mock := newMockRepo(t)
	run := sampleRun()

	mock.ExpectExec(`INSERT INTO optimization_runs`).
		WithArgs(run.ID, run.Status, run.StartedAt, run.EndedAt,
			run.BestIteration, run.BestScore, run.TotalIterations, run.FinalOutputPath).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.CreateRun(context.Background(), run))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateRunNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	run := sampleRun()

	mock.ExpectExec(`UPDATE optimization_runs`).
		WithArgs(run.ID, run.Status, run.EndedAt, run.BestIteration,
			run.BestScore, run.TotalIterations, run.FinalOutputPath).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateRun(context.Background(), run)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateIteration(t *testing.T) {
	repo, mock := newMockRepo(t)
	iter := &models.IterationRecord{
		Index:          1,
		RunID:          "run-1",
		Score:          1.5,
		Outcome:        models.SolveOptimal,
		ActionsApplied: 2,
		ActionsFailed:  1,
		WorkspacePath:  "runs/run_x/iterations/iter_1",
		StartedAt:      time.Now().UTC(),
		EndedAt:        time.Now().UTC(),
	}

	mock.ExpectExec(`INSERT INTO run_iterations`).
		WithArgs(iter.RunID, iter.Index, iter.Score, iter.Outcome, iter.Degraded,
			iter.ActionsApplied, iter.ActionsFailed, iter.WorkspacePath,
			iter.StartedAt, iter.EndedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.CreateIteration(context.Background(), iter))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindRunWithIterations(t *testing.T) {
	repo, mock := newMockRepo(t)
	run := sampleRun()

	mock.ExpectQuery(`FROM optimization_runs WHERE id`).
		WithArgs(run.ID).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "status", "started_at", "ended_at", "best_iteration",
			"best_score", "total_iterations", "final_output_path",
		}).AddRow(run.ID, run.Status, run.StartedAt, run.EndedAt,
			run.BestIteration, run.BestScore, run.TotalIterations, run.FinalOutputPath))

	mock.ExpectQuery(`FROM run_iterations WHERE run_id`).
		WithArgs(run.ID).
		WillReturnRows(sqlmock.NewRows([]string{
			"run_id", "iteration", "score", "solve_outcome", "degraded",
			"actions_applied", "actions_failed", "workspace_path", "started_at", "ended_at",
		}).AddRow(run.ID, 0, 1.5, models.SolveOptimal, false, 1, 0, "p0", run.StartedAt, run.EndedAt).
			AddRow(run.ID, 1, -0.5, models.SolveOptimal, false, 0, 0, "p1", run.StartedAt, run.EndedAt))

	found, err := repo.FindRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, found.ID)
	assert.Equal(t, models.RunConverged, found.Status)
	require.Len(t, found.Iterations, 2)
	assert.Equal(t, 1, found.Iterations[1].Index)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindRunNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`FROM optimization_runs WHERE id`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.FindRun(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestListRunsClampsLimit(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`FROM optimization_runs ORDER BY started_at DESC`).
		WithArgs(20).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "status", "started_at", "ended_at", "best_iteration",
			"best_score", "total_iterations", "final_output_path",
		}))

	runs, err := repo.ListRuns(context.Background(), 500)
	require.NoError(t, err)
	assert.Empty(t, runs)
	require.NoError(t, mock.ExpectationsWereMet())
}
