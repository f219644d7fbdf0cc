// Package repository persists run and iteration records in PostgreSQL.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/optimo/internal/models"
	appErrors "github.com/noah-isme/optimo/pkg/errors"
)

// RunRepository manages persistence for optimization runs.
type RunRepository struct {
	db *sqlx.DB
}

// NewRunRepository constructs a RunRepository.
func NewRunRepository(db *sqlx.DB) *RunRepository {
	return &RunRepository{db: db}
}

// CreateRun inserts a freshly started run.
func (r *RunRepository) CreateRun(ctx context.Context, run *models.RunRecord) error {
	query := `INSERT INTO optimization_runs (id, status, started_at, ended_at, best_iteration, best_score, total_iterations, final_output_path)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := r.db.ExecContext(ctx, query,
		run.ID, run.Status, run.StartedAt, run.EndedAt,
		run.BestIteration, run.BestScore, run.TotalIterations, run.FinalOutputPath); err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// UpdateRun stores the run's current state.
func (r *RunRepository) UpdateRun(ctx context.Context, run *models.RunRecord) error {
	query := `UPDATE optimization_runs
        SET status = $2, ended_at = $3, best_iteration = $4, best_score = $5, total_iterations = $6, final_output_path = $7
        WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query,
		run.ID, run.Status, run.EndedAt, run.BestIteration,
		run.BestScore, run.TotalIterations, run.FinalOutputPath)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("run %s not found", run.ID))
	}
	return nil
}

// CreateIteration inserts one iteration record.
func (r *RunRepository) CreateIteration(ctx context.Context, iter *models.IterationRecord) error {
	query := `INSERT INTO run_iterations (run_id, iteration, score, solve_outcome, degraded, actions_applied, actions_failed, workspace_path, started_at, ended_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	if _, err := r.db.ExecContext(ctx, query,
		iter.RunID, iter.Index, iter.Score, iter.Outcome, iter.Degraded,
		iter.ActionsApplied, iter.ActionsFailed, iter.WorkspacePath,
		iter.StartedAt, iter.EndedAt); err != nil {
		return fmt.Errorf("create iteration: %w", err)
	}
	return nil
}

// FindRun returns a run and its iterations.
func (r *RunRepository) FindRun(ctx context.Context, id string) (*models.RunRecord, error) {
	var run models.RunRecord
	query := `SELECT id, status, started_at, ended_at, best_iteration, best_score, total_iterations, final_output_path
        FROM optimization_runs WHERE id = $1`
	if err := r.db.GetContext(ctx, &run, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("run %s not found", id))
		}
		return nil, fmt.Errorf("find run: %w", err)
	}

	iterQuery := `SELECT run_id, iteration, score, solve_outcome, degraded, actions_applied, actions_failed, workspace_path, started_at, ended_at
        FROM run_iterations WHERE run_id = $1 ORDER BY iteration`
	if err := r.db.SelectContext(ctx, &run.Iterations, iterQuery, id); err != nil {
		return nil, fmt.Errorf("list run iterations: %w", err)
	}
	return &run, nil
}

// ListRuns returns recent runs, newest first.
func (r *RunRepository) ListRuns(ctx context.Context, limit int) ([]models.RunRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var runs []models.RunRecord
	query := `SELECT id, status, started_at, ended_at, best_iteration, best_score, total_iterations, final_output_path
        FROM optimization_runs ORDER BY started_at DESC LIMIT $1`
	if err := r.db.SelectContext(ctx, &runs, query, limit); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}
