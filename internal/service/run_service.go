package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/optimo/internal/dto"
	"github.com/noah-isme/optimo/internal/models"
	appErrors "github.com/noah-isme/optimo/pkg/errors"
	"github.com/noah-isme/optimo/pkg/jobs"
)

// RunFinder reads persisted runs; satisfied by the repository.
type RunFinder interface {
	FindRun(ctx context.Context, id string) (*models.RunRecord, error)
	ListRuns(ctx context.Context, limit int) ([]models.RunRecord, error)
}

// RunService accepts run submissions, executes them through the job queue and
// answers status queries. Submitted runs are tracked in memory; a repository,
// when configured, additionally serves runs from previous processes.
type RunService struct {
	runner    *Runner
	queue     *jobs.Queue
	finder    RunFinder
	validator *validator.Validate
	logger    *zap.Logger

	mu   sync.RWMutex
	runs map[string]*models.RunRecord
}

// runPayload is the queued job body.
type runPayload struct {
	RunID         string
	InputDir      string
	MaxIterations int
}

// NewRunService builds the service. finder may be nil.
func NewRunService(runner *Runner, finder RunFinder, validate *validator.Validate, logger *zap.Logger, queueCfg jobs.QueueConfig) *RunService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &RunService{
		runner:    runner,
		finder:    finder,
		validator: validate,
		logger:    logger,
		runs:      make(map[string]*models.RunRecord),
	}
	queueCfg.Logger = logger
	s.queue = jobs.NewQueue("optimization-runs", s.handleJob, queueCfg)
	return s
}

// Start begins background processing.
func (s *RunService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the queue workers.
func (s *RunService) Stop() {
	s.queue.Stop()
}

// Submit validates and enqueues a new optimization run.
func (s *RunService) Submit(ctx context.Context, req dto.SubmitRunRequest) (*dto.RunSubmitted, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid run request")
	}

	runID := uuid.NewString()
	now := time.Now().UTC()

	s.mu.Lock()
	s.runs[runID] = &models.RunRecord{
		ID:        runID,
		Status:    models.RunStarted,
		StartedAt: now,
	}
	s.mu.Unlock()

	err := s.queue.Enqueue(jobs.Job{
		ID:   runID,
		Type: "optimize",
		Payload: runPayload{
			RunID:         runID,
			InputDir:      req.InputDir,
			MaxIterations: req.MaxIterations,
		},
	})
	if err != nil {
		s.mu.Lock()
		delete(s.runs, runID)
		s.mu.Unlock()
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "enqueue run")
	}

	s.logger.Info("run submitted", zap.String("run_id", runID), zap.String("input_dir", req.InputDir))
	return &dto.RunSubmitted{RunID: runID, Status: string(models.RunStarted), Enqueued: now}, nil
}

// Get returns a run's current state.
func (s *RunService) Get(ctx context.Context, id string) (*dto.RunStatusResponse, error) {
	s.mu.RLock()
	run, ok := s.runs[id]
	s.mu.RUnlock()

	if !ok {
		if s.finder == nil {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("run %s not found", id))
		}
		persisted, err := s.finder.FindRun(ctx, id)
		if err != nil {
			return nil, err
		}
		run = persisted
	}

	return toStatusResponse(run), nil
}

// List returns known runs, in-memory ones first.
func (s *RunService) List(ctx context.Context, limit int) ([]dto.RunStatusResponse, error) {
	if limit <= 0 {
		limit = 20
	}

	seen := make(map[string]bool)
	var result []dto.RunStatusResponse

	s.mu.RLock()
	for _, run := range s.runs {
		result = append(result, *toStatusResponse(run))
		seen[run.ID] = true
	}
	s.mu.RUnlock()

	if s.finder != nil {
		persisted, err := s.finder.ListRuns(ctx, limit)
		if err != nil {
			return nil, err
		}
		for i := range persisted {
			if !seen[persisted[i].ID] {
				result = append(result, *toStatusResponse(&persisted[i]))
			}
		}
	}

	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *RunService) handleJob(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(runPayload)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", job.Payload)
	}

	s.setStatus(payload.RunID, models.RunIterating)

	result, err := s.runner.Run(ctx, payload.RunID, payload.InputDir, payload.MaxIterations)
	if err != nil {
		s.logger.Error("run failed", zap.String("run_id", payload.RunID), zap.Error(err))
		s.mu.Lock()
		if run := s.runs[payload.RunID]; run != nil {
			run.Status = models.RunFailed
			run.EndedAt = time.Now().UTC()
		}
		s.mu.Unlock()
		// Run failures are terminal; retrying the whole job would redo hours
		// of solver work against the same inputs.
		return nil
	}

	s.mu.Lock()
	s.runs[payload.RunID] = &models.RunRecord{
		ID:              result.RunID,
		Status:          result.Status,
		StartedAt:       s.startedAtLocked(payload.RunID),
		EndedAt:         time.Now().UTC(),
		BestIteration:   result.BestIteration,
		BestScore:       result.BestScore,
		TotalIterations: result.TotalIterations,
		FinalOutputPath: result.FinalOutputPath,
		Iterations:      result.Iterations,
	}
	s.mu.Unlock()
	return nil
}

func (s *RunService) setStatus(runID string, status models.RunStatus) {
	s.mu.Lock()
	if run := s.runs[runID]; run != nil {
		run.Status = status
	}
	s.mu.Unlock()
}

// startedAtLocked must be called with mu held.
func (s *RunService) startedAtLocked(runID string) time.Time {
	if run := s.runs[runID]; run != nil {
		return run.StartedAt
	}
	return time.Now().UTC()
}

func toStatusResponse(run *models.RunRecord) *dto.RunStatusResponse {
	resp := &dto.RunStatusResponse{
		RunID:           run.ID,
		Status:          string(run.Status),
		BestIteration:   run.BestIteration,
		BestScore:       run.BestScore,
		TotalIterations: run.TotalIterations,
		FinalOutputPath: run.FinalOutputPath,
		StartedAt:       run.StartedAt,
	}
	if !run.EndedAt.IsZero() {
		ended := run.EndedAt
		resp.EndedAt = &ended
	}
	for _, iter := range run.Iterations {
		resp.Iterations = append(resp.Iterations, dto.IterationMetrics{
			Iteration:      iter.Index,
			Score:          iter.Score,
			SolveOutcome:   string(iter.Outcome),
			Degraded:       iter.Degraded,
			ActionsApplied: iter.ActionsApplied,
			ActionsFailed:  iter.ActionsFailed,
		})
	}
	return resp
}
