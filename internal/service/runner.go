package service

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/optimo/internal/loader"
	"github.com/noah-isme/optimo/internal/models"
	appErrors "github.com/noah-isme/optimo/pkg/errors"
	"github.com/noah-isme/optimo/pkg/export"
	"github.com/noah-isme/optimo/pkg/storage"
)

// noSolutionScore marks iterations without an incumbent. It keeps JSON
// artifacts finite and never beats a real score.
const noSolutionScore = 1e9

// runRepository persists run and iteration records. Optional: a nil repository
// keeps the pipeline purely file-based.
type runRepository interface {
	CreateRun(ctx context.Context, run *models.RunRecord) error
	UpdateRun(ctx context.Context, run *models.RunRecord) error
	CreateIteration(ctx context.Context, iteration *models.IterationRecord) error
}

// Runner drives the solve-analyze-decide-mutate loop for one run. The loop is
// strictly sequential: the mutated roster of iteration N is the input of
// iteration N+1.
type Runner struct {
	loader    *loader.Loader
	warm      *WarmStartGenerator
	builder   *ScheduleModelBuilder
	extractor *SolutionExtractor
	analyzer  *UtilizationAnalyzer
	registrar *RegistrarService
	processor *ActionProcessor
	workspace *WorkspaceManager
	store     *storage.LocalStorage
	repo      runRepository
	metrics   *MetricsService
	pdf       *export.PDFExporter

	maxIterations int
	stallWindow   int
	runBudget     time.Duration
	logger        *zap.Logger
}

// RunnerDeps collects the runner's collaborators.
type RunnerDeps struct {
	Loader    *loader.Loader
	WarmStart *WarmStartGenerator
	Builder   *ScheduleModelBuilder
	Extractor *SolutionExtractor
	Analyzer  *UtilizationAnalyzer
	Registrar *RegistrarService
	Processor *ActionProcessor
	Workspace *WorkspaceManager
	Store     *storage.LocalStorage
	Repo      runRepository
	Metrics   *MetricsService
}

// NewRunner builds the orchestrator. stallWindow is the number of consecutive
// zero-applied-action iterations tolerated before STALLED; runBudget of zero
// means no wall-clock limit.
func NewRunner(deps RunnerDeps, maxIterations, stallWindow int, runBudget time.Duration, logger *zap.Logger) *Runner {
	if maxIterations <= 0 {
		maxIterations = 5
	}
	if stallWindow <= 0 {
		stallWindow = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		loader:        deps.Loader,
		warm:          deps.WarmStart,
		builder:       deps.Builder,
		extractor:     deps.Extractor,
		analyzer:      deps.Analyzer,
		registrar:     deps.Registrar,
		processor:     deps.Processor,
		workspace:     deps.Workspace,
		store:         deps.Store,
		repo:          deps.Repo,
		metrics:       deps.Metrics,
		pdf:           export.NewPDFExporter(),
		maxIterations: maxIterations,
		stallWindow:   stallWindow,
		runBudget:     runBudget,
		logger:        logger,
	}
}

// Run executes the full optimization loop over the roster in inputDir. The
// returned result always carries the best iteration found; only a data error
// before the first solve, or a failure with no prior solution, returns an
// error instead.
func (r *Runner) Run(ctx context.Context, runID, inputDir string, maxIterations int) (*models.RunResult, error) {
	if maxIterations <= 0 {
		maxIterations = r.maxIterations
	}
	startedAt := time.Now().UTC()

	runDir, err := r.workspace.StartRun(runID, startedAt)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "create run workspace")
	}
	baseDir, err := r.workspace.ImportBase(runDir, inputDir)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrData.Code, appErrors.ErrData.Status, "import input files")
	}

	run := &models.RunRecord{
		ID:        runID,
		Status:    models.RunIterating,
		StartedAt: startedAt,
		BestScore: math.Inf(1),
	}
	if r.repo != nil {
		if err := r.repo.CreateRun(ctx, run); err != nil {
			r.logger.Warn("persist run record failed", zap.Error(err))
		}
	}

	var (
		roster           *models.Roster
		nextSections     []models.Section
		consecutiveStall int
		status           = models.RunIterating
	)

	for i := 0; i < maxIterations; i++ {
		if ctx.Err() != nil {
			r.logger.Warn("run cancelled between iterations", zap.Int("iteration", i))
			status = models.RunExhausted
			break
		}
		if r.runBudget > 0 && time.Since(startedAt) > r.runBudget {
			r.logger.Warn("run budget exceeded", zap.Duration("budget", r.runBudget))
			status = models.RunExhausted
			break
		}

		ws, err := r.workspace.PrepareIteration(runDir, baseDir, i)
		if err != nil {
			status = models.RunFailed
			r.logger.Error("prepare iteration workspace failed", zap.Error(err))
			break
		}

		if i == 0 {
			roster, err = r.loader.Load(r.workspace.InputPath(ws))
			if err != nil {
				// Data errors before the first solve are the one condition
				// allowed to raise outward.
				run.Status = models.RunFailed
				run.EndedAt = time.Now().UTC()
				r.persistRun(ctx, run)
				r.metrics.ObserveRun(string(models.RunFailed))
				return nil, err
			}
		} else {
			roster = roster.WithSections(nextSections)
		}

		record, actions, changes, mutated, iterStatus := r.runIteration(ctx, i, runID, ws, roster)
		record.WorkspacePath = ws.IterDir
		run.Iterations = append(run.Iterations, *record)
		run.TotalIterations = i + 1
		r.metrics.ObserveIteration(record.Score)

		if err := r.workspace.SaveIterationArtifacts(ws, record, actions, changes); err != nil {
			r.logger.Warn("save iteration artifacts failed", zap.Error(err))
		}
		if r.repo != nil {
			if err := r.repo.CreateIteration(ctx, record); err != nil {
				r.logger.Warn("persist iteration record failed", zap.Error(err))
			}
		}

		if record.Outcome.HasSolution() && record.Score < run.BestScore {
			run.BestScore = record.Score
			run.BestIteration = i
		}

		if iterStatus != models.RunIterating {
			status = iterStatus
			break
		}

		if changes != nil {
			for _, detail := range changes.Details {
				r.metrics.ObserveAction(string(detail.Action.Type), string(detail.Status))
			}
			if changes.Applied == 0 {
				consecutiveStall++
				if consecutiveStall >= r.stallWindow {
					r.logger.Info("no progress, stopping early",
						zap.Int("consecutive_no_change", consecutiveStall))
					status = models.RunStalled
					break
				}
			} else {
				consecutiveStall = 0
			}
		}

		if mutated != nil {
			nextSections = mutated
		} else {
			nextSections = roster.CloneSections()
		}
	}

	if status == models.RunIterating {
		status = models.RunExhausted
	}
	run.Status = status
	run.EndedAt = time.Now().UTC()

	if math.IsInf(run.BestScore, 1) {
		// Nothing solved; the run failed without a deliverable.
		run.Status = models.RunFailed
		r.persistRun(ctx, run)
		r.metrics.ObserveRun(string(run.Status))
		return nil, appErrors.Clone(appErrors.ErrSolverNoSolution, "no iteration produced a solution")
	}

	finalPath, err := r.workspace.FinalizeRun(runDir, run)
	if err != nil {
		r.logger.Warn("finalize run failed", zap.Error(err))
	}
	run.FinalOutputPath = finalPath
	r.persistRun(ctx, run)
	r.metrics.ObserveRun(string(run.Status))

	summary := r.summarize(run)
	if err := r.writeSummaryPDF(runDir, run, summary); err != nil {
		r.logger.Warn("write summary pdf failed", zap.Error(err))
	}

	r.logger.Info("run complete",
		zap.String("run_id", runID),
		zap.String("status", string(run.Status)),
		zap.Int("best_iteration", run.BestIteration),
		zap.Float64("best_score", run.BestScore))

	return &models.RunResult{
		RunID:           runID,
		Status:          run.Status,
		BestIteration:   run.BestIteration,
		BestScore:       run.BestScore,
		TotalIterations: run.TotalIterations,
		FinalOutputPath: run.FinalOutputPath,
		Iterations:      run.Iterations,
		Summary:         summary,
	}, nil
}

// runIteration executes one loop pass. The returned status is RunIterating
// when the loop should continue, or the terminal status to adopt. The mutated
// section slice, when non-nil, becomes the next iteration's roster.
func (r *Runner) runIteration(ctx context.Context, index int, runID string, ws *IterationWorkspace, roster *models.Roster) (*models.IterationRecord, []models.Action, *models.ChangeLog, []models.Section, models.RunStatus) {
	record := &models.IterationRecord{
		Index:     index,
		RunID:     runID,
		Score:     noSolutionScore,
		StartedAt: time.Now().UTC(),
	}
	finish := func(status models.RunStatus) (*models.IterationRecord, []models.Action, *models.ChangeLog, []models.Section, models.RunStatus) {
		record.EndedAt = time.Now().UTC()
		return record, nil, nil, nil, status
	}

	warm := r.warm.Generate(roster)
	built, err := r.builder.Build(roster, warm)
	if err != nil {
		r.logger.Error("model build failed", zap.Error(err))
		record.Outcome = models.SolveError
		return finish(models.RunFailed)
	}

	schedule, err := r.extractor.Solve(ctx, built)
	if err != nil {
		switch {
		case appErrors.Is(err, appErrors.ErrSolverTimeout), appErrors.Is(err, appErrors.ErrSolverNoSolution):
			// Recoverable: emit empty artifacts, mark degraded, keep looping.
			r.logger.Warn("solver produced no solution, iteration degraded", zap.Error(err))
			record.Outcome = schedule.Outcome
			record.Degraded = true
			if writeErr := r.extractor.WriteArtifacts(schedule, roster, r.workspace.OutputPath(ws)); writeErr != nil {
				r.logger.Warn("write degraded artifacts failed", zap.Error(writeErr))
			}
			record.EndedAt = time.Now().UTC()
			return record, nil, nil, nil, models.RunIterating
		case appErrors.Is(err, appErrors.ErrInfeasible):
			r.logger.Error("model infeasible despite soft capacity", zap.Error(err))
			record.Outcome = models.SolveInfeasible
			return finish(models.RunFailed)
		default:
			r.logger.Error("solver invocation failed", zap.Error(err))
			record.Outcome = models.SolveError
			return finish(models.RunFailed)
		}
	}

	record.Outcome = schedule.Outcome
	r.metrics.ObserveSolve(string(schedule.Outcome), schedule.Runtime)
	if err := r.extractor.WriteArtifacts(schedule, roster, r.workspace.OutputPath(ws)); err != nil {
		r.logger.Warn("write artifacts failed", zap.Error(err))
	}

	analysis := r.analyzer.Analyze(roster, schedule)
	record.Analysis = analysis
	record.Score = r.analyzer.Score(analysis)

	r.logger.Info("iteration scored",
		zap.Int("iteration", index),
		zap.Float64("score", record.Score),
		zap.Int("out_of_band", analysis.OutOfBand()))

	if !r.analyzer.NeedsOptimization(analysis) {
		r.logger.Info("all sections within target band")
		return finish(models.RunConverged)
	}

	summary := r.analyzer.RegistrarSummary(roster, analysis)
	actions, err := r.registrar.DecideActions(ctx, summary)
	if err != nil {
		// Oracle failure with fallback disabled halts the loop; the best
		// iteration so far is still the deliverable.
		r.logger.Error("registrar decision failed", zap.Error(err))
		r.metrics.ObserveOracleFailure()
		return finish(models.RunFailed)
	}

	sections, changes := r.processor.Apply(roster, actions, schedule.EnrollmentCounts())
	record.ActionsApplied = changes.Applied
	record.ActionsFailed = changes.Failed
	record.EndedAt = time.Now().UTC()

	if changes.Applied > 0 {
		if err := r.workspace.SaveModifiedSections(ws, sections); err != nil {
			r.logger.Warn("save modified sections failed", zap.Error(err))
		}
	}

	return record, actions, changes, sections, models.RunIterating
}

func (r *Runner) persistRun(ctx context.Context, run *models.RunRecord) {
	if r.repo == nil {
		return
	}
	if err := r.repo.UpdateRun(ctx, run); err != nil {
		r.logger.Warn("persist run record failed", zap.Error(err))
	}
}

// summarize renders the human-readable run report.
func (r *Runner) summarize(run *models.RunRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Optimization run %s finished with status %s.\n", run.ID, run.Status)
	fmt.Fprintf(&b, "Best iteration: %d (score %.2f) of %d total.\n",
		run.BestIteration, run.BestScore, run.TotalIterations)
	for _, iter := range run.Iterations {
		line := fmt.Sprintf("  iteration %d: score %.2f, outcome %s", iter.Index, iter.Score, iter.Outcome)
		if iter.Degraded {
			line += " (degraded)"
		}
		if iter.ActionsApplied+iter.ActionsFailed > 0 {
			line += fmt.Sprintf(", actions applied %d / failed %d", iter.ActionsApplied, iter.ActionsFailed)
		}
		b.WriteString(line + "\n")
	}
	if run.FinalOutputPath != "" {
		fmt.Fprintf(&b, "Final schedule: %s\n", run.FinalOutputPath)
	}
	return b.String()
}

func (r *Runner) writeSummaryPDF(runDir string, run *models.RunRecord, summary string) error {
	data := export.Dataset{Headers: []string{"Iteration", "Score", "Outcome", "Applied", "Failed"}}
	for _, iter := range run.Iterations {
		data.Append(map[string]string{
			"Iteration": fmt.Sprintf("%d", iter.Index),
			"Score":     fmt.Sprintf("%.2f", iter.Score),
			"Outcome":   string(iter.Outcome),
			"Applied":   fmt.Sprintf("%d", iter.ActionsApplied),
			"Failed":    fmt.Sprintf("%d", iter.ActionsFailed),
		})
	}
	preamble := strings.Split(strings.TrimRight(summary, "\n"), "\n")
	content, err := r.pdf.Render(data, "Optimization Run Summary", preamble)
	if err != nil {
		return err
	}
	_, err = r.store.Save(filepath.Join(runDir, "final", "run_summary.pdf"), content)
	return err
}
