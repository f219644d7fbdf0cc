// Command optimo runs one optimization run to completion from the terminal,
// without the API server or job queue.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/optimo/internal/loader"
	"github.com/noah-isme/optimo/internal/oracle"
	"github.com/noah-isme/optimo/internal/repository"
	"github.com/noah-isme/optimo/internal/service"
	"github.com/noah-isme/optimo/internal/solver"
	"github.com/noah-isme/optimo/pkg/config"
	"github.com/noah-isme/optimo/pkg/database"
	"github.com/noah-isme/optimo/pkg/logger"
	"github.com/noah-isme/optimo/pkg/storage"
)

func main() {
	inputDir := flag.String("input", "", "directory with the roster CSV bundle")
	iterations := flag.Int("iterations", 0, "max iterations (0 uses PIPELINE_MAX_ITERATIONS)")
	flag.Parse()

	if *inputDir == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	store, err := storage.NewLocalStorage(cfg.Pipeline.WorkspaceDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init workspace storage", "error", err)
	}

	var repo *repository.RunRepository
	if cfg.Database.Enabled {
		db, err := database.NewPostgres(cfg.Database)
		if err != nil {
			logr.Sugar().Fatalw("failed to connect database", "error", err)
		}
		defer db.Close() //nolint:errcheck
		repo = repository.NewRunRepository(db)
	}

	var decisionOracle *oracle.GeminiClient
	if cfg.Registrar.APIKey != "" {
		decisionOracle = oracle.NewGeminiClient(cfg.Registrar, logr)
	}

	runner := buildRunner(cfg, store, repo, decisionOracle, service.NewMetricsService(), logr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID := uuid.NewString()
	result, err := runner.Run(ctx, runID, *inputDir, *iterations)
	if err != nil {
		logr.Sugar().Fatalw("run failed", "run_id", runID, "error", err)
	}

	fmt.Println(result.Summary)
	fmt.Printf("final output: %s\n", result.FinalOutputPath)
}

func buildRunner(cfg *config.Config, store *storage.LocalStorage, repo *repository.RunRepository,
	decisionOracle *oracle.GeminiClient, metrics *service.MetricsService, logr *zap.Logger) *service.Runner {
	opt := cfg.Optimization

	engine := solver.NewCBC(cfg.Solver.BinPath, logr)
	extractor := service.NewSolutionExtractor(engine, solver.Options{
		MemoryFraction:   cfg.Solver.MemoryFraction,
		Threads:          cfg.Solver.Threads,
		TimeLimit:        cfg.Solver.TimeLimit,
		SolutionLimit:    cfg.Solver.SolutionLimit,
		FocusFeasibility: cfg.Solver.FocusFeasibility,
	}, logr)

	var template string
	if cfg.Registrar.PromptPath != "" {
		raw, err := os.ReadFile(cfg.Registrar.PromptPath)
		if err != nil {
			logr.Sugar().Fatalw("failed to read registrar prompt", "path", cfg.Registrar.PromptPath, "error", err)
		}
		template = string(raw)
	}
	// A typed nil client must not reach the registrar's oracle interface.
	var registrar *service.RegistrarService
	if decisionOracle != nil {
		registrar = service.NewRegistrarService(decisionOracle, template, cfg.Registrar.MaxChanges,
			opt.MaxTeacherSections, cfg.Registrar.HeuristicFallback, logr)
	} else {
		registrar = service.NewRegistrarService(nil, template, cfg.Registrar.MaxChanges,
			opt.MaxTeacherSections, cfg.Registrar.HeuristicFallback, logr)
	}

	deps := service.RunnerDeps{
		Loader:    loader.NewLoader(opt.Periods, opt.PeriodRestrictions, logr),
		WarmStart: service.NewWarmStartGenerator(logr),
		Builder:   service.NewScheduleModelBuilder(opt.SPEDCap, logr),
		Extractor: extractor,
		Analyzer:  service.NewUtilizationAnalyzer(opt.MinTarget, opt.MaxTarget, opt.OutOfBandTolerance, opt.MaxTeacherSections, logr),
		Registrar: registrar,
		Processor: service.NewActionProcessor(opt.MinEnrollmentToKeep, opt.MergeBuffer, logr),
		Workspace: service.NewWorkspaceManager(store, logr),
		Store:     store,
		Metrics:   metrics,
	}
	if repo != nil {
		deps.Repo = repo
	}
	return service.NewRunner(deps, cfg.Pipeline.MaxIterations, cfg.Pipeline.StallWindow, cfg.Pipeline.RunBudget, logr)
}
