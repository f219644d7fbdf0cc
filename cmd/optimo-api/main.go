package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/optimo/internal/handler"
	"github.com/noah-isme/optimo/internal/loader"
	appmiddleware "github.com/noah-isme/optimo/internal/middleware"
	"github.com/noah-isme/optimo/internal/oracle"
	"github.com/noah-isme/optimo/internal/repository"
	"github.com/noah-isme/optimo/internal/service"
	"github.com/noah-isme/optimo/internal/solver"
	"github.com/noah-isme/optimo/pkg/config"
	"github.com/noah-isme/optimo/pkg/database"
	"github.com/noah-isme/optimo/pkg/jobs"
	"github.com/noah-isme/optimo/pkg/logger"
	"github.com/noah-isme/optimo/pkg/middleware/requestid"
	"github.com/noah-isme/optimo/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	store, err := storage.NewLocalStorage(cfg.Pipeline.WorkspaceDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init workspace storage", "error", err)
	}

	var db *sqlx.DB
	var repo *repository.RunRepository
	if cfg.Database.Enabled {
		db, err = database.NewPostgres(cfg.Database)
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

	metrics := service.NewMetricsService()
	runner := buildRunner(cfg, store, repo, decisionOracle, metrics, logr)

	var finder service.RunFinder
	if repo != nil {
		finder = repo
	}
	runs := service.NewRunService(runner, finder, validator.New(), logr, jobs.QueueConfig{
		Workers:    cfg.Jobs.Workers,
		BufferSize: cfg.Jobs.BufferSize,
		MaxRetries: cfg.Jobs.MaxRetries,
		RetryDelay: cfg.Jobs.RetryDelay,
	})
	runs.Start(context.Background())
	defer runs.Stop()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestid.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(appmiddleware.Metrics(metrics))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group(cfg.APIPrefix)
	handler.NewRunHandler(runs).Register(api)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
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
