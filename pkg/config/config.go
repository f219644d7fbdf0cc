package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database     DatabaseConfig
	Log          LogConfig
	Solver       SolverConfig
	Registrar    RegistrarConfig
	Optimization OptimizationConfig
	Pipeline     PipelineConfig
	Jobs         JobsConfig
}

type DatabaseConfig struct {
	Enabled      bool
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type LogConfig struct {
	Level  string
	Format string
}

// SolverConfig tunes the external MILP solver invocation.
type SolverConfig struct {
	BinPath          string
	MemoryFraction   float64
	Threads          int
	TimeLimit        time.Duration
	SolutionLimit    int
	FocusFeasibility bool
}

// RegistrarConfig governs the decision oracle and its fallback.
type RegistrarConfig struct {
	Model             string
	APIKey            string
	BaseURL           string
	Temperature       float64
	MaxTokens         int
	MaxChanges        int
	Timeout           time.Duration
	HeuristicFallback bool
	PromptPath        string
}

// OptimizationConfig carries utilization targets and action safety thresholds.
type OptimizationConfig struct {
	MinTarget           float64
	MaxTarget           float64
	OutOfBandTolerance  float64
	SPEDCap             int
	MaxTeacherSections  int
	MinEnrollmentToKeep int
	MergeBuffer         int
	Periods             []string
	PeriodRestrictions  map[string][]string
}

// PipelineConfig controls the iteration loop and workspace placement.
type PipelineConfig struct {
	MaxIterations int
	StallWindow   int
	WorkspaceDir  string
	RunBudget     time.Duration
}

// JobsConfig configures the background run queue used by the API binary.
type JobsConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Enabled:      v.GetBool("DB_ENABLED"),
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Solver = SolverConfig{
		BinPath:          v.GetString("SOLVER_BIN"),
		MemoryFraction:   v.GetFloat64("SOLVER_MEMORY_FRACTION"),
		Threads:          v.GetInt("SOLVER_THREADS"),
		TimeLimit:        parseDuration(v.GetString("SOLVER_TIME_LIMIT"), 7*time.Hour),
		SolutionLimit:    v.GetInt("SOLVER_SOLUTION_LIMIT"),
		FocusFeasibility: v.GetBool("SOLVER_FOCUS_FEASIBILITY"),
	}

	cfg.Registrar = RegistrarConfig{
		Model:             v.GetString("REGISTRAR_MODEL"),
		APIKey:            v.GetString("REGISTRAR_API_KEY"),
		BaseURL:           v.GetString("REGISTRAR_BASE_URL"),
		Temperature:       v.GetFloat64("REGISTRAR_TEMPERATURE"),
		MaxTokens:         v.GetInt("REGISTRAR_MAX_TOKENS"),
		MaxChanges:        v.GetInt("REGISTRAR_MAX_CHANGES"),
		Timeout:           parseDuration(v.GetString("REGISTRAR_TIMEOUT"), 30*time.Second),
		HeuristicFallback: v.GetBool("REGISTRAR_HEURISTIC_FALLBACK"),
		PromptPath:        v.GetString("REGISTRAR_PROMPT_PATH"),
	}

	cfg.Optimization = OptimizationConfig{
		MinTarget:           v.GetFloat64("OPT_MIN_TARGET"),
		MaxTarget:           v.GetFloat64("OPT_MAX_TARGET"),
		OutOfBandTolerance:  v.GetFloat64("OPT_OUT_OF_BAND_TOLERANCE"),
		SPEDCap:             v.GetInt("OPT_SPED_CAP"),
		MaxTeacherSections:  v.GetInt("OPT_MAX_TEACHER_SECTIONS"),
		MinEnrollmentToKeep: v.GetInt("OPT_MIN_ENROLLMENT_TO_KEEP"),
		MergeBuffer:         v.GetInt("OPT_MERGE_BUFFER"),
		Periods:             splitAndTrim(v.GetString("OPT_PERIODS")),
		PeriodRestrictions:  parseRestrictions(v.GetString("OPT_PERIOD_RESTRICTIONS")),
	}

	cfg.Pipeline = PipelineConfig{
		MaxIterations: v.GetInt("PIPELINE_MAX_ITERATIONS"),
		StallWindow:   v.GetInt("PIPELINE_STALL_WINDOW"),
		WorkspaceDir:  v.GetString("PIPELINE_WORKSPACE_DIR"),
		RunBudget:     parseDuration(v.GetString("PIPELINE_RUN_BUDGET"), 0),
	}

	cfg.Jobs = JobsConfig{
		Workers:    v.GetInt("JOBS_WORKERS"),
		BufferSize: v.GetInt("JOBS_BUFFER_SIZE"),
		MaxRetries: v.GetInt("JOBS_MAX_RETRIES"),
		RetryDelay: parseDuration(v.GetString("JOBS_RETRY_DELAY"), time.Second),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_ENABLED", false)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "optimo")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SOLVER_BIN", "cbc")
	v.SetDefault("SOLVER_MEMORY_FRACTION", 0.95)
	v.SetDefault("SOLVER_THREADS", 0)
	v.SetDefault("SOLVER_TIME_LIMIT", "7h")
	v.SetDefault("SOLVER_SOLUTION_LIMIT", 20)
	v.SetDefault("SOLVER_FOCUS_FEASIBILITY", true)

	v.SetDefault("REGISTRAR_MODEL", "gemini-2.0-flash")
	v.SetDefault("REGISTRAR_API_KEY", "")
	v.SetDefault("REGISTRAR_BASE_URL", "https://generativelanguage.googleapis.com/v1beta/models")
	v.SetDefault("REGISTRAR_TEMPERATURE", 0.1)
	v.SetDefault("REGISTRAR_MAX_TOKENS", 2000)
	v.SetDefault("REGISTRAR_MAX_CHANGES", 10)
	v.SetDefault("REGISTRAR_TIMEOUT", "30s")
	v.SetDefault("REGISTRAR_HEURISTIC_FALLBACK", true)
	v.SetDefault("REGISTRAR_PROMPT_PATH", "")

	v.SetDefault("OPT_MIN_TARGET", 0.70)
	v.SetDefault("OPT_MAX_TARGET", 1.10)
	v.SetDefault("OPT_OUT_OF_BAND_TOLERANCE", 0.0)
	v.SetDefault("OPT_SPED_CAP", 12)
	v.SetDefault("OPT_MAX_TEACHER_SECTIONS", 6)
	v.SetDefault("OPT_MIN_ENROLLMENT_TO_KEEP", 5)
	v.SetDefault("OPT_MERGE_BUFFER", 5)
	v.SetDefault("OPT_PERIODS", "R1,R2,R3,R4,G1,G2,G3,G4")
	v.SetDefault("OPT_PERIOD_RESTRICTIONS", "Medical Career=R1;G1|Heroes Teach=R2;G2")

	v.SetDefault("PIPELINE_MAX_ITERATIONS", 5)
	v.SetDefault("PIPELINE_STALL_WINDOW", 1)
	v.SetDefault("PIPELINE_WORKSPACE_DIR", "./data")
	v.SetDefault("PIPELINE_RUN_BUDGET", "")

	v.SetDefault("JOBS_WORKERS", 1)
	v.SetDefault("JOBS_BUFFER_SIZE", 4)
	v.SetDefault("JOBS_MAX_RETRIES", 1)
	v.SetDefault("JOBS_RETRY_DELAY", "1s")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// parseRestrictions reads "Course A=R1;G1|Course B=R2;G2" into a period map.
func parseRestrictions(raw string) map[string][]string {
	if raw == "" {
		return nil
	}

	result := make(map[string][]string)
	for _, entry := range strings.Split(raw, "|") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		course := strings.TrimSpace(parts[0])
		var periods []string
		for _, p := range strings.Split(parts[1], ";") {
			if p = strings.TrimSpace(p); p != "" {
				periods = append(periods, p)
			}
		}
		if course != "" && len(periods) > 0 {
			result[course] = periods
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
