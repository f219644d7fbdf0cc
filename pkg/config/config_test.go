package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	// run in an empty directory so no .env file shadows the defaults
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.False(t, cfg.Database.Enabled)

	assert.Equal(t, "cbc", cfg.Solver.BinPath)
	assert.Equal(t, 0.95, cfg.Solver.MemoryFraction)
	assert.Equal(t, 7*time.Hour, cfg.Solver.TimeLimit)
	assert.Equal(t, 20, cfg.Solver.SolutionLimit)

	assert.Equal(t, 0.70, cfg.Optimization.MinTarget)
	assert.Equal(t, 1.10, cfg.Optimization.MaxTarget)
	assert.Equal(t, 12, cfg.Optimization.SPEDCap)
	assert.Equal(t, []string{"R1", "R2", "R3", "R4", "G1", "G2", "G3", "G4"}, cfg.Optimization.Periods)

	assert.Equal(t, 5, cfg.Pipeline.MaxIterations)
	assert.Equal(t, 30*time.Second, cfg.Registrar.Timeout)
	assert.True(t, cfg.Registrar.HeuristicFallback)
}

func TestParseRestrictions(t *testing.T) {
	parsed := parseRestrictions("Medical Career=R1;G1|Heroes Teach=R2;G2")
	require.Len(t, parsed, 2)
	assert.Equal(t, []string{"R1", "G1"}, parsed["Medical Career"])
	assert.Equal(t, []string{"R2", "G2"}, parsed["Heroes Teach"])

	assert.Nil(t, parseRestrictions(""))
	assert.Nil(t, parseRestrictions("garbage-without-equals"))
}

func TestParseDurationFallback(t *testing.T) {
	assert.Equal(t, time.Minute, parseDuration("", time.Minute))
	assert.Equal(t, time.Minute, parseDuration("not-a-duration", time.Minute))
	assert.Equal(t, 90*time.Second, parseDuration("90s", time.Minute))
}
