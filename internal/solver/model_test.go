package solver

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddConjunctionEmitsLinkInequalities(t *testing.T) {
	m := NewModel("test")
	a := m.AddBinary("a")
	b := m.AddBinary("b")
	conj := m.AddBinary("conj")

	m.AddConjunction("link", conj, a, b)

	require.Equal(t, 3, m.NumConstraints())
	cons := m.Constraints()

	assert.Equal(t, "link_le_a", cons[0].Name)
	assert.Equal(t, LessEqual, cons[0].Sense)
	assert.Equal(t, []Term{{conj, 1}, {a, -1}}, cons[0].Terms)
	assert.Equal(t, 0.0, cons[0].RHS)

	assert.Equal(t, "link_le_b", cons[1].Name)
	assert.Equal(t, []Term{{conj, 1}, {b, -1}}, cons[1].Terms)

	assert.Equal(t, "link_ge_ab", cons[2].Name)
	assert.Equal(t, GreaterEqual, cons[2].Sense)
	assert.Equal(t, []Term{{conj, 1}, {a, -1}, {b, -1}}, cons[2].Terms)
	assert.Equal(t, -1.0, cons[2].RHS)
}

func TestAddIntegerHasNoUpperBound(t *testing.T) {
	m := NewModel("test")
	v := m.AddInteger("violation", 0)

	def := m.Var(v)
	assert.Equal(t, Integer, def.Type)
	assert.Equal(t, 0.0, def.LB)
	assert.True(t, math.IsInf(def.UB, 1))
}

func TestOptionsNormalized(t *testing.T) {
	opts := Options{}.Normalized()

	assert.Equal(t, 0.95, opts.MemoryFraction)
	assert.GreaterOrEqual(t, opts.Threads, 1)
	assert.LessOrEqual(t, opts.Threads, 32)
	assert.Equal(t, 7*time.Hour, opts.TimeLimit)
	assert.Equal(t, 20, opts.SolutionLimit)
}

func TestOptionsNormalizedKeepsExplicitValues(t *testing.T) {
	opts := Options{
		MemoryFraction: 0.5,
		Threads:        4,
		TimeLimit:      time.Minute,
		SolutionLimit:  3,
	}.Normalized()

	assert.Equal(t, 0.5, opts.MemoryFraction)
	assert.Equal(t, 4, opts.Threads)
	assert.Equal(t, time.Minute, opts.TimeLimit)
	assert.Equal(t, 3, opts.SolutionLimit)
}

func TestSolutionValueAndEnabled(t *testing.T) {
	sol := NewSolution(StatusOptimal, 2, []float64{1, 0, 0.6}, time.Second)

	assert.True(t, sol.Enabled(0))
	assert.False(t, sol.Enabled(1))
	assert.True(t, sol.Enabled(2))
	assert.Equal(t, 0.0, sol.Value(99))

	var nilSol *Solution
	assert.Equal(t, 0.0, nilSol.Value(0))
}

func TestStatusHasSolution(t *testing.T) {
	assert.True(t, StatusOptimal.HasSolution())
	assert.True(t, StatusTimeLimitWithSolution.HasSolution())
	assert.True(t, StatusSolutionLimit.HasSolution())
	assert.False(t, StatusTimeLimitNoSolution.HasSolution())
	assert.False(t, StatusInfeasible.HasSolution())
	assert.False(t, StatusError.HasSolution())
}

func TestParseStatusLine(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		status   Status
		solution bool
	}{
		{"optimal", "Optimal - objective value 12.00000000", StatusOptimal, true},
		{"infeasible", "Infeasible - objective value 0", StatusInfeasible, false},
		{"time with solution", "Stopped on time - objective value 44.00000000", StatusTimeLimitWithSolution, true},
		{"time no solution", "Stopped on time - objective value 1e+50", StatusTimeLimitNoSolution, false},
		{"solution limit", "Stopped on solutions - objective value 7.00000000", StatusSolutionLimit, true},
		{"garbage", "something unexpected", StatusError, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			status, _, found := parseStatusLine(tc.line)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.solution, found)
		})
	}
}
