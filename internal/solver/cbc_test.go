package solver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteLPFile(t *testing.T) {
	m := NewModel("demo")
	a := m.AddBinary("assign_a")
	b := m.AddBinary("assign_b")
	v := m.AddInteger("violation", 0)
	m.AddConstraint("pick_one", []Term{{a, 1}, {b, 1}}, Equal, 1)
	m.AddConstraint("cap", []Term{{a, 1}, {b, 1}, {v, -1}}, LessEqual, 1)
	m.SetObjective([]Term{{v, 1}})

	path := filepath.Join(t.TempDir(), "model.lp")
	require.NoError(t, writeLPFile(path, m))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(raw)

	assert.Contains(t, content, "Minimize")
	assert.Contains(t, content, "obj: + 1 x2")
	assert.Contains(t, content, "c0: + 1 x0 + 1 x1 = 1")
	assert.Contains(t, content, "c1: + 1 x0 + 1 x1 - 1 x2 <= 1")
	assert.Contains(t, content, "Binaries")
	assert.Contains(t, content, "Generals")
	assert.Contains(t, content, "0 <= x2")
	assert.Contains(t, content, "End")
}

func TestParseSolutionFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "solution.txt")
	content := "Optimal - objective value 3.00000000\n" +
		"      0 x0                       1                       1\n" +
		"      2 x2                       3                       1\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	sol, err := parseSolutionFile(path, 3)
	require.NoError(t, err)

	assert.Equal(t, StatusOptimal, sol.Status)
	assert.Equal(t, 3.0, sol.Objective)
	assert.True(t, sol.Enabled(0))
	assert.False(t, sol.Enabled(1))
	assert.Equal(t, 3.0, sol.Value(2))
}

func TestParseSolutionFileInfeasible(t *testing.T) {
	path := filepath.Join(t.TempDir(), "solution.txt")
	require.NoError(t, os.WriteFile(path, []byte("Infeasible - objective value 0.00000000\n"), 0o644))

	sol, err := parseSolutionFile(path, 2)
	require.NoError(t, err)

	assert.Equal(t, StatusInfeasible, sol.Status)
	assert.False(t, sol.Status.HasSolution())
	assert.Equal(t, 0.0, sol.Value(0))
}
