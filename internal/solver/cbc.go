package solver

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// CBC bridges to the COIN-OR cbc command line solver. Each solve writes the
// model as a CPLEX LP file plus a MIP start file into a temp directory, runs
// the binary and parses the solution file it leaves behind.
//
// Variables are emitted as x<id> so section and student identifiers never have
// to be legal LP names.
type CBC struct {
	binPath string
	logger  *zap.Logger
}

// NewCBC builds the bridge. binPath defaults to "cbc" on PATH.
func NewCBC(binPath string, logger *zap.Logger) *CBC {
	if binPath == "" {
		binPath = "cbc"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CBC{binPath: binPath, logger: logger}
}

// Solve runs cbc on the model. Cancelling ctx kills the process; the incumbent
// held by the killed process is lost and an error is returned.
func (c *CBC) Solve(ctx context.Context, m *Model, opts Options) (*Solution, error) {
	opts = opts.Normalized()

	dir, err := os.MkdirTemp("", "optimo-solve-")
	if err != nil {
		return nil, fmt.Errorf("create solver workdir: %w", err)
	}
	defer os.RemoveAll(dir)

	lpPath := filepath.Join(dir, "model.lp")
	solPath := filepath.Join(dir, "solution.txt")

	if err := writeLPFile(lpPath, m); err != nil {
		return nil, err
	}

	args := []string{
		lpPath,
		"-threads", strconv.Itoa(opts.Threads),
		"-seconds", strconv.Itoa(int(opts.TimeLimit.Seconds())),
		"-maxSolutions", strconv.Itoa(opts.SolutionLimit),
	}
	if opts.FocusFeasibility {
		args = append(args, "-heuristics", "on", "-feasibilityPump", "on")
	}
	if len(m.Starts()) > 0 {
		mstPath := filepath.Join(dir, "start.mst")
		if err := writeStartFile(mstPath, m); err != nil {
			return nil, err
		}
		args = append(args, "-mipstart", mstPath)
	}
	args = append(args, "solve", "solution", solPath)

	c.logger.Info("invoking cbc",
		zap.String("model", m.Name),
		zap.Int("vars", m.NumVars()),
		zap.Int("constraints", m.NumConstraints()),
		zap.Int("threads", opts.Threads),
		zap.Duration("time_limit", opts.TimeLimit))

	started := time.Now()
	cmd := exec.CommandContext(ctx, c.binPath, args...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// cbc exits non-zero on some argument errors but zero on infeasible
		// models, so a failed exit means the run itself broke.
		c.logger.Error("cbc exited abnormally", zap.Error(err), zap.ByteString("output", lastLines(out, 20)))
		return nil, fmt.Errorf("cbc failed: %w", err)
	}

	sol, err := parseSolutionFile(solPath, m.NumVars())
	if err != nil {
		return nil, err
	}
	sol.Runtime = time.Since(started)
	c.logger.Info("cbc finished",
		zap.String("status", sol.Status.String()),
		zap.Float64("objective", sol.Objective),
		zap.Duration("runtime", sol.Runtime))
	return sol, nil
}

func writeLPFile(path string, m *Model) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write lp file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "\\ %s\n", m.Name)

	fmt.Fprintln(w, "Minimize")
	fmt.Fprint(w, " obj:")
	if len(m.Objective()) == 0 && m.NumVars() > 0 {
		fmt.Fprint(w, " 0 x0")
	}
	for _, t := range m.Objective() {
		fmt.Fprintf(w, " %s x%d", coef(t.Coef), t.Var)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Subject To")
	for i, con := range m.Constraints() {
		fmt.Fprintf(w, " c%d:", i)
		for _, t := range con.Terms {
			fmt.Fprintf(w, " %s x%d", coef(t.Coef), t.Var)
		}
		fmt.Fprintf(w, " %s %g\n", senseToken(con.Sense), con.RHS)
	}

	fmt.Fprintln(w, "Bounds")
	for id, v := range m.Variables() {
		if v.Type != Integer {
			continue
		}
		if math.IsInf(v.UB, 1) {
			fmt.Fprintf(w, " %g <= x%d\n", v.LB, id)
		} else {
			fmt.Fprintf(w, " %g <= x%d <= %g\n", v.LB, id, v.UB)
		}
	}

	fmt.Fprintln(w, "Binaries")
	for id, v := range m.Variables() {
		if v.Type == Binary {
			fmt.Fprintf(w, " x%d\n", id)
		}
	}

	fmt.Fprintln(w, "Generals")
	for id, v := range m.Variables() {
		if v.Type == Integer {
			fmt.Fprintf(w, " x%d\n", id)
		}
	}

	fmt.Fprintln(w, "End")
	if err := w.Flush(); err != nil {
		return fmt.Errorf("write lp file: %w", err)
	}
	return nil
}

func writeStartFile(path string, m *Model) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write mip start: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for id, value := range m.Starts() {
		fmt.Fprintf(w, "x%d %g\n", id, value)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("write mip start: %w", err)
	}
	return nil
}

// parseSolutionFile reads cbc's solution format: a status line followed by
// one "<index> <name> <value> <reduced cost>" row per nonbasic variable.
func parseSolutionFile(path string, numVars int) (*Solution, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read solution file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if !scanner.Scan() {
		return nil, fmt.Errorf("solution file %s is empty", path)
	}
	header := scanner.Text()

	status, objective, hasSolution := parseStatusLine(header)
	if !hasSolution {
		return NewSolution(status, 0, nil, 0), nil
	}

	values := make([]float64, numVars)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 || !strings.HasPrefix(fields[1], "x") {
			continue
		}
		id, err := strconv.Atoi(fields[1][1:])
		if err != nil || id < 0 || id >= numVars {
			continue
		}
		value, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			continue
		}
		values[id] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read solution file: %w", err)
	}
	return NewSolution(status, objective, values, 0), nil
}

func parseStatusLine(line string) (Status, float64, bool) {
	lower := strings.ToLower(line)
	objective := parseObjective(line)
	// cbc reports missing incumbents as an objective around 1e50.
	found := !math.IsNaN(objective) && objective < 1e40

	switch {
	case strings.Contains(lower, "infeasible"):
		return StatusInfeasible, 0, false
	case strings.Contains(lower, "optimal"):
		return StatusOptimal, objective, found
	case strings.Contains(lower, "solution") && strings.Contains(lower, "stopped"):
		return StatusSolutionLimit, objective, found
	case strings.Contains(lower, "time"):
		if found {
			return StatusTimeLimitWithSolution, objective, true
		}
		return StatusTimeLimitNoSolution, 0, false
	default:
		return StatusError, 0, false
	}
}

func parseObjective(line string) float64 {
	marker := "objective value"
	idx := strings.Index(strings.ToLower(line), marker)
	if idx < 0 {
		return math.NaN()
	}
	fields := strings.Fields(line[idx+len(marker):])
	if len(fields) == 0 {
		return math.NaN()
	}
	value, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return math.NaN()
	}
	return value
}

func senseToken(s Sense) string {
	switch s {
	case LessEqual:
		return "<="
	case GreaterEqual:
		return ">="
	default:
		return "="
	}
}

// lastLines trims process output to its tail for logging.
func lastLines(out []byte, n int) []byte {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return []byte(strings.Join(lines, "\n"))
}

// coef renders a signed coefficient the LP format accepts mid-expression.
func coef(v float64) string {
	if v >= 0 {
		return fmt.Sprintf("+ %g", v)
	}
	return fmt.Sprintf("- %g", -v)
}
