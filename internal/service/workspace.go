package service

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/optimo/internal/models"
	"github.com/noah-isme/optimo/pkg/export"
	"github.com/noah-isme/optimo/pkg/storage"
)

// Per-run metadata and audit file names.
const (
	fileRunMetadata      = "metadata.json"
	fileIterMetrics      = "metrics.json"
	fileRegistrarActions = "registrar_actions.json"
	fileChangesLog       = "changes_log.json"
	fileAnalysis         = "utilization_analysis.json"
	fileModifiedSections = "modified_sections.csv"
)

// IterationWorkspace names the directories of one iteration.
type IterationWorkspace struct {
	IterDir   string
	InputDir  string
	OutputDir string
}

// WorkspaceManager lays out run directories:
//
//	runs/run_<ts>/iterations/iter_N/{input,output}
//	runs/run_<ts>/final
//	runs/run_<ts>/metadata.json
//
// Each iteration gets its own copy of the inputs so no two solves share
// mutable files.
type WorkspaceManager struct {
	store  *storage.LocalStorage
	logger *zap.Logger
}

// NewWorkspaceManager builds a manager over a storage root.
func NewWorkspaceManager(store *storage.LocalStorage, logger *zap.Logger) *WorkspaceManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkspaceManager{store: store, logger: logger}
}

// StartRun creates the run directory tree and seed metadata, returning the
// run's relative path.
func (m *WorkspaceManager) StartRun(runID string, startedAt time.Time) (string, error) {
	runDir := filepath.Join("runs", fmt.Sprintf("run_%s", startedAt.Format("20060102_150405")))
	for _, sub := range []string{"iterations", "logs", "final"} {
		if _, err := m.store.MkdirAll(filepath.Join(runDir, sub)); err != nil {
			return "", err
		}
	}

	metadata := map[string]any{
		"run_id":     runID,
		"start_time": startedAt.Format(time.RFC3339),
		"status":     string(models.RunStarted),
	}
	if _, err := m.store.SaveJSON(filepath.Join(runDir, fileRunMetadata), metadata); err != nil {
		return "", err
	}

	m.logger.Info("run workspace created", zap.String("run_dir", runDir))
	return runDir, nil
}

// ImportBase copies the caller's input files into the run's base directory so
// every iteration is prepared from an immutable snapshot. srcDir may live
// anywhere on disk. Returns the base directory relative to the storage root.
func (m *WorkspaceManager) ImportBase(runDir, srcDir string) (string, error) {
	baseDir := filepath.Join(runDir, "base")
	if _, err := m.store.MkdirAll(baseDir); err != nil {
		return "", err
	}

	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return "", fmt.Errorf("read input directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".csv" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(srcDir, entry.Name()))
		if err != nil {
			return "", fmt.Errorf("read input file %s: %w", entry.Name(), err)
		}
		if _, err := m.store.Save(filepath.Join(baseDir, entry.Name()), data); err != nil {
			return "", err
		}
	}
	return baseDir, nil
}

// PrepareIteration creates the iteration's input/output directories and copies
// the base roster files in. When the previous iteration produced a modified
// section roster, that file replaces the base sections.
func (m *WorkspaceManager) PrepareIteration(runDir, baseInputDir string, iteration int) (*IterationWorkspace, error) {
	iterDir := filepath.Join(runDir, "iterations", fmt.Sprintf("iter_%d", iteration))
	ws := &IterationWorkspace{
		IterDir:   iterDir,
		InputDir:  filepath.Join(iterDir, "input"),
		OutputDir: filepath.Join(iterDir, "output"),
	}
	for _, dir := range []string{ws.InputDir, ws.OutputDir} {
		if _, err := m.store.MkdirAll(dir); err != nil {
			return nil, err
		}
	}

	staticFiles := []string{
		"Student_Info.csv",
		"Student_Preference_Info.csv",
		"Teacher_Info.csv",
		"Teacher_unavailability.csv",
		"Period.csv",
	}
	for _, name := range staticFiles {
		src := filepath.Join(baseInputDir, name)
		if !m.store.Exists(src) {
			continue
		}
		if err := m.store.CopyFile(src, filepath.Join(ws.InputDir, name)); err != nil {
			return nil, err
		}
	}

	prevModified := filepath.Join(runDir, "iterations", fmt.Sprintf("iter_%d", iteration-1), fileModifiedSections)
	sectionsSrc := filepath.Join(baseInputDir, "Sections_Information.csv")
	if iteration > 0 && m.store.Exists(prevModified) {
		sectionsSrc = prevModified
		m.logger.Info("using modified sections from previous iteration", zap.String("src", prevModified))
	}
	if m.store.Exists(sectionsSrc) {
		if err := m.store.CopyFile(sectionsSrc, filepath.Join(ws.InputDir, "Sections_Information.csv")); err != nil {
			return nil, err
		}
	}

	return ws, nil
}

// InputPath resolves the iteration input dir to an absolute path for loaders.
func (m *WorkspaceManager) InputPath(ws *IterationWorkspace) string {
	return filepath.Join(m.store.BaseDir(), ws.InputDir)
}

// OutputPath resolves the iteration output dir to an absolute path.
func (m *WorkspaceManager) OutputPath(ws *IterationWorkspace) string {
	return filepath.Join(m.store.BaseDir(), ws.OutputDir)
}

// SaveIterationArtifacts persists the per-iteration audit files.
func (m *WorkspaceManager) SaveIterationArtifacts(ws *IterationWorkspace, record *models.IterationRecord, actions []models.Action, changes *models.ChangeLog) error {
	if _, err := m.store.SaveJSON(filepath.Join(ws.IterDir, fileIterMetrics), record); err != nil {
		return err
	}
	if record.Analysis != nil {
		if _, err := m.store.SaveJSON(filepath.Join(ws.IterDir, fileAnalysis), record.Analysis); err != nil {
			return err
		}
	}
	if actions != nil {
		if _, err := m.store.SaveJSON(filepath.Join(ws.IterDir, fileRegistrarActions), actions); err != nil {
			return err
		}
	}
	if changes != nil {
		if _, err := m.store.SaveJSON(filepath.Join(ws.IterDir, fileChangesLog), changes); err != nil {
			return err
		}
	}
	return nil
}

// SaveModifiedSections writes the mutated roster for the next iteration.
func (m *WorkspaceManager) SaveModifiedSections(ws *IterationWorkspace, sections []models.Section) error {
	data := export.Dataset{
		Headers: []string{"Section ID", "Course ID", "Teacher Assigned", "# of Seats Available"},
	}
	for _, section := range sections {
		data.Append(map[string]string{
			"Section ID":           section.ID,
			"Course ID":            section.CourseID,
			"Teacher Assigned":     section.TeacherID,
			"# of Seats Available": fmt.Sprintf("%d", section.Capacity),
		})
	}
	content, err := export.NewCSVExporter().Render(data)
	if err != nil {
		return err
	}
	_, err = m.store.Save(filepath.Join(ws.IterDir, fileModifiedSections), content)
	return err
}

// FinalizeRun copies the best iteration's CSV artifacts into final/ and closes
// the run metadata.
func (m *WorkspaceManager) FinalizeRun(runDir string, record *models.RunRecord) (string, error) {
	bestOutput := filepath.Join(runDir, "iterations", fmt.Sprintf("iter_%d", record.BestIteration), "output")
	finalDir := filepath.Join(runDir, "final")

	matches, err := m.store.Glob(filepath.Join(bestOutput, "*.csv"))
	if err != nil {
		return "", err
	}
	for _, match := range matches {
		if err := m.store.CopyFile(match, filepath.Join(finalDir, filepath.Base(match))); err != nil {
			return "", err
		}
	}

	metadata := map[string]any{}
	if f, err := m.store.Open(filepath.Join(runDir, fileRunMetadata)); err == nil {
		raw, readErr := io.ReadAll(f)
		f.Close()
		if readErr == nil {
			_ = json.Unmarshal(raw, &metadata)
		}
	}
	metadata["end_time"] = record.EndedAt.Format(time.RFC3339)
	metadata["status"] = string(record.Status)
	metadata["best_iteration"] = record.BestIteration
	metadata["best_score"] = record.BestScore
	metadata["total_iterations"] = record.TotalIterations
	if _, err := m.store.SaveJSON(filepath.Join(runDir, fileRunMetadata), metadata); err != nil {
		return "", err
	}

	m.logger.Info("run finalized",
		zap.String("final_dir", finalDir),
		zap.Int("best_iteration", record.BestIteration))

	return filepath.Join(m.store.BaseDir(), finalDir), nil
}
