package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/optimo/internal/loader"
	"github.com/noah-isme/optimo/internal/service"
	"github.com/noah-isme/optimo/internal/solver"
	"github.com/noah-isme/optimo/pkg/jobs"
	"github.com/noah-isme/optimo/pkg/response"
	"github.com/noah-isme/optimo/pkg/storage"
)

// replaySolver returns the model's MIP start as an optimal incumbent.
type replaySolver struct{}

func (replaySolver) Solve(_ context.Context, m *solver.Model, _ solver.Options) (*solver.Solution, error) {
	values := make([]float64, m.NumVars())
	for id, value := range m.Starts() {
		values[id] = value
	}
	return solver.NewSolution(solver.StatusOptimal, 0, values, time.Millisecond), nil
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	deps := service.RunnerDeps{
		Loader:    loader.NewLoader([]string{"R1", "R2"}, nil, nil),
		WarmStart: service.NewWarmStartGenerator(nil),
		Builder:   service.NewScheduleModelBuilder(12, nil),
		Extractor: service.NewSolutionExtractor(replaySolver{}, solver.Options{}, nil),
		Analyzer:  service.NewUtilizationAnalyzer(0.70, 1.10, 0, 6, nil),
		Registrar: service.NewRegistrarService(nil, "", 10, 6, true, nil),
		Processor: service.NewActionProcessor(5, 5, nil),
		Workspace: service.NewWorkspaceManager(store, nil),
		Store:     store,
		Metrics:   service.NewMetricsService(),
	}
	runner := service.NewRunner(deps, 5, 1, 0, nil)

	runs := service.NewRunService(runner, nil, nil, nil, jobs.QueueConfig{Workers: 1, BufferSize: 4})
	runs.Start(context.Background())
	t.Cleanup(runs.Stop)

	r := gin.New()
	api := r.Group("/api/v1")
	NewRunHandler(runs).Register(api)
	return r
}

func writeInputBundle(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"Student_Info.csv": "Student ID,SPED\nST1,0\nST2,0\n",
		"Teacher_Info.csv": "Teacher ID,Department\nT1,Math\n",
		"Sections_Information.csv": "Section ID,Course ID,Teacher Assigned,# of Seats Available\n" +
			"S1,Algebra,T1,2\n",
		"Student_Preference_Info.csv": "Student ID,Preferred Sections\nST1,Algebra\nST2,Algebra\n",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func TestSubmitRunAccepted(t *testing.T) {
	router := newTestRouter(t)

	body := `{"input_dir": "` + strings.ReplaceAll(writeInputBundle(t), `\`, `\\`) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	data := envelope.Data.(map[string]any)
	assert.NotEmpty(t, data["run_id"])
	assert.Equal(t, "RUN_STARTED", data["status"])
}

func TestSubmitRunRejectsMalformedBody(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitRunRejectsMissingInputDir(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetRunNotFound(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/unknown", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListRuns(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
