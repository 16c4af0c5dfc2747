// internal/api/server_test.go
package api

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgdiag-pipeline/internal/common/auth"
	apperrors "orgdiag-pipeline/internal/common/errors"
	"orgdiag-pipeline/internal/common/logger"
	"orgdiag-pipeline/internal/models"
	"orgdiag-pipeline/internal/pipeline/orchestrator"
	"orgdiag-pipeline/internal/store/reportindex"
)

const testAdminToken = "test-admin-token"

// ==========================
// Fakes
// ==========================

type fakePipeline struct {
	startReq    *orchestrator.RunRequest
	startStatus *models.RunStatus
	startErr    error

	runs      map[string]*models.RunStatus
	cancelOK  bool
	cancelled []string

	artifacts map[string][]*models.RenderedArtifact
}

func (f *fakePipeline) StartRun(req *orchestrator.RunRequest) (*models.RunStatus, error) {
	f.startReq = req
	if f.startErr != nil {
		return nil, f.startErr
	}
	return f.startStatus, nil
}

func (f *fakePipeline) GetRun(runID string) (*models.RunStatus, bool) {
	status, ok := f.runs[runID]
	return status, ok
}

func (f *fakePipeline) CancelRun(runID string) bool {
	if !f.cancelOK {
		return false
	}
	f.cancelled = append(f.cancelled, runID)
	return true
}

func (f *fakePipeline) Artifact(runID, teamID string) (*models.RenderedArtifact, bool) {
	if _, ok := f.runs[runID]; !ok {
		return nil, false
	}
	for _, a := range f.artifacts[runID] {
		if a.TeamID == teamID {
			return a, true
		}
	}
	return nil, false
}

func (f *fakePipeline) Artifacts(runID string) ([]*models.RenderedArtifact, bool) {
	if _, ok := f.runs[runID]; !ok {
		return nil, false
	}
	return f.artifacts[runID], true
}

type fakeSearcher struct {
	query  string
	size   int
	result *reportindex.SearchResult
	err    error
}

func (f *fakeSearcher) Search(ctx context.Context, query string, size int) (*reportindex.SearchResult, error) {
	f.query = query
	f.size = size
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

// ==========================
// Helpers
// ==========================

func createTestServer(t *testing.T, pipeline *fakePipeline, search Searcher) *Server {
	t.Helper()
	log := logger.NewTestLogger(t)
	return NewServer(
		&Config{DatasetDir: t.TempDir()},
		ServerDependencies{
			Logger:   log,
			Pipeline: pipeline,
			Search:   search,
			Gate:     auth.NewGate(testAdminToken, log),
		},
	)
}

func doRequest(t *testing.T, s *Server, method, target, body string, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if authed {
		req.Header.Set("Authorization", "Bearer "+testAdminToken)
	}
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func writeDataset(t *testing.T, s *Server, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(s.config.DatasetDir, name), []byte(content), 0o644))
}

func runningStatus(runID string) *models.RunStatus {
	return &models.RunStatus{
		RunID:        runID,
		State:        models.RunStateIngesting,
		DatasetLabel: "q3-pulse",
		Teams:        map[string]models.TeamProgress{},
		StartedAt:    time.Now().UTC(),
	}
}

// ==========================
// Gate
// ==========================

func TestRoutes_RejectsRequestWithoutToken(t *testing.T) {
	server := createTestServer(t, &fakePipeline{runs: map[string]*models.RunStatus{}}, nil)

	rec := doRequest(t, server, http.MethodGet, "/api/v1/runs/abc", "", false)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "administrator credential required", decodeError(t, rec))
}

func TestRoutes_HealthIsOpen(t *testing.T) {
	server := createTestServer(t, &fakePipeline{}, nil)

	rec := doRequest(t, server, http.MethodGet, "/health", "", false)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestRoutes_MetricsIsOpen(t *testing.T) {
	server := createTestServer(t, &fakePipeline{}, nil)

	rec := doRequest(t, server, http.MethodGet, "/metrics", "", false)

	assert.Equal(t, http.StatusOK, rec.Code)
}

// ==========================
// Run lifecycle
// ==========================

func TestStartRun_InlineDataset(t *testing.T) {
	pipeline := &fakePipeline{startStatus: runningStatus("run-123")}
	server := createTestServer(t, pipeline, nil)

	dataset := "team_id,tenure_months,engagement\nalpha,12,4\n"
	payload, err := json.Marshal(StartRunRequest{
		Dataset:    dataset,
		TeamFilter: []string{"alpha"},
		Recipients: []models.Recipient{{Address: "lead@example.com", Name: "Alpha Lead"}},
	})
	require.NoError(t, err)

	rec := doRequest(t, server, http.MethodPost, "/api/v1/runs", string(payload), true)

	require.Equal(t, http.StatusAccepted, rec.Code)

	require.NotNil(t, pipeline.startReq)
	assert.Equal(t, "csv", pipeline.startReq.Format)
	assert.Equal(t, "inline", pipeline.startReq.DatasetLabel)
	assert.Equal(t, []string{"alpha"}, pipeline.startReq.TeamFilter)
	got, err := io.ReadAll(pipeline.startReq.Reader)
	require.NoError(t, err)
	assert.Equal(t, dataset, string(got))

	var status models.RunStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "run-123", status.RunID)
	assert.Equal(t, models.RunStateIngesting, status.State)
}

func TestStartRun_DatasetRef(t *testing.T) {
	pipeline := &fakePipeline{startStatus: runningStatus("run-456")}
	server := createTestServer(t, pipeline, nil)
	writeDataset(t, server, "q3-pulse.csv", "team_id,engagement\nbeta,3\n")

	rec := doRequest(t, server, http.MethodPost, "/api/v1/runs", `{"datasetRef":"q3-pulse.csv"}`, true)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.NotNil(t, pipeline.startReq)
	assert.Equal(t, "csv", pipeline.startReq.Format)
	assert.Equal(t, "q3-pulse", pipeline.startReq.DatasetLabel)
	got, err := io.ReadAll(pipeline.startReq.Reader)
	require.NoError(t, err)
	assert.Contains(t, string(got), "beta,3")
}

func TestStartRun_JSONFormatInferredFromRef(t *testing.T) {
	pipeline := &fakePipeline{startStatus: runningStatus("run-789")}
	server := createTestServer(t, pipeline, nil)
	writeDataset(t, server, "pulse.json", `[{"team_id":"gamma"}]`)

	rec := doRequest(t, server, http.MethodPost, "/api/v1/runs", `{"datasetRef":"pulse.json"}`, true)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "json", pipeline.startReq.Format)
}

func TestStartRun_RefEscapingDatasetDir(t *testing.T) {
	server := createTestServer(t, &fakePipeline{}, nil)

	rec := doRequest(t, server, http.MethodPost, "/api/v1/runs", `{"datasetRef":"../secrets.csv"}`, true)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec), "escapes the dataset directory")
}

func TestStartRun_UnknownRef(t *testing.T) {
	server := createTestServer(t, &fakePipeline{}, nil)

	rec := doRequest(t, server, http.MethodPost, "/api/v1/runs", `{"datasetRef":"missing.csv"}`, true)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec), "not found")
}

func TestStartRun_RequiresDataset(t *testing.T) {
	server := createTestServer(t, &fakePipeline{}, nil)

	rec := doRequest(t, server, http.MethodPost, "/api/v1/runs", `{}`, true)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec), "datasetRef or inline dataset")
}

func TestStartRun_RejectsBothSources(t *testing.T) {
	server := createTestServer(t, &fakePipeline{}, nil)

	body := `{"datasetRef":"a.csv","dataset":"team_id\nalpha"}`
	rec := doRequest(t, server, http.MethodPost, "/api/v1/runs", body, true)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec), "mutually exclusive")
}

func TestStartRun_RejectsUnsupportedFormat(t *testing.T) {
	server := createTestServer(t, &fakePipeline{}, nil)

	body := `{"dataset":"team_id\nalpha","format":"xml"}`
	rec := doRequest(t, server, http.MethodPost, "/api/v1/runs", body, true)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec), "unsupported format")
}

func TestStartRun_InvalidBody(t *testing.T) {
	server := createTestServer(t, &fakePipeline{}, nil)

	rec := doRequest(t, server, http.MethodPost, "/api/v1/runs", "{not json", true)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec), "invalid request body")
}

func TestStartRun_InputErrorMapsToBadRequest(t *testing.T) {
	pipeline := &fakePipeline{startErr: apperrors.NewMalformedInputError("required column team_id absent")}
	server := createTestServer(t, pipeline, nil)

	rec := doRequest(t, server, http.MethodPost, "/api/v1/runs", `{"dataset":"bogus"}`, true)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec), "Dataset is malformed")
}

func TestStartRun_InternalErrorMapsToServerError(t *testing.T) {
	pipeline := &fakePipeline{startErr: errors.New("registry wedged")}
	server := createTestServer(t, pipeline, nil)

	rec := doRequest(t, server, http.MethodPost, "/api/v1/runs", `{"dataset":"team_id\nalpha"}`, true)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "failed to start run", decodeError(t, rec))
}

func TestGetRun_ReturnsSnapshot(t *testing.T) {
	status := runningStatus("run-123")
	server := createTestServer(t, &fakePipeline{runs: map[string]*models.RunStatus{"run-123": status}}, nil)

	rec := doRequest(t, server, http.MethodGet, "/api/v1/runs/run-123", "", true)

	require.Equal(t, http.StatusOK, rec.Code)
	var got models.RunStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "run-123", got.RunID)
	assert.Equal(t, "q3-pulse", got.DatasetLabel)
}

func TestGetRun_NotFound(t *testing.T) {
	server := createTestServer(t, &fakePipeline{runs: map[string]*models.RunStatus{}}, nil)

	rec := doRequest(t, server, http.MethodGet, "/api/v1/runs/ghost", "", true)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "run not found", decodeError(t, rec))
}

func TestCancelRun_Accepted(t *testing.T) {
	status := runningStatus("run-123")
	pipeline := &fakePipeline{
		runs:     map[string]*models.RunStatus{"run-123": status},
		cancelOK: true,
	}
	server := createTestServer(t, pipeline, nil)

	rec := doRequest(t, server, http.MethodPost, "/api/v1/runs/run-123/cancel", "", true)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"run-123"}, pipeline.cancelled)
}

func TestCancelRun_NotFound(t *testing.T) {
	server := createTestServer(t, &fakePipeline{runs: map[string]*models.RunStatus{}}, nil)

	rec := doRequest(t, server, http.MethodPost, "/api/v1/runs/ghost/cancel", "", true)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelRun_AlreadyFinished(t *testing.T) {
	status := runningStatus("run-123")
	status.State = models.RunStateCompleted
	pipeline := &fakePipeline{
		runs:     map[string]*models.RunStatus{"run-123": status},
		cancelOK: false,
	}
	server := createTestServer(t, pipeline, nil)

	rec := doRequest(t, server, http.MethodPost, "/api/v1/runs/run-123/cancel", "", true)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "run already finished", decodeError(t, rec))
}

// ==========================
// Artifacts
// ==========================

func TestArtifact_ServesPDF(t *testing.T) {
	pdf := []byte("%PDF-1.7 fake")
	pipeline := &fakePipeline{
		runs: map[string]*models.RunStatus{"run-123": runningStatus("run-123")},
		artifacts: map[string][]*models.RenderedArtifact{
			"run-123": {{TeamID: "alpha", PDF: pdf, Size: int64(len(pdf))}},
		},
	}
	server := createTestServer(t, pipeline, nil)

	rec := doRequest(t, server, http.MethodGet, "/api/v1/runs/run-123/artifacts/alpha", "", true)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "alpha_orgdiag_report.pdf")
	assert.Equal(t, pdf, rec.Body.Bytes())
}

func TestArtifact_RunNotFound(t *testing.T) {
	server := createTestServer(t, &fakePipeline{runs: map[string]*models.RunStatus{}}, nil)

	rec := doRequest(t, server, http.MethodGet, "/api/v1/runs/ghost/artifacts/alpha", "", true)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "run not found", decodeError(t, rec))
}

func TestArtifact_MissingTeam(t *testing.T) {
	pipeline := &fakePipeline{
		runs: map[string]*models.RunStatus{"run-123": runningStatus("run-123")},
	}
	server := createTestServer(t, pipeline, nil)

	rec := doRequest(t, server, http.MethodGet, "/api/v1/runs/run-123/artifacts/omega", "", true)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, decodeError(t, rec), "no rendered report for team omega")
}

func TestArchive_ServesZip(t *testing.T) {
	pipeline := &fakePipeline{
		runs: map[string]*models.RunStatus{"run-123": runningStatus("run-123")},
		artifacts: map[string][]*models.RenderedArtifact{
			"run-123": {
				{TeamID: "alpha", PDF: []byte("pdf-a"), RenderedAt: time.Now()},
				{TeamID: "beta", PDF: []byte("pdf-b"), RenderedAt: time.Now()},
			},
		},
	}
	server := createTestServer(t, pipeline, nil)

	rec := doRequest(t, server, http.MethodGet, "/api/v1/runs/run-123/archive", "", true)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "run-123_orgdiag_reports.zip")

	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 2)
	assert.Equal(t, "alpha_orgdiag_report.pdf", zr.File[0].Name)
	assert.Equal(t, "beta_orgdiag_report.pdf", zr.File[1].Name)
}

func TestArchive_NoRenderedReports(t *testing.T) {
	pipeline := &fakePipeline{
		runs: map[string]*models.RunStatus{"run-123": runningStatus("run-123")},
	}
	server := createTestServer(t, pipeline, nil)

	rec := doRequest(t, server, http.MethodGet, "/api/v1/runs/run-123/archive", "", true)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "run has no rendered reports", decodeError(t, rec))
}

// ==========================
// Search
// ==========================

func TestSearch_ReturnsDocs(t *testing.T) {
	search := &fakeSearcher{
		result: &reportindex.SearchResult{
			Docs:      []reportindex.TeamReportDoc{{RunID: "run-123", TeamID: "alpha"}},
			TotalHits: 1,
		},
	}
	server := createTestServer(t, &fakePipeline{}, search)

	rec := doRequest(t, server, http.MethodGet, "/api/v1/runs/search?q=alpha&size=5", "", true)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alpha", search.query)
	assert.Equal(t, 5, search.size)

	var result reportindex.SearchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Len(t, result.Docs, 1)
	assert.Equal(t, "run-123", result.Docs[0].RunID)
}

func TestSearch_NotConfigured(t *testing.T) {
	server := createTestServer(t, &fakePipeline{}, nil)

	rec := doRequest(t, server, http.MethodGet, "/api/v1/runs/search?q=alpha", "", true)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "report search is not configured", decodeError(t, rec))
}

func TestSearch_InvalidSize(t *testing.T) {
	server := createTestServer(t, &fakePipeline{}, &fakeSearcher{})

	rec := doRequest(t, server, http.MethodGet, "/api/v1/runs/search?size=banana", "", true)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearch_UpstreamError(t *testing.T) {
	search := &fakeSearcher{err: errors.New("index unreachable")}
	server := createTestServer(t, &fakePipeline{}, search)

	rec := doRequest(t, server, http.MethodGet, "/api/v1/runs/search?q=alpha", "", true)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "report search failed", decodeError(t, rec))
}
