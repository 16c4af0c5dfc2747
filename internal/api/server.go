// internal/api/server.go
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"orgdiag-pipeline/internal/archive"
	"orgdiag-pipeline/internal/common/auth"
	apperrors "orgdiag-pipeline/internal/common/errors"
	"orgdiag-pipeline/internal/common/logger"
	"orgdiag-pipeline/internal/models"
	"orgdiag-pipeline/internal/pipeline/ingest"
	"orgdiag-pipeline/internal/pipeline/orchestrator"
	"orgdiag-pipeline/internal/store/reportindex"
)

// Pipeline is the slice of the orchestrator the HTTP surface drives.
type Pipeline interface {
	StartRun(req *orchestrator.RunRequest) (*models.RunStatus, error)
	GetRun(runID string) (*models.RunStatus, bool)
	CancelRun(runID string) bool
	Artifact(runID, teamID string) (*models.RenderedArtifact, bool)
	Artifacts(runID string) ([]*models.RenderedArtifact, bool)
}

// Searcher queries the report index. Nil when Elasticsearch is disabled.
type Searcher interface {
	Search(ctx context.Context, query string, size int) (*reportindex.SearchResult, error)
}

// Config holds the HTTP surface settings.
type Config struct {
	// DatasetDir is the root directory dataset references resolve under.
	// References escaping it are rejected.
	DatasetDir string
}

// ServerDependencies defines the collaborators of the HTTP surface.
type ServerDependencies struct {
	Logger   logger.Logger
	Pipeline Pipeline
	Search   Searcher
	Gate     *auth.Gate
}

// Server exposes the admin pipeline API. All /api/v1 routes sit behind the
// bearer gate; health and metrics stay open.
type Server struct {
	config   *Config
	pipeline Pipeline
	search   Searcher
	gate     *auth.Gate
	logger   logger.Logger
}

// NewServer creates the HTTP surface.
func NewServer(config *Config, deps ServerDependencies) *Server {
	return &Server{
		config:   config,
		pipeline: deps.Pipeline,
		search:   deps.Search,
		gate:     deps.Gate,
		logger:   deps.Logger.WithFields(map[string]interface{}{"component": "api"}),
	}
}

// Routes builds the full handler tree.
func (s *Server) Routes() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /api/v1/runs", s.handleStartRun)
	api.HandleFunc("GET /api/v1/runs/search", s.handleSearch)
	api.HandleFunc("GET /api/v1/runs/{id}", s.handleGetRun)
	api.HandleFunc("POST /api/v1/runs/{id}/cancel", s.handleCancelRun)
	api.HandleFunc("GET /api/v1/runs/{id}/artifacts/{team}", s.handleArtifact)
	api.HandleFunc("GET /api/v1/runs/{id}/archive", s.handleArchive)

	root := http.NewServeMux()
	root.Handle("/api/v1/", s.gate.Middleware(api))
	root.HandleFunc("GET /health", s.handleHealth)
	root.HandleFunc("GET /ready", s.handleHealth)
	root.Handle("GET /metrics", promhttp.Handler())
	return root
}

// ==========================
// Run lifecycle
// ==========================

// StartRunRequest is the POST /api/v1/runs body. Exactly one of DatasetRef
// and Dataset must be set.
type StartRunRequest struct {
	DatasetRef   string             `json:"datasetRef,omitempty"`
	Dataset      string             `json:"dataset,omitempty"`
	Format       string             `json:"format,omitempty"`
	DatasetLabel string             `json:"datasetLabel,omitempty"`
	TeamFilter   []string           `json:"teamFilter,omitempty"`
	Recipients   []models.Recipient `json:"recipients,omitempty"`
	TemplateID   string             `json:"templateId,omitempty"`
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req StartRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %s", err.Error()))
		return
	}

	runReq, err := s.buildRunRequest(&req)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	status, err := s.pipeline.StartRun(runReq)
	if err != nil {
		if apperrors.IsInputError(err) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("run start failed", map[string]interface{}{"error": err.Error()})
		s.writeError(w, http.StatusInternalServerError, "failed to start run")
		return
	}

	s.logger.Info("run accepted", map[string]interface{}{
		"runId":   status.RunID,
		"dataset": status.DatasetLabel,
	})
	s.writeJSON(w, http.StatusAccepted, status)
}

// buildRunRequest resolves the dataset source into an orchestrator request.
func (s *Server) buildRunRequest(req *StartRunRequest) (*orchestrator.RunRequest, error) {
	if req.DatasetRef != "" && req.Dataset != "" {
		return nil, errors.New("datasetRef and dataset are mutually exclusive")
	}

	format := strings.ToLower(strings.TrimSpace(req.Format))
	if format != "" && format != ingest.FormatCSV && format != ingest.FormatJSON {
		return nil, fmt.Errorf("unsupported format %q, expected %q or %q", req.Format, ingest.FormatCSV, ingest.FormatJSON)
	}

	run := &orchestrator.RunRequest{
		DatasetLabel: strings.TrimSpace(req.DatasetLabel),
		Format:       format,
		TeamFilter:   req.TeamFilter,
		Recipients:   req.Recipients,
		TemplateID:   req.TemplateID,
	}

	switch {
	case req.Dataset != "":
		run.Reader = strings.NewReader(req.Dataset)
		if run.Format == "" {
			run.Format = ingest.FormatCSV
		}
		if run.DatasetLabel == "" {
			run.DatasetLabel = "inline"
		}
	case req.DatasetRef != "":
		data, err := s.readDataset(req.DatasetRef)
		if err != nil {
			return nil, err
		}
		run.Reader = bytes.NewReader(data)
		if run.Format == "" {
			run.Format = ingest.FormatForPath(req.DatasetRef)
		}
		if run.DatasetLabel == "" {
			base := filepath.Base(req.DatasetRef)
			run.DatasetLabel = strings.TrimSuffix(base, filepath.Ext(base))
		}
	default:
		return nil, errors.New("a datasetRef or inline dataset is required")
	}

	return run, nil
}

// readDataset loads a dataset reference from the configured directory. The
// whole file is read up front so the run never holds an open handle.
func (s *Server) readDataset(ref string) ([]byte, error) {
	cleaned := filepath.Clean(ref)
	if !filepath.IsLocal(cleaned) {
		return nil, fmt.Errorf("dataset reference %q escapes the dataset directory", ref)
	}
	data, err := os.ReadFile(filepath.Join(s.config.DatasetDir, cleaned))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("dataset %q not found", ref)
		}
		return nil, fmt.Errorf("failed to read dataset %q: %w", ref, err)
	}
	return data, nil
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	status, ok := s.pipeline.GetRun(r.PathValue("id"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	if _, ok := s.pipeline.GetRun(runID); !ok {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if !s.pipeline.CancelRun(runID) {
		s.writeError(w, http.StatusConflict, "run already finished")
		return
	}

	status, ok := s.pipeline.GetRun(runID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	s.writeJSON(w, http.StatusAccepted, status)
}

// ==========================
// Artifacts
// ==========================

func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	teamID := r.PathValue("team")

	if _, ok := s.pipeline.GetRun(runID); !ok {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	artifact, ok := s.pipeline.Artifact(runID, teamID)
	if !ok || len(artifact.PDF) == 0 {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("no rendered report for team %s", teamID))
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", models.ReportFilename(teamID)))
	w.Header().Set("Content-Length", strconv.Itoa(len(artifact.PDF)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(artifact.PDF)
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")

	artifacts, ok := s.pipeline.Artifacts(runID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	bundle, err := archive.BundleReports(artifacts)
	if err != nil {
		if errors.Is(err, archive.ErrNoArtifacts) {
			s.writeError(w, http.StatusNotFound, "run has no rendered reports")
			return
		}
		s.logger.Error("archive build failed", map[string]interface{}{"runId": runID, "error": err.Error()})
		s.writeError(w, http.StatusInternalServerError, "failed to build archive")
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", runID+"_orgdiag_reports.zip"))
	w.Header().Set("Content-Length", strconv.Itoa(len(bundle)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(bundle)
}

// ==========================
// Search
// ==========================

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.search == nil {
		s.writeError(w, http.StatusServiceUnavailable, "report search is not configured")
		return
	}

	size := 0
	if raw := r.URL.Query().Get("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "size must be a non-negative integer")
			return
		}
		size = n
	}

	result, err := s.search.Search(r.Context(), r.URL.Query().Get("q"), size)
	if err != nil {
		s.logger.Error("report search failed", map[string]interface{}{"error": err.Error()})
		s.writeError(w, http.StatusBadGateway, "report search failed")
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// ==========================
// Health
// ==========================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// ==========================
// Response helpers
// ==========================

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("response encode failed", map[string]interface{}{"error": err.Error()})
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
