// internal/common/errors/handler.go
package errors

import (
	"time"
)

// Handler normalizes stage errors and maps them onto per-team outcomes.
type Handler struct {
	logger Logger
}

type Logger interface {
	Error(msg string, fields map[string]interface{})
}

func NewHandler(logger Logger) *Handler {
	return &Handler{logger: logger}
}

// Normalize ensures we always have a PipelineError. Foreign errors become
// non-retryable internal errors so they surface loudly instead of cycling.
func (h *Handler) Normalize(err error) *PipelineError {
	if pe, ok := AsPipelineError(err); ok {
		return pe
	}
	return &PipelineError{
		Code:      "INTERNAL_ERROR",
		Category:  CategoryInvariant,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// CaptureTeamError logs a per-team stage failure and returns the reason string
// recorded in that team's terminal state. Per-team errors never propagate to
// sibling teams.
func (h *Handler) CaptureTeamError(runID, teamID, stage string, err error) string {
	pe := h.Normalize(err)
	h.logger.Error("Team stage failed", map[string]interface{}{
		"runId":     runID,
		"team":      teamID,
		"stage":     stage,
		"code":      string(pe.Code),
		"category":  string(pe.Category),
		"retryable": pe.Retryable,
		"details":   pe.Details,
	})
	return pe.Error()
}

// CaptureRunError logs a run-wide stage failure (ingestion, grouping) that
// aborts the run before team fan-out.
func (h *Handler) CaptureRunError(runID, stage string, err error) *PipelineError {
	pe := h.Normalize(err)
	h.logger.Error("Run stage failed", map[string]interface{}{
		"runId":    runID,
		"stage":    stage,
		"code":     string(pe.Code),
		"category": string(pe.Category),
		"details":  pe.Details,
	})
	return pe
}
