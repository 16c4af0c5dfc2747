// Package errors provides the structured error taxonomy shared by every
// pipeline stage: input, configuration, transient-external, permanent-external
// and invariant classes, each with a stable code and retryability.
package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// Category groups error codes by how the orchestrator must react to them.
type Category string

const (
	// CategoryInput: malformed, empty or low-quality data. Fails the run
	// before any team-level work starts.
	CategoryInput Category = "INPUT"
	// CategoryConfig: missing credentials or broken configuration. Fail fast,
	// never retried.
	CategoryConfig Category = "CONFIG"
	// CategoryTransient: timeouts and connection drops on external calls.
	// Retried with bounded backoff, then degraded to a partial outcome.
	CategoryTransient Category = "TRANSIENT"
	// CategoryPermanent: auth failures, invalid recipients, missing templates.
	// Recorded as failed for the team or recipient, never retried.
	CategoryPermanent Category = "PERMANENT"
	// CategoryInvariant: internal mismatch. Always fatal, indicates a defect.
	CategoryInvariant Category = "INVARIANT"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeMalformedInput ErrorCode = "MALFORMED_INPUT"
	ErrCodeEmptyDataset   ErrorCode = "EMPTY_DATASET"
	ErrCodeDataQuality    ErrorCode = "DATA_QUALITY"

	ErrCodeInterpreterConfig ErrorCode = "INTERPRETER_CONFIG"
	ErrCodeDispatchConfig    ErrorCode = "DISPATCH_CONFIG"
	ErrCodeConfigInvalid     ErrorCode = "CONFIG_INVALID"

	ErrCodeInterpretationTimeout ErrorCode = "INTERPRETATION_TIMEOUT"
	ErrCodeInterpretationFailed  ErrorCode = "INTERPRETATION_FAILED"
	ErrCodeRenderTimeout         ErrorCode = "RENDER_TIMEOUT"
	ErrCodeRenderFailed          ErrorCode = "RENDER_FAILED"
	ErrCodeDeliveryTransport     ErrorCode = "DELIVERY_TRANSPORT"

	ErrCodeTemplateNotFound ErrorCode = "TEMPLATE_NOT_FOUND"
	ErrCodeInvalidRecipient ErrorCode = "INVALID_RECIPIENT"
	ErrCodeDeliveryAuth     ErrorCode = "DELIVERY_AUTH"

	ErrCodeInvariantViolation ErrorCode = "INVARIANT_VIOLATION"

	ErrCodeRunLogWrite ErrorCode = "RUNLOG_WRITE_FAILED"
	ErrCodeRunCancel   ErrorCode = "RUN_CANCELLED"
)

// PipelineError represents a structured pipeline error.
type PipelineError struct {
	Code      ErrorCode              `json:"code"`
	Category  Category               `json:"category"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("PipelineError[%s]: %s", e.Code, e.Message)
}

// ==========================
// Input errors
// ==========================

// NewMalformedInputError creates a run-fatal input error (required columns absent,
// unreadable file).
func NewMalformedInputError(details string) *PipelineError {
	return &PipelineError{
		Code:      ErrCodeMalformedInput,
		Category:  CategoryInput,
		Message:   "Dataset is malformed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewEmptyDatasetError creates a run-fatal input error for zero usable rows.
func NewEmptyDatasetError(label string) *PipelineError {
	return &PipelineError{
		Code:      ErrCodeEmptyDataset,
		Category:  CategoryInput,
		Message:   "Dataset contains no usable rows",
		Details:   fmt.Sprintf("dataset: %s", label),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDataQualityError creates a run-fatal input error for a malformed-row ratio
// above the configured threshold.
func NewDataQualityError(malformed, total int, threshold float64) *PipelineError {
	return &PipelineError{
		Code:      ErrCodeDataQuality,
		Category:  CategoryInput,
		Message:   "Malformed-row ratio exceeds threshold",
		Details:   fmt.Sprintf("malformed: %d of %d, threshold: %.2f", malformed, total, threshold),
		Retryable: false,
		Metadata: map[string]interface{}{
			"malformedRows": malformed,
			"totalRows":     total,
			"threshold":     threshold,
		},
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// Config errors
// ==========================

// NewInterpreterConfigError creates a fail-fast configuration error for the
// interpretation capability, e.g. a missing API key. Retrying cannot help.
func NewInterpreterConfigError(details string) *PipelineError {
	return &PipelineError{
		Code:      ErrCodeInterpreterConfig,
		Category:  CategoryConfig,
		Message:   "Interpreter is not configured",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDispatchConfigError creates a fail-fast configuration error for the
// delivery transport.
func NewDispatchConfigError(details string) *PipelineError {
	return &PipelineError{
		Code:      ErrCodeDispatchConfig,
		Category:  CategoryConfig,
		Message:   "Delivery transport is not configured",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewConfigInvalidError creates a generic fail-fast configuration error.
func NewConfigInvalidError(details string) *PipelineError {
	return &PipelineError{
		Code:      ErrCodeConfigInvalid,
		Category:  CategoryConfig,
		Message:   "Configuration is invalid",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// Transient external errors
// ==========================

// NewInterpretationTimeoutError creates a retryable timeout error for one team's
// interpretation call.
func NewInterpretationTimeoutError(teamID string) *PipelineError {
	return &PipelineError{
		Code:      ErrCodeInterpretationTimeout,
		Category:  CategoryTransient,
		Message:   "Interpretation call timed out",
		Details:   fmt.Sprintf("team: %s", teamID),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewInterpretationFailedError creates a retryable transport error for one
// team's interpretation call.
func NewInterpretationFailedError(teamID string, err error) *PipelineError {
	return &PipelineError{
		Code:      ErrCodeInterpretationFailed,
		Category:  CategoryTransient,
		Message:   "Interpretation call failed",
		Details:   fmt.Sprintf("team: %s, error: %s", teamID, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewRenderTimeoutError creates a retryable render timeout error.
func NewRenderTimeoutError(teamID string) *PipelineError {
	return &PipelineError{
		Code:      ErrCodeRenderTimeout,
		Category:  CategoryTransient,
		Message:   "Render exceeded the per-team timeout",
		Details:   fmt.Sprintf("team: %s", teamID),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewRenderFailedError creates a retryable render engine error.
func NewRenderFailedError(teamID string, err error) *PipelineError {
	return &PipelineError{
		Code:      ErrCodeRenderFailed,
		Category:  CategoryTransient,
		Message:   "Render engine error",
		Details:   fmt.Sprintf("team: %s, error: %s", teamID, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewDeliveryTransportError creates a retryable delivery transport error.
func NewDeliveryTransportError(recipient string, err error) *PipelineError {
	return &PipelineError{
		Code:      ErrCodeDeliveryTransport,
		Category:  CategoryTransient,
		Message:   "Delivery transport error",
		Details:   fmt.Sprintf("recipient: %s, error: %s", recipient, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// Permanent external errors
// ==========================

// NewTemplateNotFoundError creates a non-retryable template error.
func NewTemplateNotFoundError(templateID string) *PipelineError {
	return &PipelineError{
		Code:      ErrCodeTemplateNotFound,
		Category:  CategoryPermanent,
		Message:   "Template not found in registry",
		Details:   fmt.Sprintf("templateId: %s", templateID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidRecipientError creates a non-retryable recipient address error.
func NewInvalidRecipientError(address string) *PipelineError {
	return &PipelineError{
		Code:      ErrCodeInvalidRecipient,
		Category:  CategoryPermanent,
		Message:   "Recipient address is invalid",
		Details:   fmt.Sprintf("address: %s", address),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDeliveryAuthError creates a non-retryable delivery authentication error.
// Remaining recipients of the same request fail immediately.
func NewDeliveryAuthError(details string) *PipelineError {
	return &PipelineError{
		Code:      ErrCodeDeliveryAuth,
		Category:  CategoryPermanent,
		Message:   "Delivery transport authentication failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// Invariant errors
// ==========================

// NewInvariantViolationError creates a fatal defect-class error.
func NewInvariantViolationError(details string) *PipelineError {
	return &PipelineError{
		Code:      ErrCodeInvariantViolation,
		Category:  CategoryInvariant,
		Message:   "Internal invariant violated",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// Auxiliary
// ==========================

// NewRunLogWriteError wraps a run-log persistence failure. Non-fatal to the run.
func NewRunLogWriteError(err error) *PipelineError {
	return &PipelineError{
		Code:      ErrCodeRunLogWrite,
		Category:  CategoryTransient,
		Message:   "Run-log write failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewRunCancelledError marks work abandoned because the run was cancelled.
func NewRunCancelledError(runID string) *PipelineError {
	return &PipelineError{
		Code:      ErrCodeRunCancel,
		Category:  CategoryPermanent,
		Message:   "Run cancelled",
		Details:   fmt.Sprintf("runId: %s", runID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// Utility Functions
// ==========================

// AsPipelineError extracts a *PipelineError from an error chain.
func AsPipelineError(err error) (*PipelineError, bool) {
	var pe *PipelineError
	if stderrors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// CategoryOf returns the taxonomy category of err, or empty for foreign errors.
func CategoryOf(err error) Category {
	if pe, ok := AsPipelineError(err); ok {
		return pe.Category
	}
	return ""
}

// IsInputError reports whether err is a run-fatal input error.
func IsInputError(err error) bool { return CategoryOf(err) == CategoryInput }

// IsConfigError reports whether err is a fail-fast configuration error.
func IsConfigError(err error) bool { return CategoryOf(err) == CategoryConfig }

// IsTransient reports whether err is a retryable external error.
func IsTransient(err error) bool { return CategoryOf(err) == CategoryTransient }

// IsPermanent reports whether err is a non-retryable external error.
func IsPermanent(err error) bool { return CategoryOf(err) == CategoryPermanent }

// IsInvariant reports whether err is a defect-class error.
func IsInvariant(err error) bool { return CategoryOf(err) == CategoryInvariant }

// IsRetryable reports whether a retry may help. Foreign errors are treated as
// retryable once wrapped by the owning stage, not here.
func IsRetryable(err error) bool {
	if pe, ok := AsPipelineError(err); ok {
		return pe.Retryable
	}
	return false
}
