// internal/common/errors/errors_test.go

package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatsCodeAndMessage(t *testing.T) {
	err := NewMalformedInputError("missing column: team")

	assert.Equal(t, "PipelineError[MALFORMED_INPUT]: Dataset is malformed", err.Error())
	assert.Equal(t, "missing column: team", err.Details)
	assert.False(t, err.Timestamp.IsZero())
}

func TestConstructorsAssignCategoryAndRetryability(t *testing.T) {
	tests := []struct {
		name      string
		err       *PipelineError
		code      ErrorCode
		category  Category
		retryable bool
	}{
		{"malformed input", NewMalformedInputError("bad header"), ErrCodeMalformedInput, CategoryInput, false},
		{"empty dataset", NewEmptyDatasetError("q3-pulse"), ErrCodeEmptyDataset, CategoryInput, false},
		{"data quality", NewDataQualityError(4, 10, 0.2), ErrCodeDataQuality, CategoryInput, false},
		{"interpreter config", NewInterpreterConfigError("api key unset"), ErrCodeInterpreterConfig, CategoryConfig, false},
		{"dispatch config", NewDispatchConfigError("smtp host missing"), ErrCodeDispatchConfig, CategoryConfig, false},
		{"config invalid", NewConfigInvalidError("max_workers must be positive"), ErrCodeConfigInvalid, CategoryConfig, false},
		{"interpretation timeout", NewInterpretationTimeoutError("alpha"), ErrCodeInterpretationTimeout, CategoryTransient, true},
		{"interpretation failed", NewInterpretationFailedError("alpha", fmt.Errorf("connection reset")), ErrCodeInterpretationFailed, CategoryTransient, true},
		{"render timeout", NewRenderTimeoutError("alpha"), ErrCodeRenderTimeout, CategoryTransient, true},
		{"render failed", NewRenderFailedError("alpha", fmt.Errorf("engine exited")), ErrCodeRenderFailed, CategoryTransient, true},
		{"delivery transport", NewDeliveryTransportError("lead@example.com", fmt.Errorf("dial tcp")), ErrCodeDeliveryTransport, CategoryTransient, true},
		{"template not found", NewTemplateNotFoundError("quarterly"), ErrCodeTemplateNotFound, CategoryPermanent, false},
		{"invalid recipient", NewInvalidRecipientError("not-an-address"), ErrCodeInvalidRecipient, CategoryPermanent, false},
		{"delivery auth", NewDeliveryAuthError("535 authentication rejected"), ErrCodeDeliveryAuth, CategoryPermanent, false},
		{"invariant violation", NewInvariantViolationError("aggregate without team id"), ErrCodeInvariantViolation, CategoryInvariant, false},
		{"run log write", NewRunLogWriteError(fmt.Errorf("connection refused")), ErrCodeRunLogWrite, CategoryTransient, true},
		{"run cancelled", NewRunCancelledError("run-1"), ErrCodeRunCancel, CategoryPermanent, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.category, tt.err.Category)
			assert.Equal(t, tt.retryable, tt.err.Retryable)
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
		})
	}
}

func TestCategoryPredicates(t *testing.T) {
	assert.True(t, IsInputError(NewEmptyDatasetError("empty")))
	assert.True(t, IsConfigError(NewDispatchConfigError("no host")))
	assert.True(t, IsTransient(NewRenderTimeoutError("alpha")))
	assert.True(t, IsPermanent(NewInvalidRecipientError("nope")))
	assert.True(t, IsInvariant(NewInvariantViolationError("state mismatch")))

	assert.False(t, IsInputError(NewDispatchConfigError("no host")))
	assert.False(t, IsTransient(NewInvalidRecipientError("nope")))
}

func TestAsPipelineErrorUnwrapsWrappedErrors(t *testing.T) {
	pe := NewInterpretationTimeoutError("alpha")
	wrapped := fmt.Errorf("interpret stage: %w", pe)

	got, ok := AsPipelineError(wrapped)
	require.True(t, ok)
	assert.Same(t, pe, got)

	assert.True(t, IsTransient(wrapped))
	assert.True(t, IsRetryable(wrapped))
}

func TestForeignErrorsStayOutsideTaxonomy(t *testing.T) {
	foreign := fmt.Errorf("plain failure")

	_, ok := AsPipelineError(foreign)
	assert.False(t, ok)
	assert.Equal(t, Category(""), CategoryOf(foreign))
	assert.False(t, IsRetryable(foreign))
}

func TestDataQualityErrorCarriesRatioMetadata(t *testing.T) {
	err := NewDataQualityError(3, 12, 0.2)

	assert.Contains(t, err.Error(), "Malformed-row ratio exceeds threshold")
	assert.Equal(t, "malformed: 3 of 12, threshold: 0.20", err.Details)
	assert.Equal(t, 3, err.Metadata["malformedRows"])
	assert.Equal(t, 12, err.Metadata["totalRows"])
	assert.Equal(t, 0.2, err.Metadata["threshold"])
}
