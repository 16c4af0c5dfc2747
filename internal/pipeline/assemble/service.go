// internal/pipeline/assemble/service.go
package assemble

import (
	"context"
	"fmt"
	"time"

	apperrors "orgdiag-pipeline/internal/common/errors"
	"orgdiag-pipeline/internal/common/logger"
	"orgdiag-pipeline/internal/models"
)

// Service merges a team aggregate and its optional narrative into a report
// document. No external calls; the only failure mode is a mismatched team
// identifier, which is a defect, not a recoverable condition.
type Service struct {
	config *Config
	logger logger.Logger
}

func NewService(deps ServiceDependencies, config *Config) *Service {
	return &Service{
		config: config,
		logger: deps.Logger,
	}
}

func (s *Service) Execute(ctx context.Context, input *Input) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	agg := input.Aggregate
	if agg == nil {
		return nil, apperrors.NewInvariantViolationError("assemble: nil aggregate")
	}
	if input.Narrative != nil && input.Narrative.TeamID != agg.TeamID {
		return nil, apperrors.NewInvariantViolationError(fmt.Sprintf(
			"narrative team %q does not match aggregate team %q",
			input.Narrative.TeamID, agg.TeamID,
		))
	}

	templateID := input.TemplateID
	if templateID == "" {
		templateID = s.config.DefaultTemplate
	}

	document := &models.ReportDocument{
		TeamID:      agg.TeamID,
		Aggregate:   *agg,
		Narrative:   input.Narrative,
		TemplateID:  templateID,
		Branding:    s.config.Branding,
		GeneratedAt: time.Now().UTC(),
	}

	s.logger.Debug("report document assembled", map[string]interface{}{
		"team":         agg.TeamID,
		"template":     templateID,
		"hasNarrative": document.HasNarrative(),
	})

	return &Output{Document: document}, nil
}
