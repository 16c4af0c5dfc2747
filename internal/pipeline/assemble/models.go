// internal/pipeline/assemble/models.go
package assemble

import (
	"orgdiag-pipeline/internal/common/logger"
	"orgdiag-pipeline/internal/models"
)

type Input struct {
	Aggregate *models.TeamAggregate `json:"aggregate"`
	// Narrative may be nil; the document then carries the placeholder text.
	Narrative  *models.Narrative `json:"narrative,omitempty"`
	TemplateID string            `json:"templateId,omitempty"`
}

type Output struct {
	Document *models.ReportDocument `json:"document"`
}

type ServiceDependencies struct {
	Logger logger.Logger
}
