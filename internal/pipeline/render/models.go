// internal/pipeline/render/models.go
package render

import (
	"context"

	"orgdiag-pipeline/internal/common/logger"
	"orgdiag-pipeline/internal/models"
	"orgdiag-pipeline/pkg/registry"
)

type Input struct {
	Document *models.ReportDocument `json:"document"`
}

type Output struct {
	Artifact *models.RenderedArtifact `json:"artifact"`
}

// PDFEngine produces PDF bytes from rendered HTML.
type PDFEngine interface {
	PrintPDF(ctx context.Context, html string) ([]byte, error)
}

// ServiceDependencies defines external dependencies for the renderer.
// Engine and Registry override the configured defaults, used by tests.
type ServiceDependencies struct {
	Logger   logger.Logger
	Engine   PDFEngine
	Registry *registry.TemplateRegistry
}
