// internal/pipeline/orchestrator/models.go
package orchestrator

import (
	"context"
	"io"

	"orgdiag-pipeline/internal/common/logger"
	"orgdiag-pipeline/internal/models"
	"orgdiag-pipeline/internal/pipeline/assemble"
	"orgdiag-pipeline/internal/pipeline/dispatch"
	"orgdiag-pipeline/internal/pipeline/group"
	"orgdiag-pipeline/internal/pipeline/ingest"
	"orgdiag-pipeline/internal/pipeline/interpret"
	"orgdiag-pipeline/internal/pipeline/render"
)

// RunRequest describes one pipeline invocation. Reader must deliver the whole
// dataset; the orchestrator consumes it during ingestion and never rereads.
type RunRequest struct {
	DatasetLabel string             `json:"datasetLabel"`
	Format       string             `json:"format"`
	Reader       io.Reader          `json:"-"`
	TeamFilter   []string           `json:"teamFilter,omitempty"`
	Recipients   []models.Recipient `json:"recipients,omitempty"`
	TemplateID   string             `json:"templateId,omitempty"`
}

// Stage interfaces, satisfied by the pipeline services. Orchestrator tests
// swap in deterministic fakes.

type Ingester interface {
	Execute(ctx context.Context, input *ingest.Input) (*ingest.Output, error)
}

type Grouper interface {
	Execute(ctx context.Context, input *group.Input) (*group.Output, error)
}

type Interpreter interface {
	Execute(ctx context.Context, input *interpret.Input) (*interpret.Output, error)
}

type Assembler interface {
	Execute(ctx context.Context, input *assemble.Input) (*assemble.Output, error)
}

type Renderer interface {
	Execute(ctx context.Context, input *render.Input) (*render.Output, error)
}

type Dispatcher interface {
	Execute(ctx context.Context, input *dispatch.Input) (*dispatch.Output, error)
}

// Post-terminal collaborators. All optional; a failure in any of them is
// logged and never rolls back the run.

// RunLogger persists run and team outcomes.
type RunLogger interface {
	WriteTeamOutcome(ctx context.Context, runID string, team models.TeamProgress) error
	WriteRun(ctx context.Context, status *models.RunStatus) error
}

// ReportIndexer feeds the report search index at run completion.
type ReportIndexer interface {
	IndexRun(ctx context.Context, status *models.RunStatus) error
}

// Alerter publishes a run terminal summary.
type Alerter interface {
	NotifyRunFinished(ctx context.Context, status *models.RunStatus) error
}

// ServiceDependencies defines the stage services and optional collaborators
// the orchestrator drives.
type ServiceDependencies struct {
	Logger      logger.Logger
	Ingester    Ingester
	Grouper     Grouper
	Interpreter Interpreter
	Assembler   Assembler
	Renderer    Renderer
	Dispatcher  Dispatcher

	RunLog  RunLogger
	Indexer ReportIndexer
	Alerter Alerter
}
