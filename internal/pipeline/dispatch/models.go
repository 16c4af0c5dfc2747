// internal/pipeline/dispatch/models.go
package dispatch

import (
	"context"

	"orgdiag-pipeline/internal/common/logger"
	"orgdiag-pipeline/internal/models"
)

type Input struct {
	Artifact   *models.RenderedArtifact `json:"artifact"`
	Recipients []models.Recipient       `json:"recipients"`
}

// Output aggregates the per-recipient outcomes. Delivered counts successful
// sends; the caller treats the team as delivered when it is at least one.
type Output struct {
	Results   []models.DeliveryResult `json:"results"`
	Delivered int                     `json:"delivered"`
}

// Transport sends one prepared MIME message to one recipient.
type Transport interface {
	Send(ctx context.Context, from, to string, msg []byte) error
	Name() string
}

// ServiceDependencies defines external dependencies for the dispatcher.
// Transport overrides the configured transport, used by tests.
type ServiceDependencies struct {
	Logger    logger.Logger
	Transport Transport
}
