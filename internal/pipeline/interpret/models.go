// internal/pipeline/interpret/models.go
package interpret

import (
	"context"

	"golang.org/x/time/rate"

	"orgdiag-pipeline/internal/common/logger"
	"orgdiag-pipeline/internal/models"
)

type Input struct {
	Aggregate *models.TeamAggregate `json:"aggregate"`
}

// Output carries either the generated narrative or, when every attempt was
// exhausted, the reason it is unavailable. Exhaustion is a degraded outcome,
// not an error: the report still renders with a placeholder.
type Output struct {
	Narrative   *models.Narrative `json:"narrative,omitempty"`
	Unavailable string            `json:"unavailable,omitempty"`
}

// ServiceDependencies defines external dependencies for the interpreter.
// Limiter is the process-wide AI rate limiter, shared across runs and injected
// by the caller. Client overrides the configured provider, used by tests.
type ServiceDependencies struct {
	Logger  logger.Logger
	Client  Client
	Limiter *rate.Limiter
	Cache   Cache
}

// Cache is the optional narrative cache consulted before any provider call.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, text string) error
}
