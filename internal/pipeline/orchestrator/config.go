// internal/pipeline/orchestrator/config.go
package orchestrator

import (
	"fmt"
	"time"

	apperrors "orgdiag-pipeline/internal/common/errors"
)

// Config holds run-wide orchestration settings. Stage-specific tuning lives
// with the stage services.
type Config struct {
	// MaxWorkers caps the per-team worker pool; the effective pool size is
	// min(team count, MaxWorkers).
	MaxWorkers int `mapstructure:"max_workers"`

	// TeamFilterRequired rejects runs that would cover every team at once.
	TeamFilterRequired bool `mapstructure:"team_filter_required"`

	// RunRetention is how long a finished run, artifacts included, stays
	// pollable before eviction.
	RunRetention time.Duration `mapstructure:"run_retention_ms"`
}

func DefaultConfig() *Config {
	return &Config{
		MaxWorkers:   4,
		RunRetention: time.Hour,
	}
}

func (c *Config) Validate() error {
	if c.MaxWorkers < 1 {
		return apperrors.NewConfigInvalidError(fmt.Sprintf("max_workers must be at least 1, got %d", c.MaxWorkers))
	}
	if c.RunRetention <= 0 {
		return apperrors.NewConfigInvalidError("run_retention_ms must be positive")
	}
	return nil
}
