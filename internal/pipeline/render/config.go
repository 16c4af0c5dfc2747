// internal/pipeline/render/config.go
package render

import (
	"time"

	apperrors "orgdiag-pipeline/internal/common/errors"
)

type Config struct {
	TemplateDir    string        `mapstructure:"template_dir"`
	RegistryPath   string        `mapstructure:"registry_path"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	ChromePath     string        `mapstructure:"chrome_path"`
	DisableSandbox bool          `mapstructure:"disable_sandbox"`
}

func DefaultConfig() *Config {
	return &Config{
		TemplateDir:  "templates",
		RegistryPath: "templates/registry.json",
		Timeout:      10 * time.Second,
		MaxRetries:   1,
	}
}

func (c *Config) Validate() error {
	if c.TemplateDir == "" {
		return apperrors.NewConfigInvalidError("template_dir is required")
	}
	if c.RegistryPath == "" {
		return apperrors.NewConfigInvalidError("registry_path is required")
	}
	if c.Timeout <= 0 {
		return apperrors.NewConfigInvalidError("render timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return apperrors.NewConfigInvalidError("render max_retries cannot be negative")
	}
	return nil
}
