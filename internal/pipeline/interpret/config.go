// internal/pipeline/interpret/config.go
package interpret

import (
	"fmt"
	"time"

	apperrors "orgdiag-pipeline/internal/common/errors"
)

const (
	ProviderGemini = "gemini"
	ProviderHTTP   = "http"
)

type Config struct {
	Provider   string        `mapstructure:"provider"`
	Model      string        `mapstructure:"model"`
	APIKey     string        `mapstructure:"api_key"`
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

func DefaultConfig() *Config {
	return &Config{
		Provider:   ProviderGemini,
		Model:      "gemini-2.0-flash",
		Timeout:    15 * time.Second,
		MaxRetries: 1,
	}
}

// Validate fails fast on missing credentials; a broken interpreter setup must
// never surface mid-run.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return apperrors.NewInterpreterConfigError("timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return apperrors.NewInterpreterConfigError("max_retries cannot be negative")
	}
	switch c.Provider {
	case ProviderGemini:
		if c.APIKey == "" {
			return apperrors.NewInterpreterConfigError("api_key is required for the gemini provider")
		}
	case ProviderHTTP:
		if c.BaseURL == "" {
			return apperrors.NewInterpreterConfigError("base_url is required for the http provider")
		}
	default:
		return apperrors.NewInterpreterConfigError(fmt.Sprintf("unknown provider: %s", c.Provider))
	}
	return nil
}
