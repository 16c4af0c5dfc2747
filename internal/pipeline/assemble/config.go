// internal/pipeline/assemble/config.go
package assemble

import (
	apperrors "orgdiag-pipeline/internal/common/errors"
	"orgdiag-pipeline/internal/models"
)

type Config struct {
	DefaultTemplate string          `mapstructure:"default_template"`
	Branding        models.Branding `mapstructure:"branding"`
}

func DefaultConfig() *Config {
	return &Config{
		DefaultTemplate: "standard",
		Branding: models.Branding{
			PrimaryColor: "#1f4e79",
			AccentColor:  "#e67e22",
			FooterText:   "Organizational Diagnostics",
		},
	}
}

func (c *Config) Validate() error {
	if c.DefaultTemplate == "" {
		return apperrors.NewConfigInvalidError("default_template is required")
	}
	return nil
}
