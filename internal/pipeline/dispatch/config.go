// internal/pipeline/dispatch/config.go
package dispatch

import (
	"fmt"

	apperrors "orgdiag-pipeline/internal/common/errors"
)

const (
	TransportSMTP = "smtp"
	TransportSES  = "ses"
)

// Config holds settings for report delivery. Exactly one transport is active
// per process; the unused transport's fields may stay empty.
type Config struct {
	Transport string `mapstructure:"transport"`

	SMTPHost     string `mapstructure:"smtp_host"`
	SMTPPort     int    `mapstructure:"smtp_port"`
	SMTPUsername string `mapstructure:"smtp_username"`
	SMTPPassword string `mapstructure:"smtp_password"`
	UseTLS       bool   `mapstructure:"use_tls"`
	SMTPFrom     string `mapstructure:"smtp_from"`

	SESRegion string `mapstructure:"ses_region"`
	SESFrom   string `mapstructure:"ses_from"`

	MaxRetries    int    `mapstructure:"max_retries"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

func DefaultConfig() *Config {
	return &Config{
		Transport:     TransportSMTP,
		SMTPPort:      587,
		UseTLS:        true,
		MaxRetries:    2,
		SubjectPrefix: "[OrgDiag]",
	}
}

func (c *Config) Validate() error {
	if c.MaxRetries < 0 {
		return apperrors.NewDispatchConfigError("max_retries must not be negative")
	}
	switch c.Transport {
	case TransportSMTP:
		if c.SMTPHost == "" {
			return apperrors.NewDispatchConfigError("smtp_host is required")
		}
		if c.SMTPPort <= 0 || c.SMTPPort > 65535 {
			return apperrors.NewDispatchConfigError("smtp_port must be between 1 and 65535")
		}
		if c.SMTPFrom == "" {
			return apperrors.NewDispatchConfigError("smtp_from is required")
		}
	case TransportSES:
		if c.SESRegion == "" {
			return apperrors.NewDispatchConfigError("ses_region is required")
		}
		if c.SESFrom == "" {
			return apperrors.NewDispatchConfigError("ses_from is required")
		}
	default:
		return apperrors.NewDispatchConfigError(fmt.Sprintf("unknown transport: %s", c.Transport))
	}
	return nil
}

// From returns the sender address of the active transport.
func (c *Config) From() string {
	if c.Transport == TransportSES {
		return c.SESFrom
	}
	return c.SMTPFrom
}
