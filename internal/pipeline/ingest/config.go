package ingest

import "fmt"

type Config struct {
	// MalformedRowThreshold is the tolerated ratio of malformed rows before the
	// whole extraction fails.
	MalformedRowThreshold float64 `mapstructure:"malformed_row_threshold"`
}

func DefaultConfig() *Config {
	return &Config{
		MalformedRowThreshold: 0.2,
	}
}

func (c *Config) Validate() error {
	if c.MalformedRowThreshold < 0 || c.MalformedRowThreshold > 1 {
		return fmt.Errorf("malformed_row_threshold must be within [0, 1]")
	}
	return nil
}
