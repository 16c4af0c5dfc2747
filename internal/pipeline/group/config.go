package group

import "fmt"

type Config struct {
	// MinSampleSize is the respondent count below which a team's aggregate is
	// flagged low_sample. Flagged teams are never excluded.
	MinSampleSize int `mapstructure:"min_sample_size"`
}

func DefaultConfig() *Config {
	return &Config{
		MinSampleSize: 3,
	}
}

func (c *Config) Validate() error {
	if c.MinSampleSize < 1 {
		return fmt.Errorf("min_sample_size must be positive")
	}
	return nil
}
