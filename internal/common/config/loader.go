// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	apperrors "orgdiag-pipeline/internal/common/errors"
)

func Load() (*Config, error) {
	// Load .env from multiple possible locations
	loadEnvFile()

	// Base config
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	// Enable ENV override like ORGDIAG_AUTH_ADMIN_TOKEN
	viper.SetEnvPrefix("ORGDIAG")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	// An explicit false in the file still wins over this default.
	viper.SetDefault("metrics.enabled", true)

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	// 1. Load base config
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// 2. Merge environment overlay
	envConfigFile := fmt.Sprintf("config.%s", env)
	viper.SetConfigName(envConfigFile)
	_ = viper.MergeInConfig() // ignore error if not found

	// 3. Expand env placeholders
	expandEnvVars(viper.GetViper())

	// 4. Unmarshal final config
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	// 5. Direct override if still empty
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Load .env from multiple possible locations
func loadEnvFile() {
	// Try multiple paths (for running from different directories)
	possiblePaths := []string{
		".env",          // Current directory
		"../.env",       // Parent directory
		"../../.env",    // Two levels up (for tests in test/e2e/)
		"../../../.env", // Three levels up
	}

	// Also try to find project root by looking for go.mod
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				fmt.Printf("✅ Loaded .env from: %s\n", path)
				return
			}
		}
	}

	fmt.Printf("⚠️  .env file not found in any location, using system environment variables\n")
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	// Walk up directories looking for go.mod
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			break
		}
		dir = parent
	}

	return ""
}

// Improved environment variable expansion
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		val := v.Get(key)

		// Only process string values
		if strVal, ok := val.(string); ok {
			// Check if it contains environment variable pattern
			if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
				expanded := os.ExpandEnv(strVal)
				if expanded != strVal && expanded != "" {
					v.Set(key, expanded)
				}
			}
		}
	}
}

// Direct override if config values are still empty after expansion
func overrideEmptyConfig(cfg *Config) {
	// Admin gate
	if cfg.Auth.AdminToken == "" {
		if val := os.Getenv("ADMIN_TOKEN"); val != "" {
			cfg.Auth.AdminToken = val
		}
	}

	// Interpreter credentials
	if cfg.Interpreter.APIKey == "" {
		if val := os.Getenv("GEMINI_API_KEY"); val != "" {
			cfg.Interpreter.APIKey = val
		}
	}
	if cfg.Interpreter.APIKey == "" {
		if val := os.Getenv("GOOGLE_API_KEY"); val != "" {
			cfg.Interpreter.APIKey = val
		}
	}

	// SMTP credentials
	if cfg.Dispatcher.SMTP.Username == "" {
		if val := os.Getenv("SMTP_USERNAME"); val != "" {
			cfg.Dispatcher.SMTP.Username = val
		}
	}
	if cfg.Dispatcher.SMTP.Password == "" {
		if val := os.Getenv("SMTP_PASSWORD"); val != "" {
			cfg.Dispatcher.SMTP.Password = val
		}
	}

	// Database overrides
	if cfg.Database.User == "" {
		if val := os.Getenv("DB_USER"); val != "" {
			cfg.Database.User = val
		}
	}
	if cfg.Database.Password == "" {
		if val := os.Getenv("DB_PASSWORD"); val != "" {
			cfg.Database.Password = val
		}
	}

	// Redis / Elasticsearch credentials
	if cfg.Redis.Password == "" {
		if val := os.Getenv("REDIS_PASSWORD"); val != "" {
			cfg.Redis.Password = val
		}
	}
	if cfg.Elasticsearch.Password == "" {
		if val := os.Getenv("ES_PASSWORD"); val != "" {
			cfg.Elasticsearch.Password = val
		}
	}
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile() // Load env file first

	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	// Expand environment variables before unmarshal
	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15000
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30000
	}
	if cfg.Server.DatasetDir == "" {
		cfg.Server.DatasetDir = "./datasets"
	}

	// Pipeline defaults
	if cfg.Pipeline.MaxWorkers == 0 {
		cfg.Pipeline.MaxWorkers = 4
	}
	if cfg.Pipeline.MalformedRowThreshold == 0 {
		cfg.Pipeline.MalformedRowThreshold = 0.2
	}
	if cfg.Pipeline.MinSampleSize == 0 {
		cfg.Pipeline.MinSampleSize = 3
	}
	if cfg.Pipeline.RunRetention == 0 {
		cfg.Pipeline.RunRetention = 3600000
	}

	// Interpreter defaults
	if cfg.Interpreter.Provider == "" {
		cfg.Interpreter.Provider = "gemini"
	}
	if cfg.Interpreter.Model == "" {
		cfg.Interpreter.Model = "gemini-2.0-flash"
	}
	if cfg.Interpreter.Timeout == 0 {
		cfg.Interpreter.Timeout = 15000
	}
	if cfg.Interpreter.MaxRetries == 0 {
		cfg.Interpreter.MaxRetries = 1
	}
	if cfg.Interpreter.RateLimitPerSec == 0 {
		cfg.Interpreter.RateLimitPerSec = 1
	}
	if cfg.Interpreter.RateLimitBurst == 0 {
		cfg.Interpreter.RateLimitBurst = 1
	}
	if cfg.Interpreter.CacheTTL == 0 {
		cfg.Interpreter.CacheTTL = 86400000
	}

	// Renderer defaults
	if cfg.Renderer.TemplateDir == "" {
		cfg.Renderer.TemplateDir = "templates"
	}
	if cfg.Renderer.RegistryPath == "" {
		cfg.Renderer.RegistryPath = "templates/registry.json"
	}
	if cfg.Renderer.DefaultTemplate == "" {
		cfg.Renderer.DefaultTemplate = "standard"
	}
	if cfg.Renderer.Timeout == 0 {
		cfg.Renderer.Timeout = 10000
	}
	if cfg.Renderer.MaxRetries == 0 {
		cfg.Renderer.MaxRetries = 1
	}

	// Dispatcher defaults
	if cfg.Dispatcher.Transport == "" {
		cfg.Dispatcher.Transport = "smtp"
	}
	if cfg.Dispatcher.SMTP.Port == 0 {
		cfg.Dispatcher.SMTP.Port = 587
	}
	if cfg.Dispatcher.MaxRetries == 0 {
		cfg.Dispatcher.MaxRetries = 2
	}
	if cfg.Dispatcher.SubjectPrefix == "" {
		cfg.Dispatcher.SubjectPrefix = "[OrgDiag]"
	}

	// Database defaults
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConnections == 0 {
		cfg.Database.MaxConnections = 25
	}
	if cfg.Database.MaxIdle == 0 {
		cfg.Database.MaxIdle = 5
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}

	// Elasticsearch defaults
	if cfg.Elasticsearch.Index == "" {
		cfg.Elasticsearch.Index = "orgdiag-reports"
	}

	// Branding defaults
	if cfg.Branding.PrimaryColor == "" {
		cfg.Branding.PrimaryColor = "#1f4e79"
	}
	if cfg.Branding.AccentColor == "" {
		cfg.Branding.AccentColor = "#e67e22"
	}
	if cfg.Branding.FooterText == "" {
		cfg.Branding.FooterText = "Organizational Diagnostics"
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// validateConfig validates critical configuration fields. Credential checks
// only apply to the transports that are actually enabled.
func validateConfig(cfg *Config) error {
	if cfg.Auth.AdminToken == "" {
		return apperrors.NewConfigInvalidError("auth.admin_token is required")
	}

	if cfg.Pipeline.MalformedRowThreshold < 0 || cfg.Pipeline.MalformedRowThreshold > 1 {
		return apperrors.NewConfigInvalidError("pipeline.malformed_row_threshold must be within [0, 1]")
	}

	switch cfg.Interpreter.Provider {
	case "gemini":
		if cfg.Interpreter.APIKey == "" {
			return apperrors.NewInterpreterConfigError("interpreter.api_key is required for the gemini provider")
		}
	case "http":
		if cfg.Interpreter.BaseURL == "" {
			return apperrors.NewInterpreterConfigError("interpreter.base_url is required for the http provider")
		}
	default:
		return apperrors.NewInterpreterConfigError(
			fmt.Sprintf("unknown interpreter.provider %q (want gemini or http)", cfg.Interpreter.Provider))
	}

	switch cfg.Dispatcher.Transport {
	case "smtp":
		if cfg.Dispatcher.SMTP.Host == "" {
			return apperrors.NewDispatchConfigError("dispatcher.smtp.host is required for the smtp transport")
		}
		if cfg.Dispatcher.SMTP.From == "" {
			return apperrors.NewDispatchConfigError("dispatcher.smtp.from is required for the smtp transport")
		}
	case "ses":
		if cfg.Dispatcher.SES.Region == "" {
			return apperrors.NewDispatchConfigError("dispatcher.ses.region is required for the ses transport")
		}
		if cfg.Dispatcher.SES.From == "" {
			return apperrors.NewDispatchConfigError("dispatcher.ses.from is required for the ses transport")
		}
	default:
		return apperrors.NewDispatchConfigError(
			fmt.Sprintf("unknown dispatcher.transport %q (want smtp or ses)", cfg.Dispatcher.Transport))
	}

	if cfg.Database.Enabled {
		if cfg.Database.Host == "" {
			return apperrors.NewConfigInvalidError("database.host is required when database is enabled")
		}
		if cfg.Database.Database == "" {
			return apperrors.NewConfigInvalidError("database.dbname is required when database is enabled")
		}
		if cfg.Database.User == "" {
			return apperrors.NewConfigInvalidError("database.user is required when database is enabled")
		}
	}

	if cfg.Redis.Enabled && cfg.Redis.Addr == "" {
		return apperrors.NewConfigInvalidError("redis.addr is required when redis is enabled")
	}

	if cfg.Elasticsearch.Enabled && len(cfg.Elasticsearch.Addresses) == 0 {
		return apperrors.NewConfigInvalidError("elasticsearch.addresses is required when elasticsearch is enabled")
	}

	if cfg.Alerts.Enabled {
		if cfg.Alerts.SNSTopicARN == "" {
			return apperrors.NewConfigInvalidError("alerts.sns_topic_arn is required when alerts are enabled")
		}
		if cfg.Alerts.Region == "" {
			return apperrors.NewConfigInvalidError("alerts.region is required when alerts are enabled")
		}
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
