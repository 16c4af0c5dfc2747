// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig           `mapstructure:"app"`
	Server        ServerConfig        `mapstructure:"server"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Pipeline      PipelineConfig      `mapstructure:"pipeline"`
	Interpreter   InterpreterConfig   `mapstructure:"interpreter"`
	Renderer      RendererConfig      `mapstructure:"renderer"`
	Dispatcher    DispatcherConfig    `mapstructure:"dispatcher"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Alerts        AlertsConfig        `mapstructure:"alerts"`
	Branding      BrandingConfig      `mapstructure:"branding"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout_ms"`  // milliseconds
	WriteTimeout int    `mapstructure:"write_timeout_ms"` // milliseconds
	DatasetDir   string `mapstructure:"dataset_dir"`
}

// AuthConfig holds the admin gate settings. Every pipeline route requires the
// bearer token; health and metrics stay open.
type AuthConfig struct {
	AdminToken string `mapstructure:"admin_token"`
}

// --- Pipeline Configuration ---

// PipelineConfig holds run-wide orchestration settings.
type PipelineConfig struct {
	MaxWorkers            int     `mapstructure:"max_workers"`
	MalformedRowThreshold float64 `mapstructure:"malformed_row_threshold"`
	MinSampleSize         int     `mapstructure:"min_sample_size"`
	TeamFilterRequired    bool    `mapstructure:"team_filter_required"`
	RunRetention          int     `mapstructure:"run_retention_ms"` // milliseconds
}

// InterpreterConfig holds settings for the narrative interpretation stage.
type InterpreterConfig struct {
	Provider        string  `mapstructure:"provider"` // "gemini" or "http"
	Model           string  `mapstructure:"model"`
	APIKey          string  `mapstructure:"api_key"`
	BaseURL         string  `mapstructure:"base_url"`
	Timeout         int     `mapstructure:"timeout_ms"` // milliseconds
	MaxRetries      int     `mapstructure:"max_retries"`
	RateLimitPerSec float64 `mapstructure:"rate_limit_per_sec"`
	RateLimitBurst  int     `mapstructure:"rate_limit_burst"`
	CacheTTL        int     `mapstructure:"cache_ttl_ms"` // milliseconds
}

// RendererConfig holds settings for the PDF rendering stage.
type RendererConfig struct {
	TemplateDir     string `mapstructure:"template_dir"`
	RegistryPath    string `mapstructure:"registry_path"`
	DefaultTemplate string `mapstructure:"default_template"`
	Timeout         int    `mapstructure:"timeout_ms"` // milliseconds
	MaxRetries      int    `mapstructure:"max_retries"`
	ChromePath      string `mapstructure:"chrome_path"`
	DisableSandbox  bool   `mapstructure:"disable_sandbox"`
}

// DispatcherConfig holds settings for report delivery.
type DispatcherConfig struct {
	Transport string `mapstructure:"transport"` // "smtp" or "ses"

	SMTP struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		Username string `mapstructure:"username"`
		Password string `mapstructure:"password"`
		UseTLS   bool   `mapstructure:"use_tls"`
		From     string `mapstructure:"from"`
	} `mapstructure:"smtp"`

	SES struct {
		Region string `mapstructure:"region"`
		From   string `mapstructure:"from"`
	} `mapstructure:"ses"`

	MaxRetries    int    `mapstructure:"max_retries"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// --- Storage Configuration ---

type DatabaseConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"dbname"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (d DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type ElasticsearchConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Index     string   `mapstructure:"index"`
}

// --- Specific Configuration Sections ---

// AlertsConfig holds settings for operational run-summary notifications.
type AlertsConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	SNSTopicARN string `mapstructure:"sns_topic_arn"`
	Region      string `mapstructure:"region"`
}

// BrandingConfig holds presentation settings applied to every report.
type BrandingConfig struct {
	PrimaryColor string `mapstructure:"primary_color"`
	AccentColor  string `mapstructure:"accent_color"`
	LogoURL      string `mapstructure:"logo_url"`
	FooterText   string `mapstructure:"footer_text"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig holds settings for the metrics endpoint. A zero port serves
// /metrics on the main API server.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}
