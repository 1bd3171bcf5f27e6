// Package config loads service configuration from file and environment.
// Every key can be overridden with an SR_-prefixed environment variable
// (SR_TRACKER_BASE_URL, SR_WEBHOOK_SECRET, ...).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the fully resolved service configuration.
type Config struct {
	// Tracker connection.
	TrackerBaseURL    string        `mapstructure:"tracker_base_url"`
	TrackerAuthMethod string        `mapstructure:"tracker_auth_method"`
	TrackerEmail      string        `mapstructure:"tracker_email"`
	TrackerAPIToken   string        `mapstructure:"tracker_api_token"`
	TrackerUsername   string        `mapstructure:"tracker_username"`
	TrackerPassword   string        `mapstructure:"tracker_password"`
	StoryPointsField  string        `mapstructure:"story_points_field"`
	RateLimit         int           `mapstructure:"rate_limit"`
	RateWindow        time.Duration `mapstructure:"rate_window"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`

	// OAuth provider settings, keyed by provider parameter
	// (authorization_url, token_url, client_id, client_secret, scope).
	OAuth map[string]string `mapstructure:"oauth"`

	// Storage.
	DatabasePath string `mapstructure:"database_path"`

	// Webhook surface.
	WebhookListenAddr string `mapstructure:"webhook_listen_addr"`
	WebhookSecret     string `mapstructure:"webhook_secret"`
	WorkerPoolSize    int    `mapstructure:"worker_pool_size"`
	QueueSize         int    `mapstructure:"queue_size"`

	// Security.
	EncryptionKey     string   `mapstructure:"encryption_key"` // 32 bytes, credential-at-rest
	AuditEnabled      bool     `mapstructure:"audit_enabled"`
	RetentionDays     int      `mapstructure:"retention_days"`
	SSOSecret         string   `mapstructure:"sso_secret"`
	AllowedSSODomains []string `mapstructure:"allowed_sso_domains"`

	// Field mapping.
	TemplateFile string `mapstructure:"template_file"`

	// Telemetry.
	OTelEnabled  bool   `mapstructure:"otel_enabled"`
	OTelExporter string `mapstructure:"otel_exporter"` // stdout or otlp
	OTLPEndpoint string `mapstructure:"otlp_endpoint"` // collector gRPC target, host:port
}

// Load reads configuration from the optional file path plus SR_
// environment variables, applying defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Keys need a default registered for AutomaticEnv to surface them
	// during Unmarshal, so every key gets at least a zero default.
	v.SetDefault("tracker_base_url", "")
	v.SetDefault("tracker_email", "")
	v.SetDefault("tracker_api_token", "")
	v.SetDefault("tracker_username", "")
	v.SetDefault("tracker_password", "")
	v.SetDefault("story_points_field", "")
	v.SetDefault("webhook_secret", "")
	v.SetDefault("encryption_key", "")
	v.SetDefault("sso_secret", "")
	v.SetDefault("allowed_sso_domains", []string{})
	v.SetDefault("template_file", "")
	v.SetDefault("tracker_auth_method", "token")
	v.SetDefault("rate_limit", 100)
	v.SetDefault("rate_window", time.Minute)
	v.SetDefault("max_retries", 3)
	v.SetDefault("request_timeout", 30*time.Second)
	v.SetDefault("database_path", "sprint-reports.db")
	v.SetDefault("webhook_listen_addr", ":8484")
	v.SetDefault("worker_pool_size", 4)
	v.SetDefault("queue_size", 1024)
	v.SetDefault("audit_enabled", true)
	v.SetDefault("retention_days", 365)
	v.SetDefault("otel_enabled", false)
	v.SetDefault("otel_exporter", "stdout")
	v.SetDefault("otlp_endpoint", "")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.WorkerPoolSize < 2 {
		c.WorkerPoolSize = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	if c.EncryptionKey != "" && len(c.EncryptionKey) != 32 {
		return fmt.Errorf("encryption_key must be exactly 32 bytes, got %d", len(c.EncryptionKey))
	}
	switch c.OTelExporter {
	case "", "stdout":
		c.OTelExporter = "stdout"
	case "otlp":
		if c.OTLPEndpoint == "" {
			return fmt.Errorf("otlp_endpoint required when otel_exporter is otlp")
		}
	default:
		return fmt.Errorf("unknown otel_exporter %q", c.OTelExporter)
	}
	return nil
}
