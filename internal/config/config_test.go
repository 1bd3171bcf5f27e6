package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.TrackerAuthMethod != "token" {
		t.Errorf("auth method = %q, want token", cfg.TrackerAuthMethod)
	}
	if cfg.RateLimit != 100 || cfg.RateWindow != time.Minute {
		t.Errorf("rate limit = %d/%s", cfg.RateLimit, cfg.RateWindow)
	}
	if cfg.WebhookListenAddr != ":8484" || cfg.WorkerPoolSize != 4 || cfg.QueueSize != 1024 {
		t.Errorf("webhook defaults = %q/%d/%d", cfg.WebhookListenAddr, cfg.WorkerPoolSize, cfg.QueueSize)
	}
	if !cfg.AuditEnabled || cfg.RetentionDays != 365 {
		t.Errorf("audit defaults = %t/%d", cfg.AuditEnabled, cfg.RetentionDays)
	}
	if cfg.DatabasePath != "sprint-reports.db" {
		t.Errorf("database path = %q", cfg.DatabasePath)
	}
	if cfg.OTelEnabled || cfg.OTelExporter != "stdout" {
		t.Errorf("telemetry defaults = %t/%q", cfg.OTelEnabled, cfg.OTelExporter)
	}
}

func TestLoadTelemetryExporter(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		t.Helper()
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("write config: %v", err)
		}
		return path
	}

	cfg, err := Load(write("otlp.yaml", "otel_exporter: otlp\notlp_endpoint: collector:4317\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.OTelExporter != "otlp" || cfg.OTLPEndpoint != "collector:4317" {
		t.Errorf("otlp settings = %q/%q", cfg.OTelExporter, cfg.OTLPEndpoint)
	}

	if _, err := Load(write("bare.yaml", "otel_exporter: otlp\n")); err == nil || !strings.Contains(err.Error(), "otlp_endpoint") {
		t.Errorf("otlp without endpoint: err = %v", err)
	}
	if _, err := Load(write("bad.yaml", "otel_exporter: jaeger\n")); err == nil || !strings.Contains(err.Error(), "otel_exporter") {
		t.Errorf("unknown exporter: err = %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
tracker_base_url: https://tracker.example.com
tracker_auth_method: basic
rate_limit: 10
worker_pool_size: 8
allowed_sso_domains:
  - example.com
oauth:
  client_id: abc
  token_url: https://tracker.example.com/oauth/token
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.TrackerBaseURL != "https://tracker.example.com" || cfg.TrackerAuthMethod != "basic" {
		t.Errorf("tracker settings = %q/%q", cfg.TrackerBaseURL, cfg.TrackerAuthMethod)
	}
	if cfg.RateLimit != 10 || cfg.WorkerPoolSize != 8 {
		t.Errorf("overrides not applied: %d/%d", cfg.RateLimit, cfg.WorkerPoolSize)
	}
	if len(cfg.AllowedSSODomains) != 1 || cfg.AllowedSSODomains[0] != "example.com" {
		t.Errorf("sso domains = %v", cfg.AllowedSSODomains)
	}
	if cfg.OAuth["client_id"] != "abc" {
		t.Errorf("oauth = %v", cfg.OAuth)
	}
	// Keys absent from the file keep their defaults.
	if cfg.QueueSize != 1024 {
		t.Errorf("queue size = %d, want default", cfg.QueueSize)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SR_TRACKER_BASE_URL", "https://env.example.com")
	t.Setenv("SR_RETENTION_DAYS", "30")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.TrackerBaseURL != "https://env.example.com" {
		t.Errorf("env override ignored: %q", cfg.TrackerBaseURL)
	}
	if cfg.RetentionDays != 30 {
		t.Errorf("retention days = %d, want 30", cfg.RetentionDays)
	}
}

func TestLoadClampsWorkerPool(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("worker_pool_size: 1\nqueue_size: -5\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.WorkerPoolSize != 2 {
		t.Errorf("worker pool = %d, want floor of 2", cfg.WorkerPoolSize)
	}
	if cfg.QueueSize != 1024 {
		t.Errorf("queue size = %d, want default", cfg.QueueSize)
	}
}

func TestLoadRejectsBadEncryptionKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("encryption_key: tooshort\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "32 bytes") {
		t.Errorf("err = %v, want key length error", err)
	}
}
