package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.HTTPPort != 8080 {
		t.Errorf("HTTPPort = %d, want 8080", cfg.Server.HTTPPort)
	}
	if cfg.Correlate.DedupWindow != 24*time.Hour {
		t.Errorf("DedupWindow = %v, want 24h", cfg.Correlate.DedupWindow)
	}
	if cfg.Queue.Size != 100000 {
		t.Errorf("Queue.Size = %d, want 100000", cfg.Queue.Size)
	}
	if cfg.Auth.Enabled || cfg.Storage.Enabled || cfg.Kafka.Enabled || cfg.Redis.Enabled {
		t.Error("optional integrations must default to disabled")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config fails validation: %v", err)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("REDBLUE_CONFIG_PATH", filepath.Join(t.TempDir(), "nope.yaml"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.HTTPPort != 8080 {
		t.Errorf("HTTPPort = %d, want default 8080", cfg.Server.HTTPPort)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `
server:
  http_port: 9090
correlate:
  dedup_window: 1h
rules:
  dir: /etc/redblue/rules
kafka:
  enabled: true
  brokers: ["broker-1:9092", "broker-2:9092"]
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	t.Setenv("REDBLUE_CONFIG_PATH", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.HTTPPort != 9090 {
		t.Errorf("HTTPPort = %d, want 9090", cfg.Server.HTTPPort)
	}
	if cfg.Correlate.DedupWindow != time.Hour {
		t.Errorf("DedupWindow = %v, want 1h", cfg.Correlate.DedupWindow)
	}
	if cfg.Rules.Dir != "/etc/redblue/rules" {
		t.Errorf("Rules.Dir = %q", cfg.Rules.Dir)
	}
	if !cfg.Kafka.Enabled || len(cfg.Kafka.Brokers) != 2 {
		t.Errorf("Kafka = %+v", cfg.Kafka)
	}
	// Untouched sections keep their defaults.
	if cfg.Queue.Size != 100000 {
		t.Errorf("Queue.Size = %d, want default", cfg.Queue.Size)
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server: [not a map"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	t.Setenv("REDBLUE_CONFIG_PATH", path)

	if _, err := Load(); err == nil {
		t.Fatal("Load() with malformed yaml succeeded, want error")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("REDBLUE_CONFIG_PATH", filepath.Join(t.TempDir(), "nope.yaml"))
	t.Setenv("REDBLUE_HTTP_PORT", "7070")
	t.Setenv("REDBLUE_LOG_LEVEL", "debug")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("REDIS_ADDR", "cache:6379")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.HTTPPort != 7070 {
		t.Errorf("HTTPPort = %d, want 7070", cfg.Server.HTTPPort)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if !cfg.Kafka.Enabled || len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("Kafka = %+v", cfg.Kafka)
	}
	if !cfg.Redis.Enabled || cfg.Redis.Addr != "cache:6379" {
		t.Errorf("Redis = %+v", cfg.Redis)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"bad port", func(c *Config) { c.Server.HTTPPort = 0 }, true},
		{"port too high", func(c *Config) { c.Server.HTTPPort = 70000 }, true},
		{"zero queue", func(c *Config) { c.Queue.Size = 0 }, true},
		{"zero batch", func(c *Config) { c.Ingest.MaxBatchSize = 0 }, true},
		{"zero window", func(c *Config) { c.Correlate.DedupWindow = 0 }, true},
		{"zero workers", func(c *Config) { c.Pipeline.Workers = 0 }, true},
		{"auth without keys", func(c *Config) { c.Auth.Enabled = true }, true},
		{"auth with keys", func(c *Config) {
			c.Auth.Enabled = true
			c.Auth.APIKeyHashes = []string{"$2a$10$abcdefghijklmnopqrstuv"}
		}, false},
		{"kafka without brokers", func(c *Config) {
			c.Kafka.Enabled = true
			c.Kafka.Brokers = nil
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
