package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JakeFAU/insight-discovery/internal/discovery"
)

func TestLoadWithFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
logging:
  development: false
  path: /tmp/discovery.log
tasks:
  concurrency: 6
  queue_depth: 16
  default_target: 40
  default_speed: high
  keyword_provider: deepseek
  reasoning_provider: DeepSeek
  embedding_provider: ollama
upstream:
  timeout_seconds: 12
  token: tok
  cookie: "a=b"
export:
  archive:
    backend: s3
    bucket: exports
events:
  backend: kafka
  topic: task-events
  brokers: ["localhost:9092"]
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.Tasks.Concurrency != 6 || cfg.Tasks.DefaultTarget != 40 {
		t.Fatalf("expected task overrides to apply: %+v", cfg.Tasks)
	}
	if cfg.Upstream.Token != "tok" || cfg.Upstream.Cookie != "a=b" {
		t.Fatalf("expected static credential, got %+v", cfg.Upstream)
	}
	if got := cfg.UpstreamTimeout(); got != 12*time.Second {
		t.Fatalf("expected upstream timeout 12s, got %v", got)
	}
	if len(cfg.Events.Brokers) != 1 || cfg.Events.Brokers[0] != "localhost:9092" {
		t.Fatalf("expected brokers to load, got %v", cfg.Events.Brokers)
	}

	sel := cfg.DefaultSelection()
	if sel.Keyword != discovery.ProviderDeepSeek || sel.Reasoning != discovery.ProviderDeepSeek {
		t.Fatalf("expected deepseek selection, got %+v", sel)
	}
	if sel.Embedding != discovery.ProviderOllama || sel.Speed != discovery.SpeedHigh {
		t.Fatalf("unexpected selection %+v", sel)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Tasks.DefaultTarget != 30 {
		t.Fatalf("expected default target 30, got %d", cfg.Tasks.DefaultTarget)
	}
	if cfg.Tasks.DefaultSpeed != string(discovery.SpeedMedium) {
		t.Fatalf("expected medium speed, got %q", cfg.Tasks.DefaultSpeed)
	}
	if cfg.Upstream.BaseURL != "https://mp.weixin.qq.com" {
		t.Fatalf("unexpected upstream base %q", cfg.Upstream.BaseURL)
	}
	if cfg.Providers.Ollama.EmbeddingModel != "qwen3-embedding:8b-q8_0" {
		t.Fatalf("unexpected ollama model %q", cfg.Providers.Ollama.EmbeddingModel)
	}
	if cfg.Assets.Workers != 15 || cfg.Assets.MaxWidth != 1280 || cfg.Assets.JPEGQuality != 75 {
		t.Fatalf("unexpected asset defaults %+v", cfg.Assets)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("DISCOVERY_SERVER_PORT", "7070")
	t.Setenv("DISCOVERY_TASKS_DEFAULT_TARGET", "12")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Fatalf("expected env port 7070, got %d", cfg.Server.Port)
	}
	if cfg.Tasks.DefaultTarget != 12 {
		t.Fatalf("expected env target 12, got %d", cfg.Tasks.DefaultTarget)
	}
}

func TestValidateFailures(t *testing.T) {
	base, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	cases := map[string]func(*Config){
		"auth without key":   func(c *Config) { c.Auth.Enabled = true; c.Auth.APIKey = "" },
		"unknown provider":   func(c *Config) { c.Tasks.KeywordProvider = "mistral" },
		"zero concurrency":   func(c *Config) { c.Tasks.Concurrency = 0 },
		"bad jpeg quality":   func(c *Config) { c.Assets.JPEGQuality = 0 },
		"gcs without bucket": func(c *Config) { c.Export.Archive.Backend = "gcs" },
		"unknown events":     func(c *Config) { c.Events.Backend = "nats" },
		"pubsub without id":  func(c *Config) { c.Events.Backend = "pubsub" },
	}
	for name, mutate := range cases {
		cfg := base
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		} else if strings.TrimSpace(err.Error()) == "" {
			t.Fatalf("%s: expected descriptive error", name)
		}
	}
}
