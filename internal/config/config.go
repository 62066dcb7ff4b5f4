// Package config loads and validates service configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JakeFAU/insight-discovery/internal/discovery"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	DB        DBConfig        `mapstructure:"db"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Upstream  UpstreamConfig  `mapstructure:"upstream"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Tasks     TasksConfig     `mapstructure:"tasks"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Assets    AssetsConfig    `mapstructure:"assets"`
	Headless  HeadlessConfig  `mapstructure:"headless"`
	Export    ExportConfig    `mapstructure:"export"`
	Events    EventsConfig    `mapstructure:"events"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features and names the diagnostic log.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Path        string `mapstructure:"path"`
}

// DBConfig controls access to the relational database. An empty DSN selects the in-memory store.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	Migrate         bool          `mapstructure:"migrate"`
}

// RedisConfig enables the Redis page-cache tier when Addr is set.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	PageTTL  time.Duration `mapstructure:"page_ttl"`
}

// UpstreamConfig configures the upstream source API client.
type UpstreamConfig struct {
	BaseURL           string  `mapstructure:"base_url"`
	UserAgent         string  `mapstructure:"user_agent"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
	// Token and Cookie form a static credential used when no database is configured.
	Token  string `mapstructure:"token"`
	Cookie string `mapstructure:"cookie"`
}

// ProvidersConfig holds backend credentials and model names.
type ProvidersConfig struct {
	Gemini   GeminiConfig        `mapstructure:"gemini"`
	DeepSeek ChatBackendConfig   `mapstructure:"deepseek"`
	OpenAI   ChatBackendConfig   `mapstructure:"openai"`
	Ollama   OllamaBackendConfig `mapstructure:"ollama"`
}

// GeminiConfig configures the Gemini backend.
type GeminiConfig struct {
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	EmbeddingModel string `mapstructure:"embedding_model"`
}

// ChatBackendConfig configures an OpenAI-compatible chat backend.
type ChatBackendConfig struct {
	APIKey         string `mapstructure:"api_key"`
	BaseURL        string `mapstructure:"base_url"`
	Model          string `mapstructure:"model"`
	EmbeddingModel string `mapstructure:"embedding_model"`
}

// OllamaBackendConfig configures a local Ollama server.
type OllamaBackendConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	Model          string `mapstructure:"model"`
	EmbeddingModel string `mapstructure:"embedding_model"`
}

// TasksConfig controls the task worker pool and creation defaults.
type TasksConfig struct {
	Concurrency       int    `mapstructure:"concurrency"`
	QueueDepth        int    `mapstructure:"queue_depth"`
	DefaultTarget     int    `mapstructure:"default_target"`
	DefaultSpeed      string `mapstructure:"default_speed"`
	KeywordProvider   string `mapstructure:"keyword_provider"`
	ReasoningProvider string `mapstructure:"reasoning_provider"`
	EmbeddingProvider string `mapstructure:"embedding_provider"`
}

// FetchConfig configures article HTML and image downloads.
type FetchConfig struct {
	UserAgent          string `mapstructure:"user_agent"`
	TimeoutSeconds     int    `mapstructure:"timeout_seconds"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
}

// AssetsConfig configures the image pipeline.
type AssetsConfig struct {
	Workers     int  `mapstructure:"workers"`
	MaxWidth    int  `mapstructure:"max_width"`
	JPEGQuality int  `mapstructure:"jpeg_quality"`
	Compress    bool `mapstructure:"compress"`
}

// HeadlessConfig configures the chromedp PDF renderer.
type HeadlessConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	MaxParallel    int  `mapstructure:"max_parallel"`
	TimeoutSeconds int  `mapstructure:"timeout_seconds"`
}

// ExportConfig configures export side outputs.
type ExportConfig struct {
	Archive ArchiveConfig `mapstructure:"archive"`
}

// ArchiveConfig selects where finished exports are mirrored.
type ArchiveConfig struct {
	Backend string `mapstructure:"backend"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
	BaseDir string `mapstructure:"base_dir"`
	Region  string `mapstructure:"region"`
}

// EventsConfig selects the task event publisher.
type EventsConfig struct {
	Backend   string   `mapstructure:"backend"`
	ProjectID string   `mapstructure:"project_id"`
	Topic     string   `mapstructure:"topic"`
	Brokers   []string `mapstructure:"brokers"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("DISCOVERY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.path", "logs/discovery.log")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime", time.Hour)
	v.SetDefault("db.migrate", true)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.page_ttl", 24*time.Hour)
	v.SetDefault("upstream.base_url", "https://mp.weixin.qq.com")
	v.SetDefault("upstream.user_agent", defaultUserAgent)
	v.SetDefault("upstream.timeout_seconds", 30)
	v.SetDefault("upstream.requests_per_second", 2.0)
	v.SetDefault("upstream.burst", 2)
	v.SetDefault("upstream.token", "")
	v.SetDefault("upstream.cookie", "")
	v.SetDefault("providers.gemini.api_key", "")
	v.SetDefault("providers.gemini.model", "gemini-2.0-flash")
	v.SetDefault("providers.gemini.embedding_model", "gemini-embedding-001")
	v.SetDefault("providers.deepseek.api_key", "")
	v.SetDefault("providers.deepseek.base_url", "https://api.deepseek.com")
	v.SetDefault("providers.deepseek.model", "deepseek-chat")
	v.SetDefault("providers.openai.api_key", "")
	v.SetDefault("providers.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("providers.openai.model", "gpt-4o-mini")
	v.SetDefault("providers.openai.embedding_model", "text-embedding-3-small")
	v.SetDefault("providers.ollama.base_url", "http://127.0.0.1:11434")
	v.SetDefault("providers.ollama.model", "qwen3:8b")
	v.SetDefault("providers.ollama.embedding_model", "qwen3-embedding:8b-q8_0")
	v.SetDefault("tasks.concurrency", 4)
	v.SetDefault("tasks.queue_depth", 64)
	v.SetDefault("tasks.default_target", 30)
	v.SetDefault("tasks.default_speed", string(discovery.SpeedMedium))
	v.SetDefault("tasks.keyword_provider", string(discovery.ProviderGemini))
	v.SetDefault("tasks.reasoning_provider", string(discovery.ProviderGemini))
	v.SetDefault("tasks.embedding_provider", string(discovery.ProviderGemini))
	v.SetDefault("fetch.user_agent", defaultUserAgent)
	v.SetDefault("fetch.timeout_seconds", 30)
	v.SetDefault("fetch.insecure_skip_verify", false)
	v.SetDefault("assets.workers", 15)
	v.SetDefault("assets.max_width", 1280)
	v.SetDefault("assets.jpeg_quality", 75)
	v.SetDefault("assets.compress", true)
	v.SetDefault("headless.enabled", true)
	v.SetDefault("headless.max_parallel", 10)
	v.SetDefault("headless.timeout_seconds", 60)
	v.SetDefault("export.archive.backend", "none")
	v.SetDefault("export.archive.prefix", "exports")
	v.SetDefault("events.backend", "memory")
	v.SetDefault("events.topic", "discovery-task-events")
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Tasks.Concurrency <= 0 {
		return fmt.Errorf("tasks.concurrency must be > 0")
	}
	if c.Tasks.QueueDepth <= 0 {
		return fmt.Errorf("tasks.queue_depth must be > 0")
	}
	if c.Tasks.DefaultTarget <= 0 {
		return fmt.Errorf("tasks.default_target must be > 0")
	}
	for key, name := range map[string]string{
		"tasks.keyword_provider":   c.Tasks.KeywordProvider,
		"tasks.reasoning_provider": c.Tasks.ReasoningProvider,
		"tasks.embedding_provider": c.Tasks.EmbeddingProvider,
	} {
		if _, ok := discovery.ParseProviderKind(name); !ok {
			return fmt.Errorf("%s %q is not a known provider", key, name)
		}
	}
	if c.Upstream.TimeoutSeconds <= 0 || c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("upstream.timeout_seconds and fetch.timeout_seconds must be > 0")
	}
	if c.Assets.Workers <= 0 {
		return fmt.Errorf("assets.workers must be > 0")
	}
	if c.Assets.JPEGQuality < 1 || c.Assets.JPEGQuality > 100 {
		return fmt.Errorf("assets.jpeg_quality must be within 1..100")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	switch c.Export.Archive.Backend {
	case "", "none":
	case "local":
		if c.Export.Archive.BaseDir == "" {
			return fmt.Errorf("export.archive.base_dir is required for the local archive")
		}
	case "gcs", "s3":
		if c.Export.Archive.Bucket == "" {
			return fmt.Errorf("export.archive.bucket is required for the %s archive", c.Export.Archive.Backend)
		}
	default:
		return fmt.Errorf("unknown export.archive.backend %q", c.Export.Archive.Backend)
	}
	switch c.Events.Backend {
	case "", "none", "memory":
	case "pubsub":
		if c.Events.ProjectID == "" || c.Events.Topic == "" {
			return fmt.Errorf("events.project_id and events.topic are required for pubsub")
		}
	case "kafka":
		if len(c.Events.Brokers) == 0 || c.Events.Topic == "" {
			return fmt.Errorf("events.brokers and events.topic are required for kafka")
		}
	default:
		return fmt.Errorf("unknown events.backend %q", c.Events.Backend)
	}
	return nil
}

// UpstreamTimeout converts the upstream timeout into a duration.
func (c Config) UpstreamTimeout() time.Duration {
	return time.Duration(c.Upstream.TimeoutSeconds) * time.Second
}

// FetchTimeout converts the fetch timeout into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// DefaultSelection returns the provider selection applied when a request omits fields.
func (c Config) DefaultSelection() discovery.ProviderSelection {
	keyword, _ := discovery.ParseProviderKind(c.Tasks.KeywordProvider)
	reasoning, _ := discovery.ParseProviderKind(c.Tasks.ReasoningProvider)
	embedding, _ := discovery.ParseProviderKind(c.Tasks.EmbeddingProvider)
	return discovery.ProviderSelection{
		Keyword:   keyword,
		Reasoning: reasoning,
		Embedding: embedding,
		Speed:     discovery.Speed(c.Tasks.DefaultSpeed),
	}
}
