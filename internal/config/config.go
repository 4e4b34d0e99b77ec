// Package config handles configuration loading for the analysis engine.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"sentinel-engine/internal/scoring"
)

// Config holds the complete application configuration.
type Config struct {
	Engine     EngineConfig       `yaml:"engine"`
	Queue      QueueConfig        `yaml:"queue"`
	Validation ValidationConfig   `yaml:"validation"`
	Thresholds scoring.Thresholds `yaml:"thresholds"`
	Correlate  CorrelateConfig    `yaml:"correlation"`
	Incidents  IncidentConfig     `yaml:"incidents"`
	Intel      IntelConfig        `yaml:"intel"`
	Escalation EscalationConfig   `yaml:"escalation"`
	History    HistoryConfig      `yaml:"history"`
	Logging    LoggingConfig      `yaml:"logging"`
}

// EngineConfig holds analysis worker settings.
type EngineConfig struct {
	Workers         int           `yaml:"workers"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	BaselineMaxAge  time.Duration `yaml:"baseline_max_age"`
}

// QueueConfig holds ingest queue settings.
type QueueConfig struct {
	Size int `yaml:"size"`
}

// ValidationConfig holds input validation settings.
type ValidationConfig struct {
	MaxEventAge time.Duration `yaml:"max_event_age"`
	MaxFuture   time.Duration `yaml:"max_future"`
}

// CorrelateConfig holds correlation window settings.
type CorrelateConfig struct {
	Window     time.Duration `yaml:"window"`
	MinEvents  int           `yaml:"min_events"`
	DDoSDests  int           `yaml:"ddos_dests"`
	ExfilBytes int64         `yaml:"exfil_bytes"`
	BufferCap  int           `yaml:"buffer_cap"`
}

// IncidentConfig holds incident lifecycle settings.
type IncidentConfig struct {
	DedupWindow  time.Duration `yaml:"dedup_window"`
	RetentionAge time.Duration `yaml:"retention_age"`
}

// IntelConfig holds indicator feed settings.
type IntelConfig struct {
	FeedURLs       []string      `yaml:"feed_urls"`
	UpdateInterval time.Duration `yaml:"update_interval"`
	FeedConfidence float64       `yaml:"feed_confidence"`
}

// EscalationConfig holds escalation delivery settings.
type EscalationConfig struct {
	MinLevel      string            `yaml:"min_level"`
	NotifyTimeout time.Duration     `yaml:"notify_timeout"`
	WebhookURL    string            `yaml:"webhook_url"`
	WebhookHeader map[string]string `yaml:"webhook_headers"`
	Kafka         KafkaConfig       `yaml:"kafka"`
}

// KafkaConfig holds Kafka escalation settings.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// HistoryConfig holds incident archive settings.
type HistoryConfig struct {
	Backend   string        `yaml:"backend"` // memory or redis
	RedisAddr string        `yaml:"redis_addr"`
	RedisDB   int           `yaml:"redis_db"`
	Retention time.Duration `yaml:"retention"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Workers:         4,
			CleanupInterval: 1 * time.Hour,
			BaselineMaxAge:  7 * 24 * time.Hour,
		},
		Queue: QueueConfig{
			Size: 100000,
		},
		Validation: ValidationConfig{
			MaxEventAge: 7 * 24 * time.Hour,
			MaxFuture:   5 * time.Minute,
		},
		Thresholds: scoring.DefaultThresholds(),
		Correlate: CorrelateConfig{
			Window:     5 * time.Minute,
			MinEvents:  10,
			DDoSDests:  5,
			ExfilBytes: 100 * 1024 * 1024,
			BufferCap:  1000,
		},
		Incidents: IncidentConfig{
			DedupWindow:  15 * time.Minute,
			RetentionAge: 24 * time.Hour,
		},
		Intel: IntelConfig{
			UpdateInterval: 1 * time.Hour,
			FeedConfidence: 0.7,
		},
		Escalation: EscalationConfig{
			MinLevel:      "low",
			NotifyTimeout: 10 * time.Second,
		},
		History: HistoryConfig{
			Backend:   "memory",
			RedisAddr: "localhost:6379",
			Retention: 30 * 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a file or returns defaults.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configPath := os.Getenv("SENTINEL_CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if workers := os.Getenv("SENTINEL_WORKERS"); workers != "" {
		fmt.Sscanf(workers, "%d", &c.Engine.Workers)
	}

	if level := os.Getenv("SENTINEL_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}

	if feeds := os.Getenv("SENTINEL_FEED_URLS"); feeds != "" {
		c.Intel.FeedURLs = splitAndTrim(feeds, ",")
	}

	if url := os.Getenv("SENTINEL_WEBHOOK_URL"); url != "" {
		c.Escalation.WebhookURL = url
	}

	if brokers := os.Getenv("SENTINEL_KAFKA_BROKERS"); brokers != "" {
		c.Escalation.Kafka.Brokers = splitAndTrim(brokers, ",")
		c.Escalation.Kafka.Enabled = true
	}

	if addr := os.Getenv("SENTINEL_REDIS_ADDR"); addr != "" {
		c.History.RedisAddr = addr
		c.History.Backend = "redis"
	}
}

func splitAndTrim(s, sep string) []string {
	parts := make([]string, 0)
	for _, part := range strings.Split(s, sep) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Engine.Workers <= 0 {
		return fmt.Errorf("engine workers must be positive")
	}

	if c.Queue.Size <= 0 {
		return fmt.Errorf("queue size must be positive")
	}

	if err := c.Thresholds.Validate(); err != nil {
		return fmt.Errorf("invalid thresholds: %w", err)
	}

	if c.Correlate.MinEvents <= 0 {
		return fmt.Errorf("correlation min_events must be positive")
	}

	switch c.History.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown history backend %q", c.History.Backend)
	}

	return nil
}
