package internal

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	// Server holds server-specific configuration.
	Server struct {
		Port           int    `yaml:"port"`
		ReadTimeoutMS  int64  `yaml:"read_timeout_ms"`
		WriteTimeoutMS int64  `yaml:"write_timeout_ms"`
		IdleTimeoutMS  int64  `yaml:"idle_timeout_ms"`
		ReadHeaderMS   int64  `yaml:"read_header_timeout_ms"`
		MaxBodyBytes   int64  `yaml:"max_body_bytes"`
		RateLimitRPS   int64  `yaml:"rate_limit_rps"`
		RateLimitBurst int64  `yaml:"rate_limit_burst"`
		MetricsEnabled bool   `yaml:"metrics_enabled"`
		MetricsPath    string `yaml:"metrics_path"`
		DebugEvents    bool   `yaml:"debug_events"`
	} `yaml:"server"`
	Webhook WebhookConfig `yaml:"webhook"`
	API     APIConfig     `yaml:"api"`
	Storage StorageConfig `yaml:"storage"`
	Notify  NotifyConfig  `yaml:"notify"`
}

// WebhookConfig configures the ingestion endpoint.
type WebhookConfig struct {
	Path        string `yaml:"path"`
	EventHeader string `yaml:"event_header"`
	// Secret is loaded for signature verification but not checked yet.
	Secret string `yaml:"secret"`
}

// APIConfig configures the read endpoints.
type APIConfig struct {
	EventsPath string `yaml:"events_path"`
	ListLimit  int    `yaml:"list_limit"`
}

// StorageConfig selects and configures the event store backend.
type StorageConfig struct {
	Driver           string `yaml:"driver"`
	DSN              string `yaml:"dsn"`
	Database         string `yaml:"database"`
	Collection       string `yaml:"collection"`
	AutoMigrate      bool   `yaml:"auto_migrate"`
	ConnectTimeoutMS int64  `yaml:"connect_timeout_ms"`
}

// ConnectTimeout returns the configured connect timeout.
func (c StorageConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutMS) * time.Millisecond
}

// NotifyConfig configures publishing of stored events.
type NotifyConfig struct {
	Enabled     bool            `yaml:"enabled"`
	Topic       string          `yaml:"topic"`
	TimeoutMS   int64           `yaml:"timeout_ms"`
	Rules       []Rule          `yaml:"rules"`
	RulesStrict bool            `yaml:"rules_strict"`
	Watermill   WatermillConfig `yaml:"watermill"`
	Consumer    ConsumerConfig  `yaml:"consumer"`
}

// Timeout returns how long a stored event may wait on its publishers.
func (c NotifyConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// ConsumerConfig configures workers that read notifications back from the brokers.
type ConsumerConfig struct {
	// Group is the Kafka consumer group and the SQL offsets group.
	Group string `yaml:"group"`
	// Durable names the NATS streaming durable subscription.
	Durable string `yaml:"durable"`
	// ClientIDSuffix is appended to notify.watermill.nats.client_id.
	ClientIDSuffix    string `yaml:"client_id_suffix"`
	Concurrency       int    `yaml:"concurrency"`
	BuildAttempts     int    `yaml:"build_attempts"`
	BuildRetryDelayMS int64  `yaml:"build_retry_delay_ms"`
}

// BuildRetryDelay returns the wait between broker connection attempts.
func (c ConsumerConfig) BuildRetryDelay() time.Duration {
	return time.Duration(c.BuildRetryDelayMS) * time.Millisecond
}

// WatermillConfig holds the configuration for Watermill, which handles messaging.
type WatermillConfig struct {
	Driver     string           `yaml:"driver"`
	Drivers    []string         `yaml:"drivers"`
	GoChannel  GoChannelConfig  `yaml:"gochannel"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	NATS       NATSConfig       `yaml:"nats"`
	AMQP       AMQPConfig       `yaml:"amqp"`
	SQL        SQLConfig        `yaml:"sql"`
	HTTP       HTTPConfig       `yaml:"http"`
	RiverQueue RiverQueueConfig `yaml:"riverqueue"`
}

// GoChannelConfig holds configuration for the GoChannel pub/sub.
type GoChannelConfig struct {
	OutputChannelBuffer            int64 `yaml:"output_buffer"`
	Persistent                     bool  `yaml:"persistent"`
	BlockPublishUntilSubscriberAck bool  `yaml:"block_publish_until_subscriber_ack"`
}

// KafkaConfig holds configuration for the Kafka pub/sub.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
}

// NATSConfig holds configuration for the NATS streaming pub/sub.
type NATSConfig struct {
	ClusterID string `yaml:"cluster_id"`
	ClientID  string `yaml:"client_id"`
	URL       string `yaml:"url"`
}

// AMQPConfig holds configuration for the AMQP pub/sub.
type AMQPConfig struct {
	URL  string `yaml:"url"`
	Mode string `yaml:"mode"`
}

// SQLConfig holds configuration for the SQL pub/sub.
type SQLConfig struct {
	Driver               string `yaml:"driver"`
	DSN                  string `yaml:"dsn"`
	Dialect              string `yaml:"dialect"`
	AutoInitializeSchema bool   `yaml:"auto_initialize_schema"`
}

// HTTPConfig holds configuration for the HTTP publisher.
type HTTPConfig struct {
	BaseURL string `yaml:"base_url"`
	Mode    string `yaml:"mode"`
}

// RiverQueueConfig holds configuration for the RiverQueue publisher.
type RiverQueueConfig struct {
	Driver      string   `yaml:"driver"`
	DSN         string   `yaml:"dsn"`
	Table       string   `yaml:"table"`
	Queue       string   `yaml:"queue"`
	Kind        string   `yaml:"kind"`
	MaxAttempts int      `yaml:"max_attempts"`
	Priority    int      `yaml:"priority"`
	Tags        []string `yaml:"tags"`
}

// LoadDotEnv loads variables from the given .env files into the process
// environment. Missing files are ignored; existing variables win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// LoadConfig loads the configuration from a YAML file, expanding environment
// variables, then fills unset values from the environment and defaults.
// An empty path skips the file.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return cfg, err
		}
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return cfg, err
	}
	normalized, err := normalizeRules(cfg.Notify.Rules)
	if err != nil {
		return cfg, err
	}
	cfg.Notify.Rules = normalized
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = os.Getenv("MONGODB_URI")
	}
	if cfg.Webhook.Secret == "" {
		cfg.Webhook.Secret = os.Getenv("SECRET_KEY")
	}
	if cfg.Server.Port == 0 {
		if port, err := strconv.Atoi(os.Getenv("PORT")); err == nil {
			cfg.Server.Port = port
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeoutMS == 0 {
		cfg.Server.ReadTimeoutMS = 5000
	}
	if cfg.Server.WriteTimeoutMS == 0 {
		cfg.Server.WriteTimeoutMS = 10000
	}
	if cfg.Server.IdleTimeoutMS == 0 {
		cfg.Server.IdleTimeoutMS = 60000
	}
	if cfg.Server.ReadHeaderMS == 0 {
		cfg.Server.ReadHeaderMS = 5000
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = 1 << 20
	}
	if cfg.Server.MetricsPath == "" {
		cfg.Server.MetricsPath = "/metrics"
	}
	if cfg.Webhook.Path == "" {
		cfg.Webhook.Path = "/webhook"
	}
	if cfg.Webhook.EventHeader == "" {
		cfg.Webhook.EventHeader = "X-GitHub-Event"
	}
	if cfg.API.EventsPath == "" {
		cfg.API.EventsPath = "/api/events"
	}
	if cfg.API.ListLimit <= 0 {
		cfg.API.ListLimit = 50
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "mongodb"
	}
	if cfg.Storage.Database == "" {
		cfg.Storage.Database = "webhook_db"
	}
	if cfg.Storage.Collection == "" {
		cfg.Storage.Collection = "github_events"
	}
	if cfg.Storage.ConnectTimeoutMS == 0 {
		cfg.Storage.ConnectTimeoutMS = 10000
	}
	if cfg.Notify.Topic == "" {
		cfg.Notify.Topic = "hookfeed.events"
	}
	if cfg.Notify.TimeoutMS <= 0 {
		cfg.Notify.TimeoutMS = 5000
	}
	if cfg.Notify.Watermill.Driver == "" {
		cfg.Notify.Watermill.Driver = "gochannel"
	}
	if cfg.Notify.Watermill.GoChannel.OutputChannelBuffer == 0 {
		cfg.Notify.Watermill.GoChannel.OutputChannelBuffer = 64
	}
	if cfg.Notify.Watermill.HTTP.Mode == "" {
		cfg.Notify.Watermill.HTTP.Mode = "topic_url"
	}
	if cfg.Notify.Watermill.RiverQueue.Table == "" {
		cfg.Notify.Watermill.RiverQueue.Table = "river_job"
	}
	if cfg.Notify.Watermill.RiverQueue.Queue == "" {
		cfg.Notify.Watermill.RiverQueue.Queue = "default"
	}
	if cfg.Notify.Watermill.RiverQueue.Kind == "" {
		cfg.Notify.Watermill.RiverQueue.Kind = "hookfeed.event"
	}
	if cfg.Notify.Watermill.RiverQueue.MaxAttempts == 0 {
		cfg.Notify.Watermill.RiverQueue.MaxAttempts = 25
	}
	applyConsumerDefaults(&cfg.Notify.Consumer)
}

func applyConsumerDefaults(c *ConsumerConfig) {
	if c.Group == "" {
		c.Group = "hookfeed-worker"
	}
	if c.ClientIDSuffix == "" {
		c.ClientIDSuffix = "-worker"
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.BuildAttempts <= 0 {
		c.BuildAttempts = 1
	}
	if c.BuildRetryDelayMS <= 0 {
		c.BuildRetryDelayMS = 2000
	}
}

func validate(cfg *Config) error {
	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "mongodb", "mongo", "postgres", "postgresql", "pgx", "mysql", "sqlite", "sqlite3":
	default:
		return fmt.Errorf("unsupported storage driver: %s", cfg.Storage.Driver)
	}
	if !strings.HasPrefix(cfg.Webhook.Path, "/") || !strings.HasPrefix(cfg.API.EventsPath, "/") {
		return fmt.Errorf("webhook.path and api.events_path must start with /")
	}
	return nil
}

func normalizeRules(rules []Rule) ([]Rule, error) {
	out := make([]Rule, 0, len(rules))
	for i := range rules {
		rule := rules[i]
		rule.When = strings.TrimSpace(rule.When)
		rule.Emit = strings.TrimSpace(rule.Emit)
		if rule.When == "" || rule.Emit == "" {
			return nil, fmt.Errorf("rule %d is missing when or emit", i)
		}
		if len(rule.Drivers) > 0 {
			drivers := make([]string, 0, len(rule.Drivers))
			for _, driver := range rule.Drivers {
				trimmed := strings.TrimSpace(driver)
				if trimmed != "" {
					drivers = append(drivers, trimmed)
				}
			}
			rule.Drivers = drivers
		}
		out = append(out, rule)
	}
	return out, nil
}
