package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds runtime configuration for the monitor.
type Config struct {
	LogLevel string         `yaml:"log_level"`
	HTTP     HTTPConfig     `yaml:"http"`
	Store    StoreConfig    `yaml:"store"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Channels []Channel      `yaml:"channels"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	Delivery DeliveryConfig `yaml:"delivery"`
}

// HTTPConfig configures the presentation API.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// StoreConfig selects and configures the remote key-path store.
type StoreConfig struct {
	// Backend: firebase, redis or memory
	Backend     string        `yaml:"backend"`
	FirebaseURL string        `yaml:"firebase_url"`
	RedisAddr   string        `yaml:"redis_addr"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// MonitorConfig holds the cadence of both monitoring loops.
type MonitorConfig struct {
	PollInterval     time.Duration `yaml:"poll_interval"`
	LivenessInterval time.Duration `yaml:"liveness_interval"`
	// A heartbeat older than this is considered stale
	LivenessWindow time.Duration `yaml:"liveness_window"`
}

// Channel maps a display name to its key under sensorValue/.
type Channel struct {
	Name string `yaml:"name"`
	Key  string `yaml:"key"`
}

// AlertsConfig configures alert dispatch and the notification category.
type AlertsConfig struct {
	ChannelID          string `yaml:"channel_id"`
	ChannelName        string `yaml:"channel_name"`
	ChannelDescription string `yaml:"channel_description"`
	Title              string `yaml:"title"`
	// Mirrors the host notification permission; persistent notifications are skipped when false
	PermissionGranted bool `yaml:"permission_granted"`
	DedupPerCycle     bool `yaml:"dedup_per_cycle"`
	QueueSize         int  `yaml:"queue_size"`
}

// DeliveryConfig selects where persistent notifications go.
type DeliveryConfig struct {
	// Backend: log, kafka or postgres
	Backend      string         `yaml:"backend"`
	Workers      int            `yaml:"workers"`
	BatchSize    int            `yaml:"batch_size"`
	BatchTimeout time.Duration  `yaml:"batch_timeout"`
	Kafka        KafkaConfig    `yaml:"kafka"`
	Postgres     PostgresConfig `yaml:"postgres"`
}

// KafkaConfig holds broker and topic settings.
type KafkaConfig struct {
	Brokers           []string `yaml:"brokers"`
	Topic             string   `yaml:"topic"`
	Partitions        int      `yaml:"partitions"`
	ReplicationFactor int      `yaml:"replication_factor"`
	// Bounds topic creation for the notification channel
	ProvisionTimeout time.Duration  `yaml:"provision_timeout"`
	Producer         ProducerConfig `yaml:"producer"`
}

// ProducerConfig tunes the kafka writer pool.
type ProducerConfig struct {
	PoolSize     int           `yaml:"pool_size"`
	BatchSize    int           `yaml:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	RequiredAcks int           `yaml:"required_acks"`
	Compression  string        `yaml:"compression"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// PostgresConfig configures the alert journal.
type PostgresConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

// Default returns a sensible default config for local dev.
func Default() *Config {
	cfg := &Config{
		Store: StoreConfig{Backend: "memory"},
		Alerts: AlertsConfig{
			PermissionGranted: true,
		},
	}
	cfg.applyDefaults()
	return cfg
}

// Load reads a YAML config file, fills defaults and validates it.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Config{
		Alerts: AlertsConfig{PermissionGranted: true},
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// DefaultChannels is the four-sensor deployment.
func DefaultChannels() []Channel {
	return []Channel{
		{Name: "Sensor A", Key: "sensor1"},
		{Name: "Sensor B", Key: "sensor2"},
		{Name: "Sensor C", Key: "sensor3"},
		{Name: "Sensor D", Key: "sensor4"},
	}
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "firebase"
	}
	if c.Store.RedisAddr == "" {
		c.Store.RedisAddr = "localhost:6379"
	}
	if c.Store.ReadTimeout == 0 {
		c.Store.ReadTimeout = 4 * time.Second
	}
	if c.Monitor.PollInterval == 0 {
		c.Monitor.PollInterval = 5 * time.Second
	}
	if c.Monitor.LivenessInterval == 0 {
		c.Monitor.LivenessInterval = 5 * time.Second
	}
	if c.Monitor.LivenessWindow == 0 {
		c.Monitor.LivenessWindow = 10 * time.Second
	}
	if len(c.Channels) == 0 {
		c.Channels = DefaultChannels()
	}
	if c.Alerts.ChannelID == "" {
		c.Alerts.ChannelID = "SensorAlertChannel"
	}
	if c.Alerts.ChannelName == "" {
		c.Alerts.ChannelName = "Sensor Alert Channel"
	}
	if c.Alerts.ChannelDescription == "" {
		c.Alerts.ChannelDescription = "Notifies when sensor values exceed threshold"
	}
	if c.Alerts.Title == "" {
		c.Alerts.Title = "Sensor Threshold Exceeded"
	}
	if c.Alerts.QueueSize == 0 {
		c.Alerts.QueueSize = 256
	}
	if c.Delivery.Backend == "" {
		c.Delivery.Backend = "log"
	}
	if c.Delivery.Workers == 0 {
		c.Delivery.Workers = 1
	}
	if c.Delivery.BatchSize == 0 {
		c.Delivery.BatchSize = 20
	}
	if c.Delivery.BatchTimeout == 0 {
		c.Delivery.BatchTimeout = 250 * time.Millisecond
	}
	if len(c.Delivery.Kafka.Brokers) == 0 {
		c.Delivery.Kafka.Brokers = []string{"localhost:9092"}
	}
	if c.Delivery.Kafka.Topic == "" {
		c.Delivery.Kafka.Topic = c.Alerts.ChannelID
	}
	if c.Delivery.Kafka.Partitions == 0 {
		c.Delivery.Kafka.Partitions = 1
	}
	if c.Delivery.Kafka.ReplicationFactor == 0 {
		c.Delivery.Kafka.ReplicationFactor = 1
	}
	if c.Delivery.Kafka.ProvisionTimeout == 0 {
		c.Delivery.Kafka.ProvisionTimeout = 10 * time.Second
	}

	p := &c.Delivery.Kafka.Producer
	if p.PoolSize == 0 {
		p.PoolSize = 2
	}
	if p.BatchSize == 0 {
		p.BatchSize = 100
	}
	if p.BatchTimeout == 0 {
		p.BatchTimeout = 10 * time.Millisecond
	}
	if p.WriteTimeout == 0 {
		p.WriteTimeout = 10 * time.Second
	}
	if p.RequiredAcks == 0 {
		p.RequiredAcks = -1
	}
	if p.MaxRetries == 0 {
		p.MaxRetries = 3
	}
	if p.RetryBackoff == 0 {
		p.RetryBackoff = 100 * time.Millisecond
	}

	if c.Delivery.Postgres.Table == "" {
		c.Delivery.Postgres.Table = "alert_journal"
	}
}

func (c *Config) validate() error {
	switch c.Store.Backend {
	case "firebase":
		if c.Store.FirebaseURL == "" {
			return errors.New("store.firebase_url is required for the firebase backend")
		}
	case "redis", "memory":
	default:
		return fmt.Errorf("store.backend %q is not supported", c.Store.Backend)
	}

	if c.Monitor.PollInterval < 0 || c.Monitor.LivenessInterval < 0 || c.Monitor.LivenessWindow < 0 {
		return errors.New("monitor intervals must be positive")
	}

	seen := make(map[string]bool, len(c.Channels))
	for i, ch := range c.Channels {
		if ch.Name == "" || ch.Key == "" {
			return fmt.Errorf("channels[%d]: name and key are required", i)
		}
		if seen[ch.Key] {
			return fmt.Errorf("channels[%d]: duplicate key %q", i, ch.Key)
		}
		seen[ch.Key] = true
	}

	switch c.Delivery.Backend {
	case "log":
	case "kafka":
		if c.Delivery.Kafka.Partitions < 0 || c.Delivery.Kafka.ReplicationFactor < 0 {
			return errors.New("delivery.kafka partitions and replication_factor must be positive")
		}
	case "postgres":
		if c.Delivery.Postgres.DSN == "" {
			return errors.New("delivery.postgres.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("delivery.backend %q is not supported", c.Delivery.Backend)
	}

	return nil
}
