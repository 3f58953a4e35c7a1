// Package config loads leasehold configuration.
//
// Configuration comes from a single YAML file named by the --config flag or
// the LEASEHOLD_CONFIG environment variable. Values missing from the file
// keep their defaults. Secrets may be supplied through the environment
// instead of the file:
//   - LEASEHOLD_DATABASE_DSN
//   - LEASEHOLD_TRIGGER_TOKEN
//   - LEASEHOLD_SMTP_PASSWORD
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Environment variables read by Load.
const (
	EnvConfigPath   = "LEASEHOLD_CONFIG"
	EnvDatabaseDSN  = "LEASEHOLD_DATABASE_DSN"
	EnvTriggerToken = "LEASEHOLD_TRIGGER_TOKEN"
	EnvSMTPPassword = "LEASEHOLD_SMTP_PASSWORD"
)

// Config is the complete leasehold configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Engine   EngineConfig   `yaml:"engine"`
	Notify   NotifyConfig   `yaml:"notify"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Lock     LockConfig     `yaml:"lock"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
}

// DatabaseConfig selects the SQL store.
type DatabaseConfig struct {
	// Driver is sqlite3 or postgres.
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// EngineConfig tunes escalation runs.
type EngineConfig struct {
	// BatchSize caps the tickets fetched per run. 0 means unbounded.
	BatchSize   int           `yaml:"batch_size"`
	Concurrency int           `yaml:"concurrency"`
	RunTimeout  time.Duration `yaml:"run_timeout"`

	// ScopeNotificationsToOrg limits recipients to the ticket's organization.
	ScopeNotificationsToOrg bool `yaml:"scope_notifications_to_org"`
}

// NotifyConfig configures notification channels. The in-app inbox is always on.
type NotifyConfig struct {
	Breaker BreakerConfig `yaml:"breaker"`
	Email   EmailConfig   `yaml:"email"`
	Redis   RedisConfig   `yaml:"redis"`
}

// BreakerConfig tunes the per-channel circuit breaker.
type BreakerConfig struct {
	MaxRequests uint32        `yaml:"max_requests"`
	Interval    time.Duration `yaml:"interval"`
	Timeout     time.Duration `yaml:"timeout"`
	MinRequests uint32        `yaml:"min_requests"`
	FailRatio   float64       `yaml:"fail_ratio"`
}

// EmailConfig configures the SMTP channel.
type EmailConfig struct {
	Enabled            bool          `yaml:"enabled"`
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	Username           string        `yaml:"username"`
	Password           string        `yaml:"password"`
	SenderAddress      string        `yaml:"sender_address"`
	SenderName         string        `yaml:"sender_name"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
	RetryCount         int           `yaml:"retry_count"`
	RetryBackoff       time.Duration `yaml:"retry_backoff"`
}

// RedisConfig configures the realtime inbox channel.
type RedisConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
	MaxLength int    `yaml:"max_length"`
}

// KafkaConfig configures the escalation event stream. Publishing is
// enabled when at least one broker is listed.
type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	BatchSize    int           `yaml:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	RequiredAcks int           `yaml:"required_acks"`
	Compression  string        `yaml:"compression"`
}

// LockConfig configures the cross-process run lease.
type LockConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Key      string        `yaml:"key"`
	TTL      time.Duration `yaml:"ttl"`
}

// ServerConfig configures the HTTP trigger API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
	// TriggerToken guards POST /v1/escalations/run. Empty disables the check.
	TriggerToken    string        `yaml:"trigger_token"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LogConfig configures zap.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver: "sqlite3",
			DSN:    DefaultDatabasePath(),
		},
		Engine: EngineConfig{
			BatchSize:               500,
			Concurrency:             4,
			RunTimeout:              5 * time.Minute,
			ScopeNotificationsToOrg: true,
		},
		Notify: NotifyConfig{
			Breaker: BreakerConfig{
				MaxRequests: 1,
				Interval:    time.Minute,
				Timeout:     30 * time.Second,
				MinRequests: 5,
				FailRatio:   0.6,
			},
			Email: EmailConfig{
				Port:         587,
				SenderName:   "Leasehold",
				RetryCount:   3,
				RetryBackoff: 100 * time.Millisecond,
			},
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				KeyPrefix: "notifications",
				MaxLength: 100,
			},
		},
		Kafka: KafkaConfig{
			Topic:        "leasehold.escalations",
			BatchTimeout: time.Second,
			WriteTimeout: 10 * time.Second,
			Compression:  "snappy",
		},
		Lock: LockConfig{
			Addr: "localhost:6379",
			Key:  "leasehold:escalation:run",
			TTL:  10 * time.Minute,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    10 * time.Minute,
			ShutdownTimeout: 30 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// DefaultDatabasePath returns ~/.leasehold/leasehold.db.
func DefaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".leasehold", "leasehold.db")
}

// Load reads the file at path over the defaults, applies environment
// overrides and validates the result. An empty path falls back to
// LEASEHOLD_CONFIG; with neither set, defaults are used.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}

	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, fmt.Errorf("failed to load config %s: %w", path, err)
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvDatabaseDSN); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv(EnvTriggerToken); v != "" {
		c.Server.TriggerToken = v
	}
	if v := os.Getenv(EnvSMTPPassword); v != "" {
		c.Notify.Email.Password = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case "sqlite3", "postgres":
	default:
		errs = append(errs, fmt.Errorf("database.driver must be sqlite3 or postgres, got %q", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, fmt.Errorf("database.dsn is required"))
	}

	if c.Engine.BatchSize < 0 {
		errs = append(errs, fmt.Errorf("engine.batch_size must not be negative"))
	}
	if c.Engine.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("engine.concurrency must be at least 1"))
	}
	if c.Engine.RunTimeout < 0 {
		errs = append(errs, fmt.Errorf("engine.run_timeout must not be negative"))
	}

	if c.Notify.Breaker.FailRatio <= 0 || c.Notify.Breaker.FailRatio > 1 {
		errs = append(errs, fmt.Errorf("notify.breaker.fail_ratio must be in (0, 1]"))
	}
	if c.Notify.Email.Enabled {
		if c.Notify.Email.Host == "" {
			errs = append(errs, fmt.Errorf("notify.email.host is required when email is enabled"))
		}
		if c.Notify.Email.Port <= 0 {
			errs = append(errs, fmt.Errorf("notify.email.port must be positive"))
		}
	}
	if c.Notify.Redis.Enabled && c.Notify.Redis.Addr == "" {
		errs = append(errs, fmt.Errorf("notify.redis.addr is required when redis is enabled"))
	}

	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		errs = append(errs, fmt.Errorf("kafka.topic is required when brokers are set"))
	}

	if c.Lock.Enabled {
		if c.Lock.Addr == "" {
			errs = append(errs, fmt.Errorf("lock.addr is required when the lock is enabled"))
		}
		if c.Lock.Key == "" {
			errs = append(errs, fmt.Errorf("lock.key is required when the lock is enabled"))
		}
		if c.Lock.TTL <= 0 {
			errs = append(errs, fmt.Errorf("lock.ttl must be positive"))
		}
	}

	if c.Server.Addr == "" {
		errs = append(errs, fmt.Errorf("server.addr is required"))
	}

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}

	return errors.Join(errs...)
}
