package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Configuration errors
var (
	ErrInvalidListenAddr   = errors.New("listen address cannot be empty")
	ErrMissingDatabaseURL  = errors.New("database URL required unless the in-memory store is enabled")
	ErrInvalidLagThreshold = errors.New("lag thresholds must be positive")
	ErrInvalidTimeout      = errors.New("timeouts must be positive")
	ErrUnknownKind         = errors.New("formation kind must be plain or sharded")
)

// Config is the monitor's configuration, loaded from YAML with defaults for
// everything but the database URL.
type Config struct {
	// ListenAddr is the HTTP API bind address
	ListenAddr string `yaml:"listen_addr"`

	// DatabaseURL is the postgres connection string for the monitor's own
	// state. Empty with MemoryStore set runs everything in process.
	DatabaseURL string `yaml:"database_url"`

	// MemoryStore switches persistence to the in-process store
	MemoryStore bool `yaml:"memory_store"`

	LogLevel string `yaml:"log_level"`

	// HealthCheckInterval is the node probe cadence
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`

	Formation FormationConfig `yaml:"formation"`
}

// FormationConfig carries the default formation and its thresholds. Lag
// thresholds and timers are formation-scoped inputs of the state machine.
type FormationConfig struct {
	ID              string `yaml:"id"`
	Kind            string `yaml:"kind"`
	DBName          string `yaml:"dbname"`
	EnableSecondary bool   `yaml:"enable_secondary"`

	EnableSyncLagBytes int64 `yaml:"enable_sync_lag_bytes"`
	PromoteLagBytes    int64 `yaml:"promote_lag_bytes"`

	DrainTimeout       time.Duration `yaml:"drain_timeout"`
	UnhealthyTimeout   time.Duration `yaml:"unhealthy_timeout"`
	StartupGracePeriod time.Duration `yaml:"startup_grace_period"`
}

// UnmarshalYAML decodes the config, reading durations in the "30s" form
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	type plain struct {
		ListenAddr          string          `yaml:"listen_addr"`
		DatabaseURL         string          `yaml:"database_url"`
		MemoryStore         *bool           `yaml:"memory_store"`
		LogLevel            string          `yaml:"log_level"`
		HealthCheckInterval string          `yaml:"health_check_interval"`
		Formation           FormationConfig `yaml:"formation"`
	}

	raw := plain{Formation: c.Formation}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	if raw.ListenAddr != "" {
		c.ListenAddr = raw.ListenAddr
	}
	if raw.DatabaseURL != "" {
		c.DatabaseURL = raw.DatabaseURL
	}
	if raw.MemoryStore != nil {
		c.MemoryStore = *raw.MemoryStore
	}
	if raw.LogLevel != "" {
		c.LogLevel = raw.LogLevel
	}
	if raw.HealthCheckInterval != "" {
		interval, err := time.ParseDuration(raw.HealthCheckInterval)
		if err != nil {
			return fmt.Errorf("invalid health_check_interval: %w", err)
		}
		c.HealthCheckInterval = interval
	}
	c.Formation = raw.Formation
	return nil
}

// UnmarshalYAML decodes the formation section, reading durations in the
// "30s" form
func (f *FormationConfig) UnmarshalYAML(value *yaml.Node) error {
	type plain struct {
		ID                 string `yaml:"id"`
		Kind               string `yaml:"kind"`
		DBName             string `yaml:"dbname"`
		EnableSecondary    *bool  `yaml:"enable_secondary"`
		EnableSyncLagBytes int64  `yaml:"enable_sync_lag_bytes"`
		PromoteLagBytes    int64  `yaml:"promote_lag_bytes"`
		DrainTimeout       string `yaml:"drain_timeout"`
		UnhealthyTimeout   string `yaml:"unhealthy_timeout"`
		StartupGracePeriod string `yaml:"startup_grace_period"`
	}

	var raw plain
	if err := value.Decode(&raw); err != nil {
		return err
	}

	if raw.ID != "" {
		f.ID = raw.ID
	}
	if raw.Kind != "" {
		f.Kind = raw.Kind
	}
	if raw.DBName != "" {
		f.DBName = raw.DBName
	}
	if raw.EnableSecondary != nil {
		f.EnableSecondary = *raw.EnableSecondary
	}
	if raw.EnableSyncLagBytes != 0 {
		f.EnableSyncLagBytes = raw.EnableSyncLagBytes
	}
	if raw.PromoteLagBytes != 0 {
		f.PromoteLagBytes = raw.PromoteLagBytes
	}

	for _, field := range []struct {
		raw    string
		target *time.Duration
		name   string
	}{
		{raw.DrainTimeout, &f.DrainTimeout, "drain_timeout"},
		{raw.UnhealthyTimeout, &f.UnhealthyTimeout, "unhealthy_timeout"},
		{raw.StartupGracePeriod, &f.StartupGracePeriod, "startup_grace_period"},
	} {
		if field.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(field.raw)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", field.name, err)
		}
		*field.target = parsed
	}
	return nil
}

// DefaultConfig returns a safe default configuration
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:          ":8080",
		LogLevel:            "info",
		HealthCheckInterval: 5 * time.Second,
		Formation: FormationConfig{
			ID:                 "default",
			Kind:               "plain",
			DBName:             "postgres",
			EnableSecondary:    true,
			EnableSyncLagBytes: 16 * 1024 * 1024,
			PromoteLagBytes:    16 * 1024 * 1024,
			DrainTimeout:       30 * time.Second,
			UnhealthyTimeout:   20 * time.Second,
			StartupGracePeriod: 10 * time.Second,
		},
	}
}

// Load reads a YAML config file over the defaults
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return ErrInvalidListenAddr
	}
	if c.DatabaseURL == "" && !c.MemoryStore {
		return ErrMissingDatabaseURL
	}
	if c.Formation.EnableSyncLagBytes <= 0 || c.Formation.PromoteLagBytes <= 0 {
		return ErrInvalidLagThreshold
	}
	if c.Formation.DrainTimeout <= 0 ||
		c.Formation.UnhealthyTimeout <= 0 ||
		c.Formation.StartupGracePeriod <= 0 ||
		c.HealthCheckInterval <= 0 {
		return ErrInvalidTimeout
	}
	if c.Formation.Kind != "plain" && c.Formation.Kind != "sharded" {
		return ErrUnknownKind
	}
	return nil
}
