package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	apisrv "github.com/compose-network/issuer/server/api"
	"github.com/compose-network/issuer/x/credential/catalog"
	"github.com/compose-network/issuer/x/credential/metadata"
	"github.com/compose-network/issuer/x/credential/mint"
	"github.com/compose-network/issuer/x/credential/relay"
)

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds the complete application configuration
type Config struct {
	API        apisrv.Config      `mapstructure:"api"        yaml:"api"`
	Log        LogConfig          `mapstructure:"log"        yaml:"log"`
	Metrics    MetricsConfig      `mapstructure:"metrics"    yaml:"metrics"`
	Store      StoreConfig        `mapstructure:"store"      yaml:"store"`
	Issuer     mint.Config        `mapstructure:"issuer"     yaml:"issuer"`
	Relay      relay.Config       `mapstructure:"relay"      yaml:"relay"`
	Metadata   metadata.Config    `mapstructure:"metadata"   yaml:"metadata"`
	Categories []catalog.Category `mapstructure:"categories" yaml:"categories"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"  env:"LOG_LEVEL"`
	Pretty bool   `mapstructure:"pretty" yaml:"pretty" env:"LOG_PRETTY"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled" env:"METRICS_ENABLED"`
	Path    string `mapstructure:"path"    yaml:"path"    env:"METRICS_PATH"`
}

// StoreConfig selects the repository backend.
type StoreConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver" env:"STORE_DRIVER"`
	DSN    string `mapstructure:"dsn"    yaml:"dsn"    env:"STORE_DSN"`
}

// Load loads configuration from file and environment. An empty path loads
// defaults and environment only.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	def := Default()

	v.SetDefault("api.listen_addr", def.API.ListenAddr)
	v.SetDefault("api.read_header_timeout", def.API.ReadHeaderTimeout)
	v.SetDefault("api.read_timeout", def.API.ReadTimeout)
	v.SetDefault("api.write_timeout", def.API.WriteTimeout)
	v.SetDefault("api.idle_timeout", def.API.IdleTimeout)
	v.SetDefault("api.max_header_bytes", def.API.MaxHeaderBytes)
	v.SetDefault("api.shutdown_timeout", def.API.ShutdownTimeout)
	v.SetDefault("api.cors_origins", def.API.CORSOrigins)

	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.pretty", def.Log.Pretty)

	v.SetDefault("metrics.enabled", def.Metrics.Enabled)
	v.SetDefault("metrics.path", def.Metrics.Path)

	v.SetDefault("store.driver", def.Store.Driver)
	v.SetDefault("store.dsn", def.Store.DSN)

	v.SetDefault("issuer.private_key_hex", def.Issuer.PrivateKeyHex)
	v.SetDefault("issuer.authorization_ttl", def.Issuer.AuthorizationTTL)
	v.SetDefault("issuer.nonce_attempts", def.Issuer.NonceAttempts)

	v.SetDefault("relay.mode", def.Relay.Mode)
	v.SetDefault("relay.base_url", def.Relay.BaseURL)
	v.SetDefault("relay.timeout", def.Relay.Timeout)
	v.SetDefault("relay.max_attempts", def.Relay.MaxAttempts)

	v.SetDefault("metadata.base_uri", def.Metadata.BaseURI)
	v.SetDefault("metadata.max_image_bytes", def.Metadata.MaxImageBytes)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.validateAPI(); err != nil {
		return err
	}
	if err := c.validateMetrics(); err != nil {
		return err
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.Issuer.Validate(); err != nil {
		return fmt.Errorf("issuer: %w", err)
	}
	if err := c.Relay.Validate(); err != nil {
		return fmt.Errorf("relay: %w", err)
	}
	if err := c.Metadata.Validate(); err != nil {
		return fmt.Errorf("metadata: %w", err)
	}
	if err := c.validateCategories(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateAPI() error {
	if strings.TrimSpace(c.API.ListenAddr) == "" {
		return fmt.Errorf("api.listen_addr is required")
	}
	if c.API.ReadTimeout <= 0 {
		return fmt.Errorf("api.read_timeout must be positive")
	}
	if c.API.WriteTimeout <= 0 {
		return fmt.Errorf("api.write_timeout must be positive")
	}
	return nil
}

func (c *Config) validateMetrics() error {
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with '/', got %q", c.Metrics.Path)
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Driver {
	case DriverMemory:
		return nil
	case DriverSQLite, DriverPostgres:
		if strings.TrimSpace(c.Store.DSN) == "" {
			return fmt.Errorf("store.dsn is required for driver %q", c.Store.Driver)
		}
		return nil
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
}

func (c *Config) validateCategories() error {
	if _, err := catalog.New(c.Categories...); err != nil {
		return fmt.Errorf("categories: %w", err)
	}
	return nil
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		API: apisrv.DefaultConfig(),
		Log: LogConfig{
			Level:  "info",
			Pretty: false,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Store: StoreConfig{
			Driver: DriverMemory,
		},
		Issuer:   mint.DefaultConfig(),
		Relay:    relay.DefaultConfig(),
		Metadata: metadata.DefaultConfig(),
	}
}
