package relay

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

const (
	ModeLocal = "local"
	ModeHTTP  = "http"
)

type Config struct {
	Mode        string        `mapstructure:"mode"         yaml:"mode"`
	BaseURL     string        `mapstructure:"base_url"     yaml:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"      yaml:"timeout"`
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts"`
}

func DefaultConfig() Config {
	return Config{
		Mode:        ModeLocal,
		Timeout:     15 * time.Second,
		MaxAttempts: 3,
	}
}

func (c *Config) Validate() error {
	switch c.Mode {
	case ModeLocal:
	case ModeHTTP:
		if c.BaseURL == "" {
			return errors.New("relay base URL is required in http mode")
		}
		if u, err := url.Parse(c.BaseURL); err != nil || !u.IsAbs() {
			return fmt.Errorf("invalid relay base URL %q", c.BaseURL)
		}
	default:
		return fmt.Errorf("unknown relay mode %q", c.Mode)
	}
	if c.Timeout <= 0 {
		return errors.New("relay timeout must be positive")
	}
	if c.MaxAttempts <= 0 {
		return errors.New("relay max attempts must be positive")
	}
	return nil
}
