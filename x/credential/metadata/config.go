package metadata

import (
	"errors"
	"fmt"
	"net/url"
)

type Config struct {
	BaseURI       string `mapstructure:"base_uri"        yaml:"base_uri"`
	MaxImageBytes int64  `mapstructure:"max_image_bytes" yaml:"max_image_bytes"`
}

func DefaultConfig() Config {
	return Config{
		BaseURI:       "http://localhost:8080/v1/objects",
		MaxImageBytes: 5 << 20,
	}
}

func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURI)
	if err != nil || !u.IsAbs() {
		return fmt.Errorf("metadata base URI must be absolute, got %q", c.BaseURI)
	}
	if c.MaxImageBytes <= 0 {
		return errors.New("max image bytes must be positive")
	}
	return nil
}
