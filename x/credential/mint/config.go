package mint

import (
	"errors"
	"time"
)

// Config is the issuer section: signing key and authorization parameters.
type Config struct {
	PrivateKeyHex    string        `mapstructure:"private_key_hex"   yaml:"private_key_hex"`
	AuthorizationTTL time.Duration `mapstructure:"authorization_ttl" yaml:"authorization_ttl"`
	NonceAttempts    int           `mapstructure:"nonce_attempts"    yaml:"nonce_attempts"`
}

func DefaultConfig() Config {
	return Config{
		AuthorizationTTL: 5 * time.Minute,
		NonceAttempts:    8,
	}
}

func (c *Config) Validate() error {
	if c.PrivateKeyHex == "" {
		return errors.New("issuer private key is required")
	}
	if c.AuthorizationTTL <= 0 {
		return errors.New("authorization TTL must be positive")
	}
	if c.NonceAttempts <= 0 {
		return errors.New("nonce attempts must be positive")
	}
	return nil
}
