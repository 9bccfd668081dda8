package ledger

import "time"

// Config bounds the relay step of a claim.
type Config struct {
	// RelayTimeout applies to each relay call.
	RelayTimeout time.Duration
	// MaxAttempts is the number of authorizations tried when the relay times out.
	MaxAttempts int
}

func DefaultConfig() Config {
	return Config{
		RelayTimeout: 15 * time.Second,
		MaxAttempts:  3,
	}
}
