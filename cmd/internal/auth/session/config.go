package session

import (
	"os"
	"time"
)

// Config defines the runtime configuration of the session subsystem.
//
// RenewalInterval must stay strictly below AccessTokenTTL so that every
// periodic renewal has margin before the access token expires.
type Config struct {
	// AccessTokenTTL is the known lifetime of access tokens issued by the server.
	AccessTokenTTL time.Duration

	// RenewalInterval is the period of the proactive renewal timer.
	RenewalInterval time.Duration

	// RenewalWaitTimeout bounds how long a caller waits for an in-flight renewal.
	RenewalWaitTimeout time.Duration

	// PasetoV4PublicKeyHex optionally enables reading the access-token lifetime
	// from PASETO v4.public claims. Empty disables it.
	PasetoV4PublicKeyHex string
}

// DefaultConfig returns the defaults matching the server's 15 minute access tokens.
func DefaultConfig() Config {
	return Config{
		AccessTokenTTL:     15 * time.Minute,
		RenewalInterval:    10 * time.Minute,
		RenewalWaitTimeout: 5 * time.Second,
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Optional (durations must be valid Go duration strings):
//   - CHATROOM_ACCESS_TTL
//   - CHATROOM_RENEWAL_INTERVAL (defaults to 2/3 of the access TTL)
//   - CHATROOM_RENEWAL_WAIT_TIMEOUT
//   - CHATROOM_PASETO_V4_PUBLIC_KEY_HEX
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("CHATROOM_ACCESS_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.AccessTokenTTL = d
		cfg.RenewalInterval = DefaultRenewalInterval(d)
	}

	if v := os.Getenv("CHATROOM_RENEWAL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.RenewalInterval = d
	}

	if v := os.Getenv("CHATROOM_RENEWAL_WAIT_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.RenewalWaitTimeout = d
	}

	cfg.PasetoV4PublicKeyHex = os.Getenv("CHATROOM_PASETO_V4_PUBLIC_KEY_HEX")

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration invariants.
func (c Config) Validate() error {
	if c.AccessTokenTTL <= 0 || c.RenewalInterval <= 0 || c.RenewalWaitTimeout <= 0 {
		return ErrConfig
	}
	// Renewal must fire before the access token expires.
	if c.RenewalInterval >= c.AccessTokenTTL {
		return ErrConfig
	}
	return nil
}

// DefaultRenewalInterval returns 2/3 of the given token lifetime.
func DefaultRenewalInterval(lifetime time.Duration) time.Duration {
	return lifetime * 2 / 3
}
