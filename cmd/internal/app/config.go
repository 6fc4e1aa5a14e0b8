package app

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrConfig marks invalid runtime configuration.
var ErrConfig = errors.New("invalid app config")

// Token store backends.
const (
	StorePebble   = "pebble"
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Log formats.
const (
	LogFormatPretty = "pretty"
	LogFormatJSON   = "json"
)

// Config contains the client runtime configuration loaded from environment variables.
// CLI flags override individual fields after loading.
type Config struct {
	APIBaseURL string

	LogLevel  string
	LogFormat string

	HTTPTimeout time.Duration

	// TokenStore selects where the token pair is persisted.
	TokenStore string
	StateDir   string

	DatabaseURL string
	DBMaxConns  int32
	Profile     string

	// If true, credentials are only sent to https/wss endpoints (loopback exempt).
	RequireTLS bool

	MetricsAddr string
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		APIBaseURL: EnvString("CHATROOM_API_BASE_URL", "http://127.0.0.1:8080/api/v1"),

		LogLevel:  EnvString("CHATROOM_LOG_LEVEL", "info"),
		LogFormat: EnvString("CHATROOM_LOG_FORMAT", LogFormatPretty),

		HTTPTimeout: EnvDuration("CHATROOM_HTTP_TIMEOUT", 15*time.Second),

		TokenStore: EnvString("CHATROOM_TOKEN_STORE", StorePebble),
		StateDir:   EnvPath("CHATROOM_STATE_DIR", "~/.chatroom"),

		DatabaseURL: EnvString("CHATROOM_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("CHATROOM_DB_MAX_CONNS", 4),
		Profile:     EnvString("CHATROOM_PROFILE", "default"),

		RequireTLS: EnvBool("CHATROOM_REQUIRE_TLS", false),

		MetricsAddr: EnvString("CHATROOM_METRICS_ADDR", ""),
	}
}

// Validate checks the fields that cannot fall back to a default.
func (c Config) Validate() error {
	if strings.TrimSpace(c.APIBaseURL) == "" {
		return fmt.Errorf("%w: api base url is required", ErrConfig)
	}
	switch strings.ToLower(c.LogFormat) {
	case LogFormatPretty, LogFormatJSON:
	default:
		return fmt.Errorf("%w: log format %q", ErrConfig, c.LogFormat)
	}
	switch strings.ToLower(c.TokenStore) {
	case StoreMemory:
	case StorePebble:
		if strings.TrimSpace(c.StateDir) == "" {
			return fmt.Errorf("%w: pebble store needs a state dir", ErrConfig)
		}
	case StorePostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("%w: postgres store needs CHATROOM_DATABASE_URL", ErrConfig)
		}
	default:
		return fmt.Errorf("%w: token store %q", ErrConfig, c.TokenStore)
	}
	return nil
}
