package realtime

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	v1 "github.com/stowh/ChatRoom/shared/contracts/chat/v1"
)

const (
	defaultDialTimeout  = 10 * time.Second
	defaultWriteTimeout = 5 * time.Second

	// Max bytes per inbound frame.
	defaultReadLimit = 64 << 10 // 64 KiB
)

// Config controls channel connections.
type Config struct {
	// URL is the channel endpoint, e.g. ws://127.0.0.1:8080/api/v1/rooms/ws.
	URL string

	DialTimeout  time.Duration
	WriteTimeout time.Duration
	ReadLimit    int64

	Encoding PayloadEncoding
}

// DefaultConfig returns a Config for the channel endpoint of the given API base URL.
func DefaultConfig(apiBase string) (Config, error) {
	u, err := ChannelURL(apiBase)
	if err != nil {
		return Config{}, err
	}
	cfg := defaults()
	cfg.URL = u
	return cfg, nil
}

func defaults() Config {
	return Config{
		DialTimeout:  defaultDialTimeout,
		WriteTimeout: defaultWriteTimeout,
		ReadLimit:    defaultReadLimit,
		Encoding:     EncodingAuto,
	}
}

// LoadConfigFromEnv builds a Config from the API base URL and environment overrides.
//
// Optional:
//   - CHATROOM_WS_URL (full channel endpoint; overrides the derived one)
//   - CHATROOM_WS_DIAL_TIMEOUT, CHATROOM_WS_WRITE_TIMEOUT
//   - CHATROOM_WS_READ_LIMIT (bytes)
//   - CHATROOM_PAYLOAD_ENCODING (auto|base64|text)
func LoadConfigFromEnv(apiBase string) (Config, error) {
	cfg := defaults()

	var err error
	if override := strings.TrimSpace(os.Getenv("CHATROOM_WS_URL")); override != "" {
		cfg.URL, err = normalizeChannelURL(override)
	} else {
		cfg.URL, err = ChannelURL(apiBase)
	}
	if err != nil {
		return Config{}, err
	}

	cfg.DialTimeout = envDuration("CHATROOM_WS_DIAL_TIMEOUT", cfg.DialTimeout)
	cfg.WriteTimeout = envDuration("CHATROOM_WS_WRITE_TIMEOUT", cfg.WriteTimeout)
	cfg.ReadLimit = envInt64("CHATROOM_WS_READ_LIMIT", cfg.ReadLimit)

	cfg.Encoding, err = ParsePayloadEncoding(os.Getenv("CHATROOM_PAYLOAD_ENCODING"))
	if err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.URL == "" || c.DialTimeout <= 0 || c.WriteTimeout <= 0 || c.ReadLimit <= 0 {
		return ErrConfig
	}
	if _, err := ParsePayloadEncoding(string(c.Encoding)); err != nil {
		return err
	}
	return nil
}

// ChannelURL derives the channel endpoint from the REST base URL:
// http becomes ws, https becomes wss, and the rooms/ws path is appended.
func ChannelURL(apiBase string) (string, error) {
	apiBase = strings.TrimSpace(apiBase)
	if apiBase == "" {
		return "", fmt.Errorf("%w: empty api base url", ErrConfig)
	}
	if !strings.Contains(apiBase, "://") {
		apiBase = "http://" + apiBase
	}

	u, err := url.Parse(apiBase)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("%w: api base url %q", ErrConfig, apiBase)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrConfig, u.Scheme)
	}

	u.Path = strings.TrimRight(u.Path, "/") + v1.PathRoomsWS
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

func normalizeChannelURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("%w: channel url %q", ErrConfig, raw)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrConfig, u.Scheme)
	}
	return u.String(), nil
}

// dialURL adds the room and token parameters to the channel endpoint.
func (c Config) dialURL(room, token string) (string, error) {
	u, err := url.Parse(c.URL)
	if err != nil {
		return "", fmt.Errorf("%w: channel url %q", ErrConfig, c.URL)
	}
	q := u.Query()
	q.Set(v1.QueryRoom, room)
	q.Set(v1.QueryToken, token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ---- env helpers ----

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
