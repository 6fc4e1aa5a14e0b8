package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stowh/ChatRoom/cmd/internal/metrics"
	"github.com/stowh/ChatRoom/cmd/security/token"
	v1 "github.com/stowh/ChatRoom/shared/contracts/chat/v1"

	"golang.org/x/sync/singleflight"
)

// Manager owns the client session: the token pair, the renewal protocol and the
// periodic renewal timer.
//
// It is safe for concurrent use. Construct one per logical session; tests build
// isolated instances with a MemoryStore.
type Manager struct {
	cfg     Config
	log     *slog.Logger
	metrics *metrics.Metrics

	baseURL string
	httpc   *http.Client
	store   Store

	inspector LifetimeInspector

	// flight coalesces concurrent renewals into one network call.
	flight   singleflight.Group
	renewing atomic.Bool

	// epoch changes whenever a session is opened or ended; a renewal that
	// started under an older epoch does not write its result.
	epoch atomic.Uint64

	timerMu   sync.Mutex
	timerStop chan struct{}
}

// Option customizes a Manager.
type Option func(*Manager)

// WithHTTPClient sets the HTTP client used for REST calls.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) {
		if c != nil {
			m.httpc = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithLifetimeInspector derives the renewal interval from each access token.
func WithLifetimeInspector(i LifetimeInspector) Option {
	return func(m *Manager) { m.inspector = i }
}

// NewManager constructs a Manager for the API rooted at baseURL.
func NewManager(cfg Config, baseURL string, store Store, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" || store == nil {
		return nil, ErrConfig
	}

	m := &Manager{
		cfg:     cfg,
		log:     slog.New(slog.DiscardHandler),
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: 15 * time.Second},
		store:   store,
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.inspector == nil && cfg.PasetoV4PublicKeyHex != "" {
		insp, err := NewPasetoV4Inspector(cfg.PasetoV4PublicKeyHex)
		if err != nil {
			return nil, err
		}
		m.inspector = insp
	}
	return m, nil
}

// Resume loads persisted tokens and arms the renewal timer when a refresh token exists.
func (m *Manager) Resume(ctx context.Context) (TokenPair, error) {
	pair, err := m.store.Load(ctx)
	if err != nil {
		return TokenPair{}, err
	}
	if pair.RefreshToken != "" {
		m.arm(pair.AccessToken)
	}
	m.log.Info("session.resume", "logged_in", !pair.Empty(), "access", token.Fingerprint(pair.AccessToken))
	return pair, nil
}

// Tokens returns the current token pair.
func (m *Manager) Tokens(ctx context.Context) (TokenPair, error) {
	return m.store.Load(ctx)
}

// Close disarms the renewal timer. Stored tokens are kept.
func (m *Manager) Close() {
	m.disarm()
}

// Login opens a session with email/password credentials.
func (m *Manager) Login(ctx context.Context, creds v1.LoginRequest) (*Response, error) {
	return m.openSession(ctx, Request{Method: http.MethodPost, Path: v1.PathLogin, Body: creds})
}

// Register creates an account and opens a session.
func (m *Manager) Register(ctx context.Context, creds v1.RegisterRequest) (*Response, error) {
	return m.openSession(ctx, Request{Method: http.MethodPost, Path: v1.PathRegister, Body: creds})
}

func (m *Manager) openSession(ctx context.Context, req Request) (*Response, error) {
	resp, err := m.AuthorizedRequest(ctx, req)
	if err != nil {
		m.log.Info("session.open.fail", "path", req.Path, "err", err)
		return nil, err
	}

	pair, err := decodeTokenPair(resp)
	if err != nil {
		m.log.Warn("session.open.missing_token", "path", req.Path)
		return resp, fmt.Errorf("%s %s: %w", req.Method, req.Path, err)
	}

	m.epoch.Add(1)
	if err := m.store.Save(ctx, pair); err != nil {
		return resp, fmt.Errorf("save tokens: %w", err)
	}
	m.arm(pair.AccessToken)

	m.log.Info("session.open.ok", "path", req.Path, "access", token.Fingerprint(pair.AccessToken))
	return resp, nil
}

// Logout notifies the server (best-effort) and always clears the local session.
func (m *Manager) Logout(ctx context.Context) {
	pair, err := m.store.Load(ctx)
	if err != nil {
		m.log.Warn("session.logout.load_fail", "err", err)
	}

	if pair.RefreshToken != "" {
		_, err := m.AuthorizedRequest(ctx, Request{
			Method: http.MethodPost,
			Path:   v1.PathLogout,
			Body:   v1.RefreshTokenRequest{Token: pair.RefreshToken},
		})
		if err != nil {
			m.log.Warn("session.logout.notify_fail", "err", err)
		}
	}

	m.endSession(ctx, "logout")
}

// AuthorizedRequest performs req with the current access token.
//
// A 401 on a bearer-authenticated call triggers one renewal and exactly one retry.
// A second 401 ends the session and returns ErrSessionExpired.
func (m *Manager) AuthorizedRequest(ctx context.Context, req Request) (*Response, error) {
	if unauthenticated(req.Path) {
		return m.do(ctx, req, "")
	}

	pair, err := m.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load tokens: %w", err)
	}

	resp, err := m.do(ctx, req, pair.AccessToken)
	if !IsUnauthorized(err) {
		return resp, err
	}

	m.log.Info("session.request.unauthorized", "path", req.Path, "access", token.Fingerprint(pair.AccessToken))

	renewed, err := m.renew(ctx, pair.AccessToken)
	if err != nil {
		return nil, err
	}

	m.metrics.Retry()
	resp, err = m.do(ctx, req, renewed.AccessToken)
	if IsUnauthorized(err) {
		m.endSession(ctx, "unauthorized_after_renewal")
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.Path, ErrSessionExpired)
	}
	return resp, err
}

// Invalidate ends the session locally without contacting the server.
func (m *Manager) Invalidate(ctx context.Context) {
	m.endSession(ctx, "invalidated")
}

// endSession clears the stored tokens and disarms the timer.
// Local clearing always happens; a durable-store failure is only logged.
func (m *Manager) endSession(ctx context.Context, reason string) {
	m.epoch.Add(1)
	m.disarm()
	if err := m.store.Clear(context.WithoutCancel(ctx)); err != nil {
		m.log.Error("session.clear.fail", "reason", reason, "err", err)
	}
	m.log.Info("session.end", "reason", reason)
}
