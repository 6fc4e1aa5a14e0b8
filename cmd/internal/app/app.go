// Package app wires the ChatRoom client runtime: config, logging, token
// storage, the session manager, the REST client and the channel hub.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	authapi "github.com/stowh/ChatRoom/cmd/internal/auth/api"
	"github.com/stowh/ChatRoom/cmd/internal/auth/session"
	"github.com/stowh/ChatRoom/cmd/internal/metrics"
	"github.com/stowh/ChatRoom/cmd/internal/realtime"
)

// App is the client runtime. It owns the token store resources and the
// renewal timer, so callers must Close it.
type App struct {
	cfg Config
	log Logger

	reg     *prometheus.Registry
	metrics *metrics.Metrics

	store   session.Store
	closers []func(context.Context) error

	sess   *session.Manager
	client *authapi.Client
	hub    *realtime.Hub

	metricsSrv *metricsServer
}

// New constructs a fully wired App and resumes any persisted session.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat, nil)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	wsCfg, err := realtime.LoadConfigFromEnv(cfg.APIBaseURL)
	if err != nil {
		return nil, err
	}
	if err := ValidateSecurityConfig(cfg, wsCfg.URL); err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, log: log, reg: prometheus.NewRegistry()}
	a.metrics = metrics.New(a.reg)

	a.store, err = a.openStore(ctx)
	if err != nil {
		return nil, err
	}

	httpc := newHTTPClient(cfg.HTTPTimeout, log)
	a.sess, err = session.NewManager(sessCfg, cfg.APIBaseURL, a.store,
		session.WithHTTPClient(httpc),
		session.WithLogger(log),
		session.WithMetrics(a.metrics),
	)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	a.client = authapi.NewClient(a.sess, log)
	a.hub = realtime.NewHub(wsCfg, log,
		realtime.WithMetrics(a.metrics),
		realtime.WithHTTPClient(httpc),
	)

	if cfg.MetricsAddr != "" {
		a.metricsSrv, err = startMetricsServer(cfg.MetricsAddr, a.reg, log)
		if err != nil {
			_ = a.Close(ctx)
			return nil, err
		}
	}

	if _, err := a.sess.Resume(ctx); err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("resume session: %w", err)
	}

	log.Info("app.ready", "api", cfg.APIBaseURL, "ws", wsCfg.URL, "store", cfg.TokenStore)
	return a, nil
}

// Session returns the session manager.
func (a *App) Session() *session.Manager { return a.sess }

// Client returns the REST client.
func (a *App) Client() *authapi.Client { return a.client }

// Hub returns the channel hub.
func (a *App) Hub() *realtime.Hub { return a.hub }

// Registry returns the Prometheus registry holding the client metrics.
func (a *App) Registry() *prometheus.Registry { return a.reg }

// Close disconnects every channel, stops renewals and releases the store.
// Persisted tokens are kept.
func (a *App) Close(ctx context.Context) error {
	if a.hub != nil {
		a.hub.CloseAll()
	}
	if a.sess != nil {
		a.sess.Close()
	}

	var errs []error
	if a.metricsSrv != nil {
		if err := a.metricsSrv.Close(ctx); err != nil {
			errs = append(errs, err)
		}
		a.metricsSrv = nil
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.log.Error("store.close.fail", "err", err)
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// openStore builds the configured token store. Durable backends are wrapped in
// a MirrorStore so reads stay in memory.
func (a *App) openStore(ctx context.Context) (session.Store, error) {
	switch strings.ToLower(a.cfg.TokenStore) {
	case StoreMemory:
		a.log.Info("store.memory")
		return session.NewMemoryStore(), nil

	case StorePebble:
		dir := filepath.Join(a.cfg.StateDir, "tokens")
		ps, err := session.OpenPebbleStore(dir)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return ps.Close() })
		a.log.Info("store.pebble", "dir", dir)
		return session.NewMirrorStore(ps), nil

	case StorePostgres:
		pool, err := NewDBPool(ctx, a.cfg)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, closePool(pool))

		ps := session.NewPostgresStore(pool, a.cfg.Profile)
		if err := ps.EnsureSchema(ctx); err != nil {
			_ = a.Close(ctx)
			return nil, err
		}
		a.log.Info("store.postgres", "profile", a.cfg.Profile)
		return session.NewMirrorStore(ps), nil
	}
	return nil, fmt.Errorf("%w: token store %q", ErrConfig, a.cfg.TokenStore)
}

func closePool(pool *pgxpool.Pool) func(context.Context) error {
	return func(context.Context) error {
		pool.Close()
		return nil
	}
}
