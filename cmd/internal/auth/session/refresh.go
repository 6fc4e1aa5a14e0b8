package session

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/stowh/ChatRoom/cmd/internal/metrics"
	"github.com/stowh/ChatRoom/cmd/security/token"
	v1 "github.com/stowh/ChatRoom/shared/contracts/chat/v1"
)

const renewKey = "renew"

// Renew exchanges the refresh token for a new pair.
//
// Concurrent callers share one network call. Each caller waits at most
// Config.RenewalWaitTimeout and then gets ErrRenewalTimeout; the shared call
// keeps running and still stores its result.
func (m *Manager) Renew(ctx context.Context) (TokenPair, error) {
	return m.renew(ctx, "")
}

// renew joins or starts the shared renewal. When stale is non-empty and the
// stored access token already differs from it, another caller renewed in the
// meantime and the stored pair is returned without a network call.
func (m *Manager) renew(ctx context.Context, stale string) (TokenPair, error) {
	if stale != "" {
		if cur, err := m.store.Load(ctx); err == nil && cur.AccessToken != "" && cur.AccessToken != stale {
			return cur, nil
		}
	}

	ch := m.flight.DoChan(renewKey, func() (any, error) {
		return m.renewOnce(context.WithoutCancel(ctx), stale)
	})

	wait := time.NewTimer(m.cfg.RenewalWaitTimeout)
	defer wait.Stop()

	select {
	case res := <-ch:
		if res.Err != nil {
			return TokenPair{}, res.Err
		}
		return res.Val.(TokenPair), nil
	case <-wait.C:
		m.metrics.Renewal(metrics.RenewTimeout)
		m.log.Warn("session.renew.wait_timeout", "timeout", m.cfg.RenewalWaitTimeout.String())
		return TokenPair{}, ErrRenewalTimeout
	case <-ctx.Done():
		return TokenPair{}, ctx.Err()
	}
}

// renewOnce is the body of the shared renewal. It runs at most once at a time.
func (m *Manager) renewOnce(ctx context.Context, stale string) (TokenPair, error) {
	m.renewing.Store(true)
	defer m.renewing.Store(false)

	epoch := m.epoch.Load()

	pair, err := m.store.Load(ctx)
	if err != nil {
		return TokenPair{}, RenewalError{Err: err}
	}
	if stale != "" && pair.AccessToken != "" && pair.AccessToken != stale {
		return pair, nil
	}
	if pair.RefreshToken == "" {
		m.metrics.Renewal(metrics.RenewNoToken)
		m.disarm()
		return TokenPair{}, ErrNoRefreshToken
	}

	start := time.Now()
	resp, err := m.do(ctx, Request{
		Method: http.MethodPost,
		Path:   v1.PathRefresh,
		Body:   v1.RefreshTokenRequest{Token: pair.RefreshToken},
	}, "")
	if err != nil {
		m.metrics.Renewal(metrics.RenewFailed)
		m.log.Warn("session.renew.fail", "err", err, "duration_ms", time.Since(start).Milliseconds())
		if m.epoch.Load() == epoch {
			m.endSession(ctx, "renewal_failed")
		}
		return TokenPair{}, RenewalError{Err: err}
	}

	next, err := decodeTokenPair(resp)
	if err != nil {
		// The stored pair stays as it was; only the timer stops.
		m.metrics.Renewal(metrics.RenewFailed)
		m.log.Warn("session.renew.missing_token")
		m.disarm()
		return TokenPair{}, RenewalError{Err: err}
	}

	if m.epoch.Load() != epoch {
		m.metrics.Renewal(metrics.RenewFailed)
		m.log.Info("session.renew.discarded")
		return TokenPair{}, RenewalError{Err: ErrSessionExpired}
	}

	if err := m.store.Save(ctx, next); err != nil {
		m.metrics.Renewal(metrics.RenewFailed)
		return TokenPair{}, RenewalError{Err: fmt.Errorf("save tokens: %w", err)}
	}
	m.arm(next.AccessToken)

	m.metrics.Renewal(metrics.RenewOK)
	m.log.Info("session.renew.ok",
		"access", token.Fingerprint(next.AccessToken),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return next, nil
}
