package session

import (
	"context"
	"time"

	"github.com/stowh/ChatRoom/cmd/internal/metrics"
)

const minDerivedInterval = time.Second

// TimerArmed reports whether the periodic renewal timer is running.
func (m *Manager) TimerArmed() bool {
	m.timerMu.Lock()
	defer m.timerMu.Unlock()
	return m.timerStop != nil
}

// arm (re)starts the periodic renewal timer for the given access token.
func (m *Manager) arm(accessToken string) {
	interval := m.renewalInterval(accessToken)

	m.timerMu.Lock()
	if m.timerStop != nil {
		close(m.timerStop)
	}
	stop := make(chan struct{})
	m.timerStop = stop
	m.timerMu.Unlock()

	go m.runTimer(stop, interval)
}

func (m *Manager) disarm() {
	m.timerMu.Lock()
	defer m.timerMu.Unlock()
	if m.timerStop != nil {
		close(m.timerStop)
		m.timerStop = nil
	}
}

func (m *Manager) renewalInterval(accessToken string) time.Duration {
	if m.inspector != nil && accessToken != "" {
		if life, ok := m.inspector.Lifetime(accessToken); ok {
			// The interval stays under the lifetime; tokens too short for the
			// floor fall back to the configured interval.
			if d := DefaultRenewalInterval(life); d >= minDerivedInterval {
				return d
			}
			if minDerivedInterval < life {
				return minDerivedInterval
			}
		}
	}
	return m.cfg.RenewalInterval
}

func (m *Manager) runTimer(stop <-chan struct{}, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-stop:
			return
		case <-t.C:
		}

		// Re-check: a tick can race with disarm.
		select {
		case <-stop:
			return
		default:
		}

		if m.renewing.Load() {
			m.log.Debug("session.timer.skip")
			continue
		}

		m.metrics.Renewal(metrics.RenewPeriodic)
		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.RenewalWaitTimeout)
		_, err := m.renew(ctx, "")
		cancel()
		if err != nil {
			m.log.Warn("session.timer.renew_fail", "err", err)
		}
	}
}
