// Package metrics holds the client-side Prometheus instruments.
//
// A nil *Metrics is valid and records nothing, so library users that do not
// care about metrics can pass nil everywhere.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "chatroom"

// Renewal results.
const (
	RenewOK       = "ok"
	RenewFailed   = "failed"
	RenewTimeout  = "timeout"
	RenewNoToken  = "no_token"
	RenewPeriodic = "periodic"
)

// Frame results.
const (
	FrameDelivered     = "delivered"
	FrameEmpty         = "dropped_empty"
	FrameDecodeError   = "decode_error"
	FrameTokenRejected = "token_rejected"
)

// Connection results.
const (
	ConnOpen          = "open"
	ConnFailed        = "failed"
	ConnAbnormalClose = "abnormal_close"
	ConnCleanClose    = "clean_close"
)

// Metrics is the set of counters shared by the session manager and channel handlers.
type Metrics struct {
	renewals    *prometheus.CounterVec
	requests    *prometheus.CounterVec
	retries     prometheus.Counter
	frames      *prometheus.CounterVec
	connections *prometheus.CounterVec
	openConns   prometheus.Gauge
}

// New constructs Metrics and registers them on reg.
// When reg is nil the instruments are created but not registered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		renewals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "renewals_total",
			Help:      "Token renewal attempts by result.",
		}, []string{"result"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "REST calls by path and status class.",
		}, []string{"path", "class"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "retries_total",
			Help:      "Calls retried after a 401-driven renewal.",
		}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "frames_total",
			Help:      "Inbound channel frames by decode result.",
		}, []string{"result"}),
		connections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "connections_total",
			Help:      "Channel lifecycle transitions by result.",
		}, []string{"result"}),
		openConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "open",
			Help:      "Currently open channel connections.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.renewals, m.requests, m.retries, m.frames, m.connections, m.openConns)
	}
	return m
}

// Renewal counts one renewal outcome.
func (m *Metrics) Renewal(result string) {
	if m == nil {
		return
	}
	m.renewals.WithLabelValues(result).Inc()
}

// Request counts one REST call; status 0 means the transport failed.
func (m *Metrics) Request(path string, status int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(path, statusClass(status)).Inc()
}

// Retry counts one retry after renewal.
func (m *Metrics) Retry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

// Frame counts one inbound frame outcome.
func (m *Metrics) Frame(result string) {
	if m == nil {
		return
	}
	m.frames.WithLabelValues(result).Inc()
}

// Connection counts one lifecycle transition and tracks the open gauge.
func (m *Metrics) Connection(result string) {
	if m == nil {
		return
	}
	m.connections.WithLabelValues(result).Inc()
	switch result {
	case ConnOpen:
		m.openConns.Inc()
	case ConnAbnormalClose, ConnCleanClose:
		m.openConns.Dec()
	}
}

// ConnectionReleased decrements the open gauge for a locally closed connection.
func (m *Metrics) ConnectionReleased() {
	if m == nil {
		return
	}
	m.openConns.Dec()
}

func statusClass(status int) string {
	switch {
	case status <= 0:
		return "network"
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
