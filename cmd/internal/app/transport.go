package app

import (
	"log/slog"
	"net/http"
	"time"
)

// WithRequestLogging wraps an http.RoundTripper and logs every outbound call.
// Only the path is logged; query strings may carry credentials.
func WithRequestLogging(next http.RoundTripper, log *slog.Logger) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return roundTripFunc(func(r *http.Request) (*http.Response, error) {
		start := time.Now()
		resp, err := next.RoundTrip(r)
		elapsed := time.Since(start).Milliseconds()

		if err != nil {
			log.LogAttrs(r.Context(), slog.LevelWarn, "http.request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int64("duration_ms", elapsed),
				slog.String("result", "network_error"),
				slog.Any("err", err),
			)
			return nil, err
		}

		level, result := requestLogMeta(resp.StatusCode)
		log.LogAttrs(r.Context(), level, "http.request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", resp.StatusCode),
			slog.String("status_class", statusClass(resp.StatusCode)),
			slog.Int64("duration_ms", elapsed),
			slog.String("result", result),
		)
		return resp, nil
	})
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func requestLogMeta(status int) (slog.Level, string) {
	switch {
	case status >= 500:
		return slog.LevelError, "server_error"
	case status >= 400:
		return slog.LevelWarn, "client_error"
	case status >= 300:
		return slog.LevelInfo, "redirect"
	default:
		return slog.LevelInfo, "success"
	}
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}

// newHTTPClient builds the shared REST/handshake client.
func newHTTPClient(timeout time.Duration, log *slog.Logger) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: WithRequestLogging(http.DefaultTransport, log),
	}
}
