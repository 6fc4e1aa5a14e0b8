package app

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidateSecurityConfig enforces the transport policy at startup.
//
// With RequireTLS set, every endpoint that receives tokens must be https/wss.
// Loopback hosts are exempt so local development keeps working.
func ValidateSecurityConfig(cfg Config, endpoints ...string) error {
	if !cfg.RequireTLS {
		return nil
	}
	for _, raw := range append([]string{cfg.APIBaseURL}, endpoints...) {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("%w: endpoint %q", ErrConfig, raw)
		}
		switch u.Scheme {
		case "https", "wss":
			continue
		}
		if isLoopback(u.Hostname()) {
			continue
		}
		return fmt.Errorf("security policy: CHATROOM_REQUIRE_TLS=true but %s uses %s", u.Host, u.Scheme)
	}
	return nil
}

func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
