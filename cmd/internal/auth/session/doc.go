// Package session implements the ChatRoom client's session/token lifecycle.
//
// It owns the access/refresh token pair and the renewal protocol:
//   - proactive periodic renewal, at roughly 2/3 of the access-token lifetime;
//   - reactive renewal when an authorized call answers 401, followed by exactly one retry;
//   - single-flight renewal: concurrent callers share one network refresh and its outcome;
//   - session termination (tokens cleared, timer disarmed) when renewal is impossible.
//
// Token persistence is pluggable behind Store (memory, pebble, postgres, and a
// write-through in-memory mirror). Access tokens are opaque to this package unless
// a PASETO v4 public key is configured, in which case their lifetime is read from
// the iat/exp claims.
package session
