// Package token provides log-safe token primitives for the ChatRoom client.
//
// Access and refresh tokens are bearer credentials and must never appear in logs.
// Callers log Fingerprint(token) instead: a short, stable SHA-256 prefix that is
// enough to correlate renewals across log lines without revealing the secret.
package token
