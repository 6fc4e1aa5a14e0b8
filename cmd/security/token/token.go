package token

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// fingerprintHexLen is the number of hex chars kept from the digest.
const fingerprintHexLen = 12

// HashSHA256Hex returns a SHA-256 hex digest of s.
func HashSHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Fingerprint returns a short log-safe identity for a token.
// An empty (absent) token yields "-".
func Fingerprint(tok string) string {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return "-"
	}
	return HashSHA256Hex(tok)[:fingerprintHexLen]
}

// Redact replaces every occurrence of tok in s with its fingerprint.
// It is used for URLs that carry a token as a query parameter.
func Redact(s, tok string) string {
	if strings.TrimSpace(tok) == "" {
		return s
	}
	return strings.ReplaceAll(s, tok, "tok:"+Fingerprint(tok))
}
