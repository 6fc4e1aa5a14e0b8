package session

import (
	"time"

	paseto "aidanwoods.dev/go-paseto"
)

// LifetimeInspector reads the lifetime of an access token.
// ok is false when the token cannot be inspected; callers fall back to Config.
type LifetimeInspector interface {
	Lifetime(accessToken string) (lifetime time.Duration, ok bool)
}

// PasetoV4Inspector reads iat/exp from PASETO v4.public access tokens.
//
// The client only holds the server's public key, so it can verify but never mint tokens.
type PasetoV4Inspector struct {
	public paseto.V4AsymmetricPublicKey
}

// NewPasetoV4Inspector builds an inspector from a hex-encoded Ed25519 public key.
func NewPasetoV4Inspector(publicKeyHex string) (*PasetoV4Inspector, error) {
	public, err := paseto.NewV4AsymmetricPublicKeyFromHex(publicKeyHex)
	if err != nil {
		return nil, ErrConfig
	}
	return &PasetoV4Inspector{public: public}, nil
}

// Lifetime returns exp - iat for a valid, unexpired token.
func (i *PasetoV4Inspector) Lifetime(accessToken string) (time.Duration, bool) {
	if i == nil || accessToken == "" {
		return 0, false
	}

	// Fresh parser per call so rules never accumulate.
	p := paseto.NewParser()
	parsed, err := p.ParseV4Public(i.public, accessToken, nil)
	if err != nil {
		return 0, false
	}

	iat, err := parsed.GetIssuedAt()
	if err != nil {
		return 0, false
	}
	exp, err := parsed.GetExpiration()
	if err != nil || !exp.After(iat) {
		return 0, false
	}
	return exp.Sub(iat), true
}
