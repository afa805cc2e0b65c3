package jwtx

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Signer mints tokens.
type Signer interface {
	Alg() string
	SignAccess(AccessClaims) (string, error)
	SignRefresh(RefreshClaims) (string, error)
}

// Verifier checks a token's signature and registered claims.
type Verifier interface {
	VerifyAccess(token string) (AccessClaims, error)
	VerifyRefresh(token string) (RefreshClaims, error)
}

// HMACKey signs and verifies with a shared secret. It is safe for
// concurrent use.
type HMACKey struct {
	method *jwt.SigningMethodHMAC
	secret []byte
	now    func() time.Time
}

var _ interface {
	Signer
	Verifier
} = (*HMACKey)(nil)

// Option configures an HMACKey.
type Option func(*HMACKey)

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(k *HMACKey) { k.now = now }
}

// NewHMACKey returns a key for alg, one of HS256, HS384 or HS512.
func NewHMACKey(alg string, secret []byte, opts ...Option) (*HMACKey, error) {
	var method *jwt.SigningMethodHMAC
	switch strings.ToUpper(strings.TrimSpace(alg)) {
	case "", "HS256":
		method = jwt.SigningMethodHS256
	case "HS384":
		method = jwt.SigningMethodHS384
	case "HS512":
		method = jwt.SigningMethodHS512
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlg, alg)
	}
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}

	k := &HMACKey{method: method, secret: secret, now: time.Now}
	for _, opt := range opts {
		opt(k)
	}
	return k, nil
}

func (k *HMACKey) Alg() string { return k.method.Alg() }

func (k *HMACKey) SignAccess(c AccessClaims) (string, error) {
	return k.sign(c)
}

func (k *HMACKey) SignRefresh(c RefreshClaims) (string, error) {
	return k.sign(c)
}

func (k *HMACKey) sign(c jwt.Claims) (string, error) {
	s, err := jwt.NewWithClaims(k.method, c).SignedString(k.secret)
	if err != nil {
		return "", fmt.Errorf("jwtx: sign: %w", err)
	}
	return s, nil
}

// VerifyAccess validates signature, alg, issuer, audience and expiry, and
// refuses refresh-class tokens. A token is expired from the second its exp
// names onwards.
func (k *HMACKey) VerifyAccess(token string) (AccessClaims, error) {
	var c AccessClaims
	if err := k.parse(token, &c, jwt.WithAudience(Audience)); err != nil {
		return AccessClaims{}, err
	}
	if c.Type != "" {
		return AccessClaims{}, ErrWrongType
	}
	if c.Subject == "" {
		return AccessClaims{}, fmt.Errorf("%w: missing sub", ErrInvalidClaim)
	}
	return c, nil
}

// VerifyRefresh validates a refresh token. Access tokens fail with ErrWrongType.
func (k *HMACKey) VerifyRefresh(token string) (RefreshClaims, error) {
	var c RefreshClaims
	if err := k.parse(token, &c); err != nil {
		return RefreshClaims{}, err
	}
	if c.Type != TypeRefresh {
		return RefreshClaims{}, ErrWrongType
	}
	if c.Subject == "" {
		return RefreshClaims{}, fmt.Errorf("%w: missing sub", ErrInvalidClaim)
	}
	return c, nil
}

func (k *HMACKey) parse(token string, into jwt.Claims, extra ...jwt.ParserOption) error {
	opts := append([]jwt.ParserOption{
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(k.now),
	}, extra...)

	_, err := jwt.NewParser(opts...).ParseWithClaims(token, into, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != k.method.Alg() {
			return nil, ErrAlgMismatch
		}
		return k.secret, nil
	})
	return mapError(err)
}

func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrAlgMismatch):
		return ErrAlgMismatch
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrInvalidSig
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return ErrIssuer
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return ErrAudience
	default:
		return fmt.Errorf("%w: %v", ErrInvalidClaim, err)
	}
}
