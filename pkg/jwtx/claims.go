package jwtx

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// Issuer is stamped into every token this service mints.
	Issuer = "comma-auth"

	// Audience is the single audience access tokens are minted for.
	Audience = "comma-apps"

	// TypeRefresh discriminates refresh tokens from access tokens.
	TypeRefresh = "refresh"

	DefaultAccessTokenTTL  = 30 * time.Minute
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// Profile is the identity embedded in an access token.
type Profile struct {
	Email    string
	Name     string
	Domain   string
	Provider string
	Picture  *string
}

// AccessClaims is the access token payload. Field names and their order are
// part of the wire contract with every downstream verifier, so aud is a
// plain string and picture is null rather than omitted.
type AccessClaims struct {
	Subject     string           `json:"sub"`
	Name        string           `json:"name"`
	Email       string           `json:"email"`
	Domain      string           `json:"domain"`
	Provider    string           `json:"provider"`
	Picture     *string          `json:"picture"`
	Scopes      []string         `json:"scopes"`
	Requires2FA bool             `json:"requires_2fa"`
	ExpiresAt   *jwt.NumericDate `json:"exp"`
	IssuedAt    *jwt.NumericDate `json:"iat"`
	Issuer      string           `json:"iss"`
	Audience    string           `json:"aud"`

	// Type is never set on access tokens. It is decoded only so a refresh
	// token presented as an access token can be told apart.
	Type string `json:"type,omitempty"`
}

// NewAccessClaims builds access claims issued at now, truncated to the
// second so that exp - iat equals ttl exactly.
func NewAccessClaims(p Profile, scopes []string, requires2FA bool, ttl time.Duration, now time.Time) AccessClaims {
	now = now.UTC().Truncate(time.Second)
	if scopes == nil {
		scopes = []string{}
	}
	return AccessClaims{
		Subject:     p.Email,
		Name:        p.Name,
		Email:       p.Email,
		Domain:      p.Domain,
		Provider:    p.Provider,
		Picture:     p.Picture,
		Scopes:      scopes,
		Requires2FA: requires2FA,
		ExpiresAt:   jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:    jwt.NewNumericDate(now),
		Issuer:      Issuer,
		Audience:    Audience,
	}
}

func (c AccessClaims) GetExpirationTime() (*jwt.NumericDate, error) { return c.ExpiresAt, nil }
func (c AccessClaims) GetIssuedAt() (*jwt.NumericDate, error)       { return c.IssuedAt, nil }
func (c AccessClaims) GetNotBefore() (*jwt.NumericDate, error)      { return nil, nil }
func (c AccessClaims) GetIssuer() (string, error)                   { return c.Issuer, nil }
func (c AccessClaims) GetSubject() (string, error)                  { return c.Subject, nil }

func (c AccessClaims) GetAudience() (jwt.ClaimStrings, error) {
	if c.Audience == "" {
		return nil, nil
	}
	return jwt.ClaimStrings{c.Audience}, nil
}

// RefreshClaims is the refresh token payload.
type RefreshClaims struct {
	Subject   string           `json:"sub"`
	Type      string           `json:"type"`
	ExpiresAt *jwt.NumericDate `json:"exp"`
	IssuedAt  *jwt.NumericDate `json:"iat"`
	Issuer    string           `json:"iss"`
}

// NewRefreshClaims builds refresh claims for email issued at now.
func NewRefreshClaims(email string, ttl time.Duration, now time.Time) RefreshClaims {
	now = now.UTC().Truncate(time.Second)
	return RefreshClaims{
		Subject:   email,
		Type:      TypeRefresh,
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		Issuer:    Issuer,
	}
}

func (c RefreshClaims) GetExpirationTime() (*jwt.NumericDate, error) { return c.ExpiresAt, nil }
func (c RefreshClaims) GetIssuedAt() (*jwt.NumericDate, error)       { return c.IssuedAt, nil }
func (c RefreshClaims) GetNotBefore() (*jwt.NumericDate, error)      { return nil, nil }
func (c RefreshClaims) GetIssuer() (string, error)                   { return c.Issuer, nil }
func (c RefreshClaims) GetSubject() (string, error)                  { return c.Subject, nil }
func (c RefreshClaims) GetAudience() (jwt.ClaimStrings, error)       { return nil, nil }
