package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/commacm/comma-auth/internal/auth/domain"
	"github.com/commacm/comma-auth/internal/auth/metrics"
	"github.com/commacm/comma-auth/pkg/httpx"
	"github.com/commacm/comma-auth/pkg/jwtx"
	"github.com/commacm/comma-auth/pkg/slogx"
)

// TokenType is the token_type of every pair this service hands out.
const TokenType = "bearer"

var ErrInvalidToken = errors.New("invalid_token")

// Key is what TokenService signs and verifies with. *jwtx.HMACKey is the
// only implementation.
type Key interface {
	jwtx.Signer
	jwtx.Verifier
}

// TokenService mints and checks access and refresh tokens. Verification is
// pure computation and safe for unlimited concurrency.
type TokenService struct {
	Key        Key
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Now        func() time.Time
	Metrics    metrics.Recorder
}

func NewTokenService(key Key, accessTTL, refreshTTL time.Duration) *TokenService {
	if accessTTL <= 0 {
		accessTTL = jwtx.DefaultAccessTokenTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = jwtx.DefaultRefreshTokenTTL
	}
	return &TokenService{
		Key:        key,
		AccessTTL:  accessTTL,
		RefreshTTL: refreshTTL,
		Now:        time.Now,
		Metrics:    metrics.Nop{},
	}
}

func (s *TokenService) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// IssueAccessToken embeds u and scopes. requires2FA marks a token that has
// not been through an OTP step-up.
func (s *TokenService) IssueAccessToken(u domain.UserInfo, scopes []string, requires2FA bool) (string, error) {
	claims := jwtx.NewAccessClaims(jwtx.Profile{
		Email:    u.Email,
		Name:     u.Name,
		Domain:   u.Domain,
		Provider: u.Provider.String(),
		Picture:  u.Picture,
	}, domain.NormalizeScopes(scopes), requires2FA, s.AccessTTL, s.now())

	tok, err := s.Key.SignAccess(claims)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}

	kind := "access"
	if !requires2FA {
		kind = "step_up"
	}
	s.Metrics.TokenIssued(kind)
	return tok, nil
}

// UpgradeToFullAccess is IssueAccessToken with the step-up flag cleared.
func (s *TokenService) UpgradeToFullAccess(u domain.UserInfo, scopes []string) (string, error) {
	return s.IssueAccessToken(u, scopes, false)
}

func (s *TokenService) IssueRefreshToken(email string) (string, error) {
	tok, err := s.Key.SignRefresh(jwtx.NewRefreshClaims(email, s.RefreshTTL, s.now()))
	if err != nil {
		return "", fmt.Errorf("sign refresh token: %w", err)
	}
	s.Metrics.TokenIssued("refresh")
	return tok, nil
}

// IssuePair mints an access token and a refresh token for u.
func (s *TokenService) IssuePair(u domain.UserInfo, scopes []string, requires2FA bool) (domain.TokenPair, error) {
	access, err := s.IssueAccessToken(u, scopes, requires2FA)
	if err != nil {
		return domain.TokenPair{}, err
	}
	refresh, err := s.IssueRefreshToken(u.Email)
	if err != nil {
		return domain.TokenPair{}, err
	}
	return domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    TokenType,
		ExpiresIn:    int64(s.AccessTTL / time.Second),
		Requires2FA:  requires2FA,
	}, nil
}

// VerifyAccessToken fails closed: any problem yields domain.InvalidToken()
// and discloses nothing about the token.
func (s *TokenService) VerifyAccessToken(token string) domain.TokenValidation {
	v, _ := s.verifyAccess(token)
	return v
}

func (s *TokenService) verifyAccess(token string) (domain.TokenValidation, error) {
	c, err := s.Key.VerifyAccess(token)
	if err == nil {
		_, err = domain.ParseProvider(c.Provider)
	}
	if err != nil {
		s.Metrics.TokenVerified("invalid")
		return domain.InvalidToken(), err
	}

	exp := c.ExpiresAt.Time.UTC()
	s.Metrics.TokenVerified("valid")
	return domain.TokenValidation{
		Valid: true,
		UserInfo: &domain.UserInfo{
			Email:    c.Email,
			Name:     c.Name,
			Picture:  c.Picture,
			Domain:   c.Domain,
			Provider: domain.Provider(c.Provider),
		},
		Scopes:      domain.NormalizeScopes(c.Scopes),
		Requires2FA: c.Requires2FA,
		ExpiresAt:   &exp,
	}, nil
}

// VerifyRefreshToken returns the subject of a valid, unexpired refresh token.
func (s *TokenService) VerifyRefreshToken(token string) (string, bool) {
	c, err := s.Key.VerifyRefresh(token)
	if err != nil || c.Subject == "" {
		return "", false
	}
	return c.Subject, true
}

// VerifyBearer implements httpx.BearerVerifier. The principal's Claims is
// the domain.TokenValidation.
func (s *TokenService) VerifyBearer(ctx context.Context, raw string) (httpx.Principal, error) {
	v, err := s.verifyAccess(raw)
	if err != nil {
		slogx.FromContext(ctx).Debug("access token rejected", "reason", err)
		return httpx.Principal{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return httpx.Principal{
		Subject:     v.UserInfo.Email,
		Scopes:      v.Scopes,
		Requires2FA: v.Requires2FA,
		Claims:      v,
	}, nil
}

// ValidationFromPrincipal recovers what VerifyBearer stored.
func ValidationFromPrincipal(p httpx.Principal) (domain.TokenValidation, bool) {
	v, ok := p.Claims.(domain.TokenValidation)
	return v, ok && v.Valid && v.UserInfo != nil
}
