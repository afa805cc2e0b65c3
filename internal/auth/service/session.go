package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/commacm/comma-auth/internal/auth/domain"
	"github.com/commacm/comma-auth/internal/auth/metrics"
	"github.com/commacm/comma-auth/internal/auth/otp"
	"github.com/commacm/comma-auth/internal/auth/provider"
	"github.com/commacm/comma-auth/internal/auth/store"
	"github.com/commacm/comma-auth/pkg/slogx"
)

var (
	ErrUnknownProvider          = errors.New("unknown_provider")
	ErrInvalidRedirect          = errors.New("invalid_redirect_url")
	ErrInvalidState             = errors.New("invalid_state")
	ErrAccessDenied             = errors.New("access_denied")
	ErrMissingCode              = errors.New("missing_code")
	ErrExchangeFailed           = errors.New("provider_exchange_failed")
	ErrProviderUnavailable      = errors.New("provider_unavailable")
	ErrIdentityUnavailable      = errors.New("identity_unavailable")
	ErrNotImplemented           = errors.New("not_implemented")
	ErrInvalidPhone             = errors.New("invalid_phone_number")
	ErrInvalidCode              = errors.New("invalid_code")
	ErrReauthenticationRequired = errors.New("reauthentication_required")
)

// SessionService sequences provider logins, OTP step-up and verification.
type SessionService struct {
	Providers *provider.Registry
	States    store.StateStore
	Tokens    *TokenService
	OTP       otp.Verifier
	Policy    domain.ScopePolicy

	// AllowedOrigins bounds where a login may send its token afterwards.
	// Entries are scheme://host[:port].
	AllowedOrigins []string

	Metrics metrics.Recorder
}

func (s *SessionService) metrics() metrics.Recorder {
	if s.Metrics == nil {
		return metrics.Nop{}
	}
	return s.Metrics
}

// LoginStart is what a client needs to send the user to the provider.
type LoginStart struct {
	AuthorizationURL string `json:"authorization_url"`
	State            string `json:"state"`
}

// StartLogin records a one-time state for providerName and returns the
// provider's authorization URL carrying it.
func (s *SessionService) StartLogin(ctx context.Context, providerName, redirectURL string) (LoginStart, error) {
	p, err := s.Providers.Get(providerName)
	if err != nil {
		return LoginStart{}, ErrUnknownProvider
	}

	redirectURL = strings.TrimSpace(redirectURL)
	if redirectURL != "" && !s.redirectAllowed(redirectURL) {
		slogx.FromContext(ctx).Warn("login rejected: redirect_url origin not allowed", "provider", p.Name())
		return LoginStart{}, ErrInvalidRedirect
	}

	key, err := s.States.Create(ctx, p.Name(), redirectURL, s.Policy.Base)
	if err != nil {
		return LoginStart{}, fmt.Errorf("create authorization state: %w", err)
	}

	s.metrics().LoginStarted(p.Name().String())
	return LoginStart{AuthorizationURL: p.AuthCodeURL(key), State: key}, nil
}

func (s *SessionService) redirectAllowed(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		return false
	}
	origin := strings.ToLower(u.Scheme + "://" + u.Host)
	for _, o := range s.AllowedOrigins {
		if strings.ToLower(strings.TrimSuffix(o, "/")) == origin {
			return true
		}
	}
	return false
}

// CallbackParams is everything a provider may send back.
type CallbackParams struct {
	Provider string
	Code     string
	State    string

	// Error is the provider's error parameter, e.g. access_denied.
	Error string

	// IDToken is Apple's inline identity token from a form_post callback.
	IDToken string

	// User is Apple's JSON user object, sent on the first sign-in only.
	User string
}

type CallbackResult struct {
	Pair domain.TokenPair

	// RedirectURL is the URL stored at login start, empty for JSON callers.
	RedirectURL string
}

// CompleteCallback consumes the state, resolves the identity and mints a
// partial-scope token pair that still requires step-up.
func (s *SessionService) CompleteCallback(ctx context.Context, in CallbackParams) (res CallbackResult, err error) {
	p, err := s.Providers.Get(in.Provider)
	if err != nil {
		return res, ErrUnknownProvider
	}

	log := slogx.FromContext(ctx).With("provider", p.Name())
	defer func() {
		s.metrics().CallbackCompleted(p.Name().String(), callbackOutcome(err))
	}()

	st, err := s.consumeState(ctx, p.Name(), in.State)
	if err != nil {
		return res, err
	}

	if in.Error != "" {
		log.Info("provider returned an error", "provider_error", in.Error)
		return res, ErrAccessDenied
	}

	u, err := s.resolveIdentity(ctx, p, in)
	if err != nil {
		return res, err
	}

	pair, err := s.Tokens.IssuePair(u, st.Scopes, true)
	if err != nil {
		return res, err
	}

	log.Info("login completed", "domain_fp", provider.DomainFingerprint(u.Email))
	return CallbackResult{Pair: pair, RedirectURL: st.RedirectURL}, nil
}

func (s *SessionService) consumeState(ctx context.Context, name domain.Provider, key string) (domain.AuthorizationState, error) {
	if key == "" {
		return domain.AuthorizationState{}, ErrInvalidState
	}

	st, err := s.States.Consume(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return st, ErrInvalidState
	}
	if err != nil {
		return st, fmt.Errorf("consume authorization state: %w", err)
	}

	if st.Provider != name {
		slogx.FromContext(ctx).Warn("state issued for another provider", "state_provider", st.Provider)
		return domain.AuthorizationState{}, ErrInvalidState
	}
	return st, nil
}

func (s *SessionService) resolveIdentity(ctx context.Context, p provider.Provider, in CallbackParams) (domain.UserInfo, error) {
	if dec, ok := p.(provider.IdentityTokenDecoder); ok && in.IDToken != "" {
		u, ok := dec.DecodeIdentityToken(ctx, in.IDToken, in.User)
		if !ok {
			return u, ErrIdentityUnavailable
		}
		return u, nil
	}

	if in.Code == "" {
		return domain.UserInfo{}, ErrMissingCode
	}

	tok, err := p.ExchangeCode(ctx, in.Code)
	if err != nil {
		slogx.FromContext(ctx).Warn("code exchange failed", "provider", p.Name(), "err", err)
		switch {
		case errors.Is(err, provider.ErrNotImplemented):
			return domain.UserInfo{}, ErrNotImplemented
		case errors.Is(err, provider.ErrUnavailable):
			return domain.UserInfo{}, ErrProviderUnavailable
		case errors.Is(err, provider.ErrIdentityRejected):
			return domain.UserInfo{}, ErrIdentityUnavailable
		default:
			return domain.UserInfo{}, ErrExchangeFailed
		}
	}

	u, ok := p.FetchIdentity(ctx, tok.AccessToken)
	if !ok {
		return u, ErrIdentityUnavailable
	}
	return u, nil
}

func callbackOutcome(err error) string {
	if err == nil {
		return "success"
	}
	for _, known := range []error{
		ErrInvalidState, ErrAccessDenied, ErrMissingCode, ErrExchangeFailed,
		ErrProviderUnavailable, ErrIdentityUnavailable, ErrNotImplemented,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "error"
}

// SendOTP starts a step-up verification for phone. The verifier's own
// message is logged, never returned.
func (s *SessionService) SendOTP(ctx context.Context, phone string) error {
	if err := otp.ValidatePhone(phone); err != nil {
		return ErrInvalidPhone
	}

	out := s.OTP.SendCode(ctx, phone)
	s.metrics().OTPOperation("send", string(out.Kind))
	if out.Kind != otp.KindSent {
		slogx.FromContext(ctx).Warn("otp send failed", "phone", otp.MaskPhone(phone), "message", out.Message)
		return ErrProviderUnavailable
	}
	return nil
}

// VerifyOTP checks code and, when approved, mints a step-up token pair for
// the identity in v. Only an approved outcome upgrades.
func (s *SessionService) VerifyOTP(ctx context.Context, v domain.TokenValidation, phone, code string) (domain.TokenPair, error) {
	if !v.Valid || v.UserInfo == nil {
		return domain.TokenPair{}, ErrInvalidToken
	}
	if err := otp.ValidatePhone(phone); err != nil {
		return domain.TokenPair{}, ErrInvalidPhone
	}
	if strings.TrimSpace(code) == "" {
		return domain.TokenPair{}, ErrMissingCode
	}

	out := s.OTP.CheckCode(ctx, phone, strings.TrimSpace(code))
	s.metrics().OTPOperation("check", string(out.Kind))
	if !out.Approved() {
		slogx.FromContext(ctx).Info("otp not approved", "phone", otp.MaskPhone(phone), "kind", out.Kind, "message", out.Message)
		return domain.TokenPair{}, ErrInvalidCode
	}

	return s.Tokens.IssuePair(*v.UserInfo, s.Policy.StepUp, false)
}

// QueryOTPStatus reports the latest verification attempt for phone.
func (s *SessionService) QueryOTPStatus(ctx context.Context, phone string) (otp.Status, bool, error) {
	if err := otp.ValidatePhone(phone); err != nil {
		return otp.Status{}, false, ErrInvalidPhone
	}
	st, ok := s.OTP.QueryStatus(ctx, phone)
	outcome := "missing"
	if ok {
		outcome = "found"
	}
	s.metrics().OTPOperation("status", outcome)
	return st, ok, nil
}

// Refresh never mints: there is no persisted identity to rebuild a token
// from. A valid refresh token earns ErrReauthenticationRequired, anything
// else ErrInvalidToken.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) error {
	sub, ok := s.Tokens.VerifyRefreshToken(strings.TrimSpace(refreshToken))
	if !ok {
		return ErrInvalidToken
	}
	slogx.FromContext(ctx).Info("refresh refused, reauthentication required", "domain_fp", provider.DomainFingerprint(sub))
	return ErrReauthenticationRequired
}

// Verify is the service-to-service check behind POST /auth/verify.
func (s *SessionService) Verify(_ context.Context, raw string) domain.TokenValidation {
	return s.Tokens.VerifyAccessToken(raw)
}
