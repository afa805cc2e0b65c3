// Package provider adapts federated identity providers to one contract.
// Adapters return identity facts only; token minting happens in the service.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/commacm/comma-auth/internal/auth/domain"
	"github.com/commacm/comma-auth/pkg/cryptox"
	"github.com/commacm/comma-auth/pkg/slogx"
)

// DefaultTimeout bounds every outbound provider call.
const DefaultTimeout = 5 * time.Second

var (
	ErrUnknownProvider = errors.New("provider: unknown provider")
	ErrNotConfigured   = errors.New("provider: missing configuration")
	ErrExchangeFailed  = errors.New("provider: code exchange rejected")
	ErrUnavailable     = errors.New("provider: unavailable")
	ErrNotImplemented  = errors.New("provider: not implemented")

	// ErrIdentityRejected means the exchange succeeded but the returned
	// identity token failed verification or names a foreign tenant.
	ErrIdentityRejected = errors.New("provider: identity token rejected")
)

// Provider is the capability set every identity provider implements.
type Provider interface {
	Name() domain.Provider

	// AuthCodeURL builds the authorization endpoint URL carrying state.
	AuthCodeURL(state string) string

	// ExchangeCode trades an authorization code for provider tokens. Errors
	// wrap ErrExchangeFailed, ErrUnavailable, ErrNotImplemented or
	// ErrIdentityRejected.
	ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error)

	// FetchIdentity loads the profile behind accessToken. It reports false
	// when the fetch fails or the domain is not allowed; callers cannot
	// tell which.
	FetchIdentity(ctx context.Context, accessToken string) (domain.UserInfo, bool)
}

// IdentityTokenDecoder is implemented by providers that can hand back an
// identity token inline with the callback. rawUser is any profile the
// provider posts alongside it and may be empty.
type IdentityTokenDecoder interface {
	DecodeIdentityToken(ctx context.Context, rawIDToken, rawUser string) (domain.UserInfo, bool)
}

// Config is shared by the OAuth2 adapters.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	Allow domain.AllowList

	// Timeout defaults to DefaultTimeout.
	Timeout time.Duration

	// HTTPClient overrides the bounded client built from Timeout.
	HTTPClient *http.Client
}

// Client returns the HTTP client adapters use for outbound calls.
func (c Config) Client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// Context attaches the bounded client for golang.org/x/oauth2.
func (c Config) Context(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.Client())
}

// ClassifyExchangeError maps an oauth2 Exchange failure onto the adapter
// sentinels. The provider's own error text is kept for logs only.
func ClassifyExchangeError(name domain.Provider, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		code := re.ErrorCode
		if code == "" && re.Response != nil {
			code = re.Response.Status
		}
		return fmt.Errorf("%w: %s: %s", ErrExchangeFailed, name, code)
	}

	var ue *url.Error
	if errors.As(err, &ue) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, name, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrExchangeFailed, name, err)
}

// GetJSON fetches rawURL with accessToken as bearer and decodes the body.
func GetJSON(ctx context.Context, cfg Config, rawURL, accessToken string, into any) error {
	client := oauth2.NewClient(cfg.Context(ctx), oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))
	client.Timeout = cfg.Client().Timeout

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("provider: %s returned %d", req.URL.Host, resp.StatusCode)
	}
	return json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(into)
}

// Identity builds a UserInfo and logs, without leaking to the caller, why
// it could not. The rejected domain is logged as a fingerprint.
func Identity(ctx context.Context, email, name, picture string, p domain.Provider, allow domain.AllowList) (domain.UserInfo, bool) {
	u, err := domain.NewUserInfo(email, name, picture, p, allow)
	if err == nil {
		return u, true
	}

	log := slogx.FromContext(ctx).With("provider", p)
	switch {
	case errors.Is(err, domain.ErrDomainNotAllowed):
		log.Warn("identity rejected: domain not allowed", "domain_fp", DomainFingerprint(email))
	default:
		log.Warn("identity rejected", "err", err)
	}
	return domain.UserInfo{}, false
}

// DomainFingerprint returns a short stable hash of an email's domain.
func DomainFingerprint(email string) string {
	dom := strings.ToLower(email[strings.LastIndex(email, "@")+1:])
	return cryptox.FingerprintToken(dom)[:12]
}
