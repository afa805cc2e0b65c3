// Package google signs users in with Google OAuth 2.0.
package google

import (
	"context"
	"strings"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"

	"github.com/commacm/comma-auth/internal/auth/domain"
	"github.com/commacm/comma-auth/internal/auth/provider"
	"github.com/commacm/comma-auth/pkg/slogx"
)

// UserInfoURL is Google's v2 profile endpoint.
const UserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

type Provider struct {
	cfg         provider.Config
	oauth       *oauth2.Config
	userInfoURL string
}

var _ provider.Provider = (*Provider)(nil)

// Option overrides endpoints, mainly for tests.
type Option func(*Provider)

func WithEndpoint(ep oauth2.Endpoint) Option {
	return func(p *Provider) { p.oauth.Endpoint = ep }
}

func WithUserInfoURL(u string) Option {
	return func(p *Provider) { p.userInfoURL = u }
}

func New(cfg provider.Config, opts ...Option) (*Provider, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RedirectURL == "" {
		return nil, provider.ErrNotConfigured
	}

	p := &Provider{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     googleoauth.Endpoint,
			Scopes:       []string{"openid", "email", "profile"},
		},
		userInfoURL: UserInfoURL,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Provider) Name() domain.Provider { return domain.ProviderGoogle }

// AuthCodeURL asks for offline access and passes the allowed domains
// as the hd hint.
func (p *Provider) AuthCodeURL(state string) string {
	opts := []oauth2.AuthCodeOption{
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	}
	if p.cfg.Allow.Len() > 0 {
		opts = append(opts, oauth2.SetAuthURLParam("hd", strings.Join(p.cfg.Allow.Domains(), ",")))
	}
	return p.oauth.AuthCodeURL(state, opts...)
}

func (p *Provider) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := p.oauth.Exchange(p.cfg.Context(ctx), code)
	if err != nil {
		return nil, provider.ClassifyExchangeError(p.Name(), err)
	}
	return tok, nil
}

type userInfo struct {
	Email         string `json:"email"`
	VerifiedEmail *bool  `json:"verified_email"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

func (p *Provider) FetchIdentity(ctx context.Context, accessToken string) (domain.UserInfo, bool) {
	var ui userInfo
	if err := provider.GetJSON(ctx, p.cfg, p.userInfoURL, accessToken, &ui); err != nil {
		slogx.FromContext(ctx).Warn("google userinfo fetch failed", "err", err)
		return domain.UserInfo{}, false
	}
	if ui.VerifiedEmail != nil && !*ui.VerifiedEmail {
		slogx.FromContext(ctx).Warn("google identity rejected: email not verified")
		return domain.UserInfo{}, false
	}
	return provider.Identity(ctx, ui.Email, ui.Name, ui.Picture, p.Name(), p.cfg.Allow)
}
