// Package microsoft signs users in with the Microsoft identity platform and
// reads the profile from Microsoft Graph. The id_token returned with the
// access token is verified and its tenant checked before Graph is trusted.
package microsoft

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	msoauth "golang.org/x/oauth2/microsoft"

	"github.com/commacm/comma-auth/internal/auth/domain"
	"github.com/commacm/comma-auth/internal/auth/provider"
	"github.com/commacm/comma-auth/pkg/slogx"
)

const (
	// DefaultTenant admits work, school and personal accounts.
	DefaultTenant = "common"

	GraphMeURL = "https://graph.microsoft.com/v1.0/me"

	// KeysURL serves signing keys for every tenant.
	KeysURL = "https://login.microsoftonline.com/common/discovery/v2.0/keys"

	issuerFormat = "https://login.microsoftonline.com/%s/v2.0"
)

// IsMultiTenant reports whether tenant is an authority shared by many
// directories. Tokens from such authorities need a tenant allow list.
func IsMultiTenant(tenant string) bool {
	switch strings.ToLower(tenant) {
	case "", "common", "organizations", "consumers":
		return true
	}
	return false
}

type Provider struct {
	cfg     provider.Config
	oauth   *oauth2.Config
	meURL   string
	tenants []string
	keySet  oidc.KeySet

	verifier *oidc.IDTokenVerifier
}

var _ provider.Provider = (*Provider)(nil)

type Option func(*Provider)

func WithEndpoint(ep oauth2.Endpoint) Option {
	return func(p *Provider) { p.oauth.Endpoint = ep }
}

func WithGraphURL(u string) Option {
	return func(p *Provider) { p.meURL = u }
}

// WithAllowedTenants restricts sign-in to directories whose tid is listed.
func WithAllowedTenants(ids ...string) Option {
	return func(p *Provider) {
		for _, id := range ids {
			if id = strings.ToLower(strings.TrimSpace(id)); id != "" {
				p.tenants = append(p.tenants, id)
			}
		}
	}
}

// WithKeySet overrides the remote JWKS used to verify id_tokens.
func WithKeySet(ks oidc.KeySet) Option {
	return func(p *Provider) { p.keySet = ks }
}

func New(cfg provider.Config, tenant string, opts ...Option) (*Provider, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RedirectURL == "" {
		return nil, provider.ErrNotConfigured
	}
	if tenant == "" {
		tenant = DefaultTenant
	}

	p := &Provider{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     msoauth.AzureADEndpoint(tenant),
			Scopes:       []string{"openid", "email", "profile", "User.Read"},
		},
		meURL: GraphMeURL,
	}
	for _, opt := range opts {
		opt(p)
	}

	if IsMultiTenant(tenant) && len(p.tenants) == 0 {
		return nil, fmt.Errorf("%w: tenant %q needs allowed tenants", provider.ErrNotConfigured, tenant)
	}
	if p.keySet == nil {
		p.keySet = oidc.NewRemoteKeySet(oidc.ClientContext(context.Background(), cfg.Client()), KeysURL)
	}
	// The issuer embeds the tenant id; checkTenant matches it against tid.
	p.verifier = oidc.NewVerifier("", p.keySet, &oidc.Config{ClientID: cfg.ClientID, SkipIssuerCheck: true})
	return p, nil
}

func (p *Provider) Name() domain.Provider { return domain.ProviderMicrosoft }

// AuthCodeURL adds domain_hint only when exactly one domain is allowed;
// Microsoft accepts a single hint.
func (p *Provider) AuthCodeURL(state string) string {
	opts := []oauth2.AuthCodeOption{oauth2.SetAuthURLParam("response_mode", "query")}
	if domains := p.cfg.Allow.Domains(); len(domains) == 1 {
		opts = append(opts, oauth2.SetAuthURLParam("domain_hint", domains[0]))
	}
	return p.oauth.AuthCodeURL(state, opts...)
}

func (p *Provider) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := p.oauth.Exchange(p.cfg.Context(ctx), code)
	if err != nil {
		return nil, provider.ClassifyExchangeError(p.Name(), err)
	}
	if err := p.checkTenant(ctx, tok); err != nil {
		slogx.FromContext(ctx).Warn("microsoft id_token rejected", "err", err)
		return nil, err
	}
	return tok, nil
}

type tenantClaims struct {
	TenantID string `json:"tid"`
}

// checkTenant verifies the id_token signature and audience, that its issuer
// belongs to its tid, and that the tid is allowed. Graph mail is
// attacker-controlled in foreign tenants, so it is only read after this.
func (p *Provider) checkTenant(ctx context.Context, tok *oauth2.Token) error {
	raw, _ := tok.Extra("id_token").(string)
	if raw == "" {
		return fmt.Errorf("%w: microsoft: no id_token", provider.ErrIdentityRejected)
	}
	idt, err := p.verifier.Verify(p.cfg.Context(ctx), raw)
	if err != nil {
		return fmt.Errorf("%w: microsoft: %v", provider.ErrIdentityRejected, err)
	}

	var c tenantClaims
	if err := idt.Claims(&c); err != nil || c.TenantID == "" {
		return fmt.Errorf("%w: microsoft: id_token has no tid", provider.ErrIdentityRejected)
	}
	tid := strings.ToLower(c.TenantID)
	if idt.Issuer != fmt.Sprintf(issuerFormat, tid) {
		return fmt.Errorf("%w: microsoft: issuer %q does not match tenant", provider.ErrIdentityRejected, idt.Issuer)
	}
	if len(p.tenants) > 0 && !slices.Contains(p.tenants, tid) {
		return fmt.Errorf("%w: microsoft: tenant %s is not allowed", provider.ErrIdentityRejected, tid)
	}
	return nil
}

type graphUser struct {
	Mail              string `json:"mail"`
	UserPrincipalName string `json:"userPrincipalName"`
	DisplayName       string `json:"displayName"`
}

func (p *Provider) FetchIdentity(ctx context.Context, accessToken string) (domain.UserInfo, bool) {
	var me graphUser
	if err := provider.GetJSON(ctx, p.cfg, p.meURL, accessToken, &me); err != nil {
		slogx.FromContext(ctx).Warn("microsoft graph fetch failed", "err", err)
		return domain.UserInfo{}, false
	}

	email := me.Mail
	if email == "" {
		email = me.UserPrincipalName
	}
	return provider.Identity(ctx, email, me.DisplayName, "", p.Name(), p.cfg.Allow)
}
