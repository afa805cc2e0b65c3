// Package apple implements Sign in with Apple as far as it is supported:
// the authorization URL and inline identity tokens. Code exchange needs a
// client secret signed with the team's private key and is not implemented.
package apple

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/commacm/comma-auth/internal/auth/domain"
	"github.com/commacm/comma-auth/internal/auth/provider"
	"github.com/commacm/comma-auth/pkg/slogx"
)

const (
	Issuer  = "https://appleid.apple.com"
	KeysURL = "https://appleid.apple.com/auth/keys"
)

// Endpoint is Apple's OAuth 2.0 endpoint pair.
var Endpoint = oauth2.Endpoint{
	AuthURL:  "https://appleid.apple.com/auth/authorize",
	TokenURL: "https://appleid.apple.com/auth/token",
}

type Config struct {
	provider.Config

	TeamID string
	KeyID  string

	// AllowUnverified decodes identity tokens without checking their
	// signature. Every such decode is logged at warn level.
	AllowUnverified bool

	// KeySet overrides Apple's remote JWKS.
	KeySet oidc.KeySet
}

type Provider struct {
	cfg      Config
	oauth    *oauth2.Config
	verifier *oidc.IDTokenVerifier
}

var (
	_ provider.Provider             = (*Provider)(nil)
	_ provider.IdentityTokenDecoder = (*Provider)(nil)
)

// New builds the adapter. ctx scopes background JWKS fetches and should
// live as long as the process.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.ClientID == "" || cfg.RedirectURL == "" {
		return nil, provider.ErrNotConfigured
	}

	keySet := cfg.KeySet
	if keySet == nil {
		keySet = oidc.NewRemoteKeySet(oidc.ClientContext(ctx, cfg.Client()), KeysURL)
	}

	return &Provider{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:    cfg.ClientID,
			RedirectURL: cfg.RedirectURL,
			Endpoint:    Endpoint,
			Scopes:      []string{"name", "email"},
		},
		verifier: oidc.NewVerifier(Issuer, keySet, &oidc.Config{ClientID: cfg.ClientID}),
	}, nil
}

func (p *Provider) Name() domain.Provider { return domain.ProviderApple }

// AuthCodeURL requests form_post, which Apple requires when asking for
// name or email.
func (p *Provider) AuthCodeURL(state string) string {
	return p.oauth.AuthCodeURL(state, oauth2.SetAuthURLParam("response_mode", "form_post"))
}

func (p *Provider) ExchangeCode(context.Context, string) (*oauth2.Token, error) {
	return nil, provider.ErrNotImplemented
}

// FetchIdentity always fails: Apple has no profile endpoint. Identity
// arrives as an id_token, see DecodeIdentityToken.
func (p *Provider) FetchIdentity(ctx context.Context, _ string) (domain.UserInfo, bool) {
	slogx.FromContext(ctx).Debug("apple has no userinfo endpoint")
	return domain.UserInfo{}, false
}

type idClaims struct {
	Email         string `json:"email"`
	EmailVerified any    `json:"email_verified"`
	Name          string `json:"name"`
}

// user is the JSON Apple form_posts as "user" on the first authorization.
type user struct {
	Name struct {
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
	} `json:"name"`
}

// userName returns "First Last" from raw, or "" when raw is absent or malformed.
func userName(raw string) string {
	if raw == "" {
		return ""
	}
	var u user
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return ""
	}
	return strings.TrimSpace(u.Name.FirstName + " " + u.Name.LastName)
}

// verified accepts both the boolean and the "true" string Apple has used.
func (c idClaims) verified() bool {
	switch v := c.EmailVerified.(type) {
	case nil:
		return true
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	default:
		return false
	}
}

// DecodeIdentityToken verifies raw against Apple's JWKS with issuer and
// audience checks. With AllowUnverified only the signature is skipped.
// The name comes from rawUser, then a name claim, then the email local part.
// rawUser never supplies the email.
func (p *Provider) DecodeIdentityToken(ctx context.Context, raw, rawUser string) (domain.UserInfo, bool) {
	log := slogx.FromContext(ctx).With("provider", p.Name())

	var (
		claims idClaims
		err    error
	)
	if p.cfg.AllowUnverified {
		log.Warn("decoding apple id_token without signature verification")
		claims, err = p.decodeUnverified(raw)
	} else {
		claims, err = p.decodeVerified(ctx, raw)
	}
	if err != nil {
		log.Warn("apple id_token rejected", "err", err)
		return domain.UserInfo{}, false
	}

	if claims.Email == "" || !claims.verified() {
		log.Warn("apple id_token has no verified email")
		return domain.UserInfo{}, false
	}
	name := userName(rawUser)
	if name == "" {
		name = claims.Name
	}
	return provider.Identity(ctx, claims.Email, name, "", p.Name(), p.cfg.Allow)
}

func (p *Provider) decodeVerified(ctx context.Context, raw string) (idClaims, error) {
	var claims idClaims
	tok, err := p.verifier.Verify(p.cfg.Context(ctx), raw)
	if err != nil {
		return claims, err
	}
	err = tok.Claims(&claims)
	return claims, err
}

func (p *Provider) decodeUnverified(raw string) (idClaims, error) {
	mc := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, mc); err != nil {
		return idClaims{}, err
	}

	if iss, _ := mc.GetIssuer(); iss != Issuer {
		return idClaims{}, fmt.Errorf("apple: unexpected issuer %q", iss)
	}
	aud, _ := mc.GetAudience()
	if !slices.Contains(aud, p.cfg.ClientID) {
		return idClaims{}, errors.New("apple: audience mismatch")
	}
	if exp, _ := mc.GetExpirationTime(); exp == nil || !time.Now().Before(exp.Time) {
		return idClaims{}, errors.New("apple: id_token expired")
	}

	email, _ := mc["email"].(string)
	name, _ := mc["name"].(string)
	return idClaims{Email: email, EmailVerified: mc["email_verified"], Name: name}, nil
}
