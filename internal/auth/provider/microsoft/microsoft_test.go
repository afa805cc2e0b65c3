package microsoft_test

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/commacm/comma-auth/internal/auth/domain"
	"github.com/commacm/comma-auth/internal/auth/provider"
	"github.com/commacm/comma-auth/internal/auth/provider/microsoft"
)

const (
	commaTenant   = "9188040d-6c67-4c5b-b112-36a304b66dad"
	foreignTenant = "72f988bf-86f1-41af-91ab-2d7cd011db47"
)

func testConfig(allow domain.AllowList) provider.Config {
	return provider.Config{
		ClientID:     "ms-client",
		ClientSecret: "ms-secret",
		RedirectURL:  "https://auth.comma.cm/auth/microsoft/callback",
		Allow:        allow,
	}
}

func newKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	k, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return k
}

func idToken(t *testing.T, key *rsa.PrivateKey, tid string, overrides jwt.MapClaims) string {
	t.Helper()
	claims := jwt.MapClaims{
		"iss": "https://login.microsoftonline.com/" + tid + "/v2.0",
		"aud": "ms-client",
		"tid": tid,
		"sub": "AAAAAAAAAAAAAAAAAAAAAIkzqFVrSaSaFHy782bbtaQ",
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(10 * time.Minute).Unix(),
	}
	for k, v := range overrides {
		if v == nil {
			delete(claims, k)
			continue
		}
		claims[k] = v
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = "test"
	s, err := tok.SignedString(key)
	require.NoError(t, err)
	return s
}

// entra fakes the token endpoint and Graph /me. The token response carries
// whatever idToken holds at the time of the request.
type entra struct {
	srv     *httptest.Server
	idToken string
	me      map[string]any
}

func newEntra(t *testing.T) *entra {
	t.Helper()
	e := &entra{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{"access_token": "graph-token", "token_type": "Bearer", "expires_in": 3600}
		if e.idToken != "" {
			body["id_token"] = e.idToken
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	})
	mux.HandleFunc("GET /me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer graph-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(e.me)
	})
	e.srv = httptest.NewServer(mux)
	t.Cleanup(e.srv.Close)
	return e
}

func (e *entra) newProvider(t *testing.T, pub *rsa.PublicKey, tenant string, tenants ...string) *microsoft.Provider {
	t.Helper()
	p, err := microsoft.New(testConfig(domain.NewAllowList("comma.cm")), tenant,
		microsoft.WithEndpoint(oauth2.Endpoint{
			AuthURL:   e.srv.URL + "/authorize",
			TokenURL:  e.srv.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		}),
		microsoft.WithGraphURL(e.srv.URL+"/me"),
		microsoft.WithKeySet(&oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{pub}}),
		microsoft.WithAllowedTenants(tenants...),
	)
	require.NoError(t, err)
	return p
}

func TestAuthCodeURL(t *testing.T) {
	t.Run("single domain hints", func(t *testing.T) {
		p, err := microsoft.New(testConfig(domain.NewAllowList("comma.cm")), "", microsoft.WithAllowedTenants(commaTenant))
		require.NoError(t, err)

		u, err := url.Parse(p.AuthCodeURL("st"))
		require.NoError(t, err)
		require.Equal(t, "login.microsoftonline.com", u.Host)
		require.Equal(t, "/common/oauth2/v2.0/authorize", u.Path)

		q := u.Query()
		require.Equal(t, "st", q.Get("state"))
		require.Equal(t, "query", q.Get("response_mode"))
		require.Equal(t, "comma.cm", q.Get("domain_hint"))
		require.Equal(t, "openid email profile User.Read", q.Get("scope"))
	})

	t.Run("several domains skip the hint", func(t *testing.T) {
		p, err := microsoft.New(testConfig(domain.NewAllowList("comma.cm", "derozic.com")), "contoso")
		require.NoError(t, err)

		u, err := url.Parse(p.AuthCodeURL("st"))
		require.NoError(t, err)
		require.Equal(t, "/contoso/oauth2/v2.0/authorize", u.Path)
		require.False(t, u.Query().Has("domain_hint"))
	})
}

func TestNewSharedAuthorityNeedsTenants(t *testing.T) {
	for _, tenant := range []string{"", "common", "organizations", "Consumers"} {
		t.Run(tenant, func(t *testing.T) {
			_, err := microsoft.New(testConfig(domain.NewAllowList("comma.cm")), tenant)
			require.ErrorIs(t, err, provider.ErrNotConfigured)
		})
	}

	_, err := microsoft.New(testConfig(domain.NewAllowList("comma.cm")), commaTenant)
	require.NoError(t, err)
}

func TestExchangeCodeChecksTenant(t *testing.T) {
	ctx := context.Background()
	key := newKey(t)
	e := newEntra(t)
	p := e.newProvider(t, &key.PublicKey, microsoft.DefaultTenant, commaTenant)

	t.Run("allowed tenant", func(t *testing.T) {
		e.idToken = idToken(t, key, commaTenant, nil)
		tok, err := p.ExchangeCode(ctx, "code")
		require.NoError(t, err)
		require.Equal(t, "graph-token", tok.AccessToken)
	})

	// A user of another directory can set any mail in Graph, including one
	// on an allowed domain.
	t.Run("foreign tenant with an allowed mail", func(t *testing.T) {
		e.idToken = idToken(t, key, foreignTenant, nil)
		e.me = map[string]any{"mail": "alice@comma.cm", "displayName": "Not Alice"}
		_, err := p.ExchangeCode(ctx, "code")
		require.ErrorIs(t, err, provider.ErrIdentityRejected)
	})

	cases := map[string]func(t *testing.T) string{
		"missing id_token": func(*testing.T) string { return "" },
		"foreign signer":   func(t *testing.T) string { return idToken(t, newKey(t), commaTenant, nil) },
		"wrong audience":   func(t *testing.T) string { return idToken(t, key, commaTenant, jwt.MapClaims{"aud": "other-app"}) },
		"expired": func(t *testing.T) string {
			return idToken(t, key, commaTenant, jwt.MapClaims{"exp": time.Now().Add(-time.Minute).Unix()})
		},
		"no tid": func(t *testing.T) string { return idToken(t, key, commaTenant, jwt.MapClaims{"tid": nil}) },
		"issuer of another tenant": func(t *testing.T) string {
			return idToken(t, key, commaTenant, jwt.MapClaims{"iss": "https://login.microsoftonline.com/" + foreignTenant + "/v2.0"})
		},
		"garbage": func(*testing.T) string { return "not-a-jwt" },
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			e.idToken = raw(t)
			_, err := p.ExchangeCode(ctx, "code")
			require.ErrorIs(t, err, provider.ErrIdentityRejected)
		})
	}
}

func TestExchangeCodeSingleTenant(t *testing.T) {
	ctx := context.Background()
	key := newKey(t)
	e := newEntra(t)
	p := e.newProvider(t, &key.PublicKey, commaTenant)

	e.idToken = idToken(t, key, commaTenant, nil)
	_, err := p.ExchangeCode(ctx, "code")
	require.NoError(t, err)

	e.idToken = idToken(t, key, commaTenant, jwt.MapClaims{"aud": "other-app"})
	_, err = p.ExchangeCode(ctx, "code")
	require.ErrorIs(t, err, provider.ErrIdentityRejected)
}

func TestFetchIdentity(t *testing.T) {
	ctx := context.Background()
	key := newKey(t)
	e := newEntra(t)
	p := e.newProvider(t, &key.PublicKey, "", commaTenant)

	e.idToken = idToken(t, key, commaTenant, nil)
	tok, err := p.ExchangeCode(ctx, "code")
	require.NoError(t, err)

	t.Run("mail", func(t *testing.T) {
		e.me = map[string]any{"mail": "bob@comma.cm", "userPrincipalName": "bob_ext@comma.cm", "displayName": "Bob"}
		u, ok := p.FetchIdentity(ctx, tok.AccessToken)
		require.True(t, ok)
		require.Equal(t, "bob@comma.cm", u.Email)
		require.Equal(t, "Bob", u.Name)
		require.Nil(t, u.Picture)
		require.Equal(t, domain.ProviderMicrosoft, u.Provider)
	})

	t.Run("falls back to upn", func(t *testing.T) {
		e.me = map[string]any{"mail": nil, "userPrincipalName": "carol@comma.cm", "displayName": "Carol"}
		u, ok := p.FetchIdentity(ctx, tok.AccessToken)
		require.True(t, ok)
		require.Equal(t, "carol@comma.cm", u.Email)
	})

	t.Run("mail outside the allowed domains", func(t *testing.T) {
		e.me = map[string]any{"mail": "dave@contoso.com", "displayName": "Dave"}
		_, ok := p.FetchIdentity(ctx, tok.AccessToken)
		require.False(t, ok)
	})
}
