package google_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/commacm/comma-auth/internal/auth/domain"
	"github.com/commacm/comma-auth/internal/auth/provider"
	"github.com/commacm/comma-auth/internal/auth/provider/google"
)

type fakeGoogle struct {
	*httptest.Server
	profile map[string]any
}

func newFakeGoogle(t *testing.T) *fakeGoogle {
	f := &fakeGoogle{profile: map[string]any{
		"email":          "alice@comma.cm",
		"verified_email": true,
		"name":           "Alice Example",
		"picture":        "https://lh3.googleusercontent.com/a/alice",
	}}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		w.Header().Set("Content-Type", "application/json")
		if r.PostForm.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Bad Request"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"ya29.test","token_type":"Bearer","expires_in":3599}`))
	})
	mux.HandleFunc("GET /userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer ya29.test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(f.profile)
	})

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func newProvider(t *testing.T, f *fakeGoogle, allow domain.AllowList) *google.Provider {
	p, err := google.New(provider.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "https://auth.comma.cm/auth/google/callback",
		Allow:        allow,
		Timeout:      time.Second,
	},
		google.WithEndpoint(oauth2.Endpoint{
			AuthURL:   f.URL + "/auth",
			TokenURL:  f.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		}),
		google.WithUserInfoURL(f.URL+"/userinfo"),
	)
	require.NoError(t, err)
	return p
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := google.New(provider.Config{ClientID: "id"})
	require.ErrorIs(t, err, provider.ErrNotConfigured)
}

func TestAuthCodeURL(t *testing.T) {
	p, err := google.New(provider.Config{
		ClientID:     "client-id",
		ClientSecret: "secret",
		RedirectURL:  "https://auth.comma.cm/auth/google/callback",
		Allow:        domain.NewAllowList("comma.cm", "derozic.com"),
	})
	require.NoError(t, err)

	u, err := url.Parse(p.AuthCodeURL("state-123"))
	require.NoError(t, err)
	require.Equal(t, "accounts.google.com", u.Host)

	q := u.Query()
	require.Equal(t, "state-123", q.Get("state"))
	require.Equal(t, "client-id", q.Get("client_id"))
	require.Equal(t, "https://auth.comma.cm/auth/google/callback", q.Get("redirect_uri"))
	require.Equal(t, "openid email profile", q.Get("scope"))
	require.Equal(t, "offline", q.Get("access_type"))
	require.Equal(t, "true", q.Get("include_granted_scopes"))
	require.Equal(t, "comma.cm,derozic.com", q.Get("hd"))
	require.Equal(t, "code", q.Get("response_type"))
}

func TestExchangeAndFetch(t *testing.T) {
	ctx := context.Background()
	f := newFakeGoogle(t)
	p := newProvider(t, f, domain.NewAllowList("comma.cm"))

	t.Run("happy path", func(t *testing.T) {
		tok, err := p.ExchangeCode(ctx, "good-code")
		require.NoError(t, err)
		require.Equal(t, "ya29.test", tok.AccessToken)

		u, ok := p.FetchIdentity(ctx, tok.AccessToken)
		require.True(t, ok)
		require.Equal(t, "alice@comma.cm", u.Email)
		require.Equal(t, "Alice Example", u.Name)
		require.Equal(t, "comma.cm", u.Domain)
		require.Equal(t, domain.ProviderGoogle, u.Provider)
		require.NotNil(t, u.Picture)
	})

	t.Run("rejected code", func(t *testing.T) {
		_, err := p.ExchangeCode(ctx, "bad-code")
		require.ErrorIs(t, err, provider.ErrExchangeFailed)
	})

	t.Run("bad access token", func(t *testing.T) {
		_, ok := p.FetchIdentity(ctx, "nope")
		require.False(t, ok)
	})
}

func TestFetchIdentityRejectsForeignDomain(t *testing.T) {
	f := newFakeGoogle(t)
	f.profile["email"] = "mallory@evil.example"
	p := newProvider(t, f, domain.NewAllowList("comma.cm"))

	_, ok := p.FetchIdentity(context.Background(), "ya29.test")
	require.False(t, ok)
}

func TestFetchIdentityRejectsUnverifiedEmail(t *testing.T) {
	f := newFakeGoogle(t)
	f.profile["verified_email"] = false
	p := newProvider(t, f, domain.NewAllowList("comma.cm"))

	_, ok := p.FetchIdentity(context.Background(), "ya29.test")
	require.False(t, ok)
}

func TestExchangeUnavailable(t *testing.T) {
	f := newFakeGoogle(t)
	p := newProvider(t, f, domain.NewAllowList("comma.cm"))
	f.Close()

	_, err := p.ExchangeCode(context.Background(), "good-code")
	require.ErrorIs(t, err, provider.ErrUnavailable)
}
