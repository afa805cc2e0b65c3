package app

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/commacm/comma-auth/internal/auth/domain"
	"github.com/commacm/comma-auth/pkg/jwtx"
	"github.com/commacm/comma-auth/pkg/slogx"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("ENV", "dev")
	t.Setenv("AUTH_JWT_SECRET", "")
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("AUTH_OTP_PROVIDER", "")
	for _, k := range []string{"PORT", "ALLOWED_DOMAINS", "ALLOWED_ORIGINS", "AUTH_STATE_STORE", "GOOGLE_CLIENT_ID", "MICROSOFT_CLIENT_ID"} {
		t.Setenv(k, "")
	}

	cfg := LoadConfig()
	require.Equal(t, 8000, cfg.Port)
	require.Equal(t, "HS256", cfg.JWTAlgorithm)
	require.Equal(t, 30*time.Minute, cfg.AccessTokenTTL)
	require.Equal(t, 7*24*time.Hour, cfg.RefreshTokenTTL)
	require.Equal(t, []string{"comma.cm", "derozic.com"}, cfg.AllowedDomains.Domains())
	require.Equal(t, "memory", cfg.StateStore)
	require.Equal(t, 10*time.Minute, cfg.StateTTL)
	require.Equal(t, "local", cfg.OTPProvider, "dev without Twilio falls back to local codes")
	require.Equal(t, "common", cfg.Microsoft.Tenant)
	require.Equal(t, time.Minute, cfg.HousekeepingInterval)
	require.Contains(t, cfg.AllowedOrigins, "https://app.comma.cm")
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("ENV", "prod")
	t.Setenv("AUTH_JWT_SECRET", "a-real-secret")
	t.Setenv("AUTH_JWT_ALGORITHM", "HS512")
	t.Setenv("AUTH_ACCESS_TOKEN_TTL", "15")
	t.Setenv("AUTH_STEP_UP_SCOPES", "read, write")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("AUTH_OTP_PROVIDER", "")
	t.Setenv("TWILIO_ACCOUNT_SID", "AC1")
	t.Setenv("TWILIO_AUTH_TOKEN", "tok")
	t.Setenv("TWILIO_VERIFY_SERVICE_SID", "VA1")
	t.Setenv("APPLE_ALLOW_UNVERIFIED_ID_TOKEN", "true")
	t.Setenv("REDIS_DB", "3")

	cfg := LoadConfig()
	require.Equal(t, "HS512", cfg.JWTAlgorithm)
	require.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
	require.Equal(t, []string{"read", "write"}, cfg.ScopePolicy().StepUp)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	require.Equal(t, "twilio", cfg.OTPProvider)
	require.True(t, cfg.Apple.AllowUnverified)
	require.Equal(t, 3, cfg.Redis.DB)
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	t.Setenv("ENV", "prod")
	t.Setenv("AUTH_JWT_SECRET", "a-real-secret")
	t.Setenv("AUTH_OTP_PROVIDER", "twilio")
	t.Setenv("TWILIO_ACCOUNT_SID", "AC1")
	t.Setenv("TWILIO_AUTH_TOKEN", "tok")
	t.Setenv("TWILIO_VERIFY_SERVICE_SID", "VA1")
	t.Setenv("GOOGLE_CLIENT_ID", "")
	t.Setenv("MICROSOFT_CLIENT_ID", "")
	t.Setenv("TRUSTED_PROXIES", "")
	t.Setenv("MICROSOFT_ALLOWED_TENANTS", "")
	base := LoadConfig()
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"placeholder secret outside dev", func(c *Config) { c.JWTSecret = DefaultJWTSecret }, "AUTH_JWT_SECRET"},
		{"empty secret outside dev", func(c *Config) { c.JWTSecret = "" }, "AUTH_JWT_SECRET"},
		{"asymmetric algorithm", func(c *Config) { c.JWTAlgorithm = "RS256" }, "AUTH_JWT_ALGORITHM"},
		{"local otp outside dev", func(c *Config) { c.OTPProvider = "local" }, "only allowed in dev"},
		{"twilio without credentials", func(c *Config) { c.Twilio.AuthToken = "" }, "TWILIO_AUTH_TOKEN"},
		{"unknown state store", func(c *Config) { c.StateStore = "etcd" }, "AUTH_STATE_STORE"},
		{"google without secret", func(c *Config) { c.Google.ClientID = "gid"; c.Google.ClientSecret = "" }, "GOOGLE_CLIENT_SECRET"},
		{"no domains", func(c *Config) { c.AllowedDomains = domain.AllowList{} }, "ALLOWED_DOMAINS"},
		{"microsoft common without tenant allow list", func(c *Config) {
			c.Microsoft.ClientID, c.Microsoft.ClientSecret = "mid", "msecret"
		}, "MICROSOFT_ALLOWED_TENANTS"},
		{"malformed trusted proxy", func(c *Config) { c.TrustedProxies = "10.0.0.0/8,lb.internal" }, "TRUSTED_PROXIES"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestTrustedProxiesAndTenants(t *testing.T) {
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 127.0.0.1")
	t.Setenv("MICROSOFT_ALLOWED_TENANTS", "0b5a2c6e-0000-4000-8000-000000000001")

	cfg := LoadConfig()
	require.Equal(t, []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("127.0.0.1/32"),
	}, cfg.TrustedProxyPrefixes())
	require.Equal(t, []string{"0b5a2c6e-0000-4000-8000-000000000001"}, cfg.Microsoft.AllowedTenants)

	cfg.Microsoft.ClientID, cfg.Microsoft.ClientSecret = "mid", "msecret"
	err := cfg.Validate()
	if err != nil {
		require.NotContains(t, err.Error(), "MICROSOFT_ALLOWED_TENANTS")
		require.NotContains(t, err.Error(), "TRUSTED_PROXIES")
	}
}

func TestDevSecretGenerated(t *testing.T) {
	cfg := Config{Env: "dev", JWTAlgorithm: "HS256", JWTSecret: DefaultJWTSecret}

	a, err := InitSigningKey(cfg, slogx.Discard())
	require.NoError(t, err)
	b, err := InitSigningKey(cfg, slogx.Discard())
	require.NoError(t, err)
	require.Equal(t, "HS256", a.Alg())

	// Each start gets its own secret, so tokens do not cross restarts.
	tok, err := a.SignAccess(jwtx.NewAccessClaims(jwtx.Profile{Email: "alice@comma.cm", Provider: "google"}, nil, true, time.Minute, time.Now()))
	require.NoError(t, err)
	_, err = a.VerifyAccess(tok)
	require.NoError(t, err)
	_, err = b.VerifyAccess(tok)
	require.Error(t, err)
}

func TestSigningKeyOutsideDev(t *testing.T) {
	_, err := InitSigningKey(Config{Env: "prod", JWTAlgorithm: "HS256"}, slogx.Discard())
	require.ErrorIs(t, err, jwtx.ErrEmptySecret)

	key, err := InitSigningKey(Config{Env: "prod", JWTAlgorithm: "HS384", JWTSecret: "s3cret"}, slogx.Discard())
	require.NoError(t, err)
	require.Equal(t, "HS384", key.Alg())
}
