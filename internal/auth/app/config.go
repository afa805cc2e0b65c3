package app

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/commacm/comma-auth/internal/auth/domain"
	"github.com/commacm/comma-auth/internal/auth/provider/microsoft"
	"github.com/commacm/comma-auth/pkg/httpx"
	"github.com/commacm/comma-auth/pkg/jwtx"
)

// DefaultJWTSecret is the placeholder shipped in example env files. It is
// refused outside dev.
const DefaultJWTSecret = "your-secret-key-change-in-production"

var defaultOrigins = []string{
	"https://comma.cm",
	"https://docs.comma.cm",
	"https://app.comma.cm",
	"https://storybook.comma.cm",
	"http://localhost:3000",
	"http://localhost:8000",
	"http://localhost:8080",
}

type Config struct {
	JWTSecret       string        // Required outside dev: HMAC secret for tokens
	JWTAlgorithm    string        // Optional: HS256, HS384 or HS512 (default: HS256)
	AccessTokenTTL  time.Duration // Optional: access token lifetime (default: 30m)
	RefreshTokenTTL time.Duration // Optional: refresh token lifetime (default: 7d)

	AllowedDomains domain.AllowList // Optional: email domains allowed to sign in (default: comma.cm,derozic.com)
	BaseScopes     []string         // Optional: scopes granted at provider login (default: read)
	StepUpScopes   []string         // Optional: scopes granted after OTP (default: read,write,admin)

	Google    OAuthConfig
	Microsoft MicrosoftConfig
	Apple     AppleConfig

	OTPProvider string // Optional: twilio or local (default: twilio, local in dev without Twilio credentials)
	Twilio      TwilioConfig

	AllowedOrigins []string // Optional: CORS and redirect_url origins
	TrustedProxies string   // Optional: IPs and CIDRs allowed to set X-Forwarded-For (default: none)

	StateStore   string        // Optional: memory, redis or sqlite (default: memory)
	StateTTL     time.Duration // Optional: authorization state lifetime (default: 10m)
	Redis        RedisConfig
	DatabaseFile string // Optional: SQLite path for the sqlite state store (default: auth.db)

	ProviderTimeout      time.Duration // Optional: bound on every outbound provider call (default: 5s)
	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8000)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1m)
}

// OAuthConfig is enabled when ClientID is set.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

func (c OAuthConfig) Enabled() bool { return c.ClientID != "" }

type MicrosoftConfig struct {
	OAuthConfig
	Tenant         string
	AllowedTenants []string // tid values accepted from id_tokens; required for multi-tenant authorities
}

type AppleConfig struct {
	ClientID        string
	TeamID          string
	KeyID           string
	RedirectURI     string
	AllowUnverified bool
}

func (c AppleConfig) Enabled() bool { return c.ClientID != "" }

type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	ServiceSID string
	Channel    string
}

func (c TwilioConfig) Configured() bool {
	return c.AccountSID != "" && c.AuthToken != "" && c.ServiceSID != ""
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func LoadConfig() Config {
	cfg := Config{
		JWTSecret:       getEnvOrDefault("AUTH_JWT_SECRET", os.Getenv("JWT_SECRET_KEY")),
		JWTAlgorithm:    getEnvOrDefault("AUTH_JWT_ALGORITHM", "HS256"),
		AccessTokenTTL:  getEnvDurationOrDefault("AUTH_ACCESS_TOKEN_TTL", jwtx.DefaultAccessTokenTTL),
		RefreshTokenTTL: getEnvDurationOrDefault("AUTH_REFRESH_TOKEN_TTL", jwtx.DefaultRefreshTokenTTL),

		AllowedDomains: domain.ParseAllowList(getEnvOrDefault("ALLOWED_DOMAINS", "comma.cm,derozic.com")),
		BaseScopes:     getEnvListOrDefault("AUTH_BASE_SCOPES", domain.DefaultScopePolicy().Base),
		StepUpScopes:   getEnvListOrDefault("AUTH_STEP_UP_SCOPES", domain.DefaultScopePolicy().StepUp),

		Google: OAuthConfig{
			ClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
			ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
			RedirectURI:  getEnvOrDefault("GOOGLE_REDIRECT_URI", "http://localhost:8000/auth/google/callback"),
		},
		Microsoft: MicrosoftConfig{
			OAuthConfig: OAuthConfig{
				ClientID:     os.Getenv("MICROSOFT_CLIENT_ID"),
				ClientSecret: os.Getenv("MICROSOFT_CLIENT_SECRET"),
				RedirectURI:  getEnvOrDefault("MICROSOFT_REDIRECT_URI", "http://localhost:8000/auth/microsoft/callback"),
			},
			Tenant:         getEnvOrDefault("MICROSOFT_TENANT", microsoft.DefaultTenant),
			AllowedTenants: getEnvListOrDefault("MICROSOFT_ALLOWED_TENANTS", nil),
		},
		Apple: AppleConfig{
			ClientID:        os.Getenv("APPLE_CLIENT_ID"),
			TeamID:          os.Getenv("APPLE_TEAM_ID"),
			KeyID:           os.Getenv("APPLE_KEY_ID"),
			RedirectURI:     getEnvOrDefault("APPLE_REDIRECT_URI", "http://localhost:8000/auth/apple/callback"),
			AllowUnverified: getEnvBoolOrDefault("APPLE_ALLOW_UNVERIFIED_ID_TOKEN", false),
		},

		OTPProvider: strings.ToLower(os.Getenv("AUTH_OTP_PROVIDER")),
		Twilio: TwilioConfig{
			AccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
			AuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
			ServiceSID: os.Getenv("TWILIO_VERIFY_SERVICE_SID"),
			Channel:    getEnvOrDefault("TWILIO_CHANNEL", "sms"),
		},

		AllowedOrigins: getEnvListOrDefault("ALLOWED_ORIGINS", defaultOrigins),
		TrustedProxies: os.Getenv("TRUSTED_PROXIES"),

		StateStore: strings.ToLower(getEnvOrDefault("AUTH_STATE_STORE", "memory")),
		StateTTL:   getEnvDurationOrDefault("AUTH_STATE_TTL", domain.DefaultStateTTL),
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getEnvIntOrDefault("REDIS_DB", 0),
		},
		DatabaseFile: getEnvOrDefault("AUTH_DATABASE_FILE", "auth.db"),

		ProviderTimeout:      getEnvDurationOrDefault("PROVIDER_TIMEOUT", 5*time.Second),
		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8000),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", time.Minute),
	}

	if cfg.OTPProvider == "" {
		cfg.OTPProvider = "twilio"
		if cfg.IsDev() && !cfg.Twilio.Configured() {
			cfg.OTPProvider = "local"
		}
	}

	return cfg
}

func (c Config) IsDev() bool { return c.Env == "dev" }

// TrustedProxyPrefixes parses TrustedProxies. Validate reports the error.
func (c Config) TrustedProxyPrefixes() []netip.Prefix {
	pfx, _ := httpx.ParseTrustedProxies(c.TrustedProxies)
	return pfx
}

// ScopePolicy builds the escalation table from BaseScopes and StepUpScopes.
func (c Config) ScopePolicy() domain.ScopePolicy {
	return domain.ScopePolicy{
		Base:   domain.NormalizeScopes(c.BaseScopes),
		StepUp: domain.NormalizeScopes(c.StepUpScopes),
	}
}

// Validate reports every configuration problem at once. A missing JWT
// secret is only an error outside dev; InitSigningKey fills it in dev.
func (c Config) Validate() error {
	var errs []error

	if !c.IsDev() && (c.JWTSecret == "" || c.JWTSecret == DefaultJWTSecret) {
		errs = append(errs, errors.New("AUTH_JWT_SECRET must be set to a non-default value outside dev"))
	}
	switch c.JWTAlgorithm {
	case "HS256", "HS384", "HS512":
	default:
		errs = append(errs, fmt.Errorf("AUTH_JWT_ALGORITHM %q is not supported (HS256, HS384, HS512)", c.JWTAlgorithm))
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		errs = append(errs, errors.New("token lifetimes must be positive"))
	}
	if c.AllowedDomains.Len() == 0 {
		errs = append(errs, errors.New("ALLOWED_DOMAINS must list at least one domain"))
	}
	if len(c.BaseScopes) == 0 || len(c.StepUpScopes) == 0 {
		errs = append(errs, errors.New("AUTH_BASE_SCOPES and AUTH_STEP_UP_SCOPES must not be empty"))
	}

	if c.Google.Enabled() && c.Google.ClientSecret == "" {
		errs = append(errs, errors.New("GOOGLE_CLIENT_SECRET is required when GOOGLE_CLIENT_ID is set"))
	}
	if c.Microsoft.Enabled() && c.Microsoft.ClientSecret == "" {
		errs = append(errs, errors.New("MICROSOFT_CLIENT_SECRET is required when MICROSOFT_CLIENT_ID is set"))
	}
	if c.Microsoft.Enabled() && microsoft.IsMultiTenant(c.Microsoft.Tenant) && len(c.Microsoft.AllowedTenants) == 0 {
		errs = append(errs, fmt.Errorf("MICROSOFT_ALLOWED_TENANTS is required when MICROSOFT_TENANT is %q", c.Microsoft.Tenant))
	}
	if _, err := httpx.ParseTrustedProxies(c.TrustedProxies); err != nil {
		errs = append(errs, fmt.Errorf("TRUSTED_PROXIES: %w", err))
	}

	switch c.OTPProvider {
	case "local":
		if !c.IsDev() {
			errs = append(errs, errors.New("AUTH_OTP_PROVIDER=local is only allowed in dev"))
		}
	case "twilio":
		if !c.Twilio.Configured() {
			errs = append(errs, errors.New("TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_VERIFY_SERVICE_SID are required"))
		}
	default:
		errs = append(errs, fmt.Errorf("AUTH_OTP_PROVIDER %q is not supported (twilio, local)", c.OTPProvider))
	}

	switch c.StateStore {
	case "memory", "redis", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("AUTH_STATE_STORE %q is not supported (memory, redis, sqlite)", c.StateStore))
	}

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d is out of range", c.Port))
	}

	return errors.Join(errs...)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}
	return defaultValue
}

// getEnvListOrDefault splits a comma-separated variable, dropping blanks.
func getEnvListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are minutes
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
