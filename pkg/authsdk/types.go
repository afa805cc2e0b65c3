package authsdk

import "time"

// ============================================================================
// Internal Response Types
// ============================================================================

// ErrorResponse is the JSON shape of an OAuth2Error.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// ============================================================================
// Token Types
// ============================================================================

// TokenResponse is returned by provider callbacks and OTP verification.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`

	// TokenType is always "bearer".
	TokenType string `json:"token_type"`

	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int64 `json:"expires_in"`

	// Requires2FA is true until the holder completes an OTP step-up.
	Requires2FA bool `json:"requires_2fa"`
}

// UserInfo is the identity embedded in an access token.
type UserInfo struct {
	Email    string  `json:"email"`
	Name     string  `json:"name"`
	Picture  *string `json:"picture"`
	Domain   string  `json:"domain"`
	Provider string  `json:"provider"`
}

// TokenValidation is the POST /auth/verify response. When Valid is false
// every other field is empty.
type TokenValidation struct {
	Valid       bool       `json:"valid"`
	UserInfo    *UserInfo  `json:"user_info"`
	Scopes      []string   `json:"scopes"`
	Requires2FA bool       `json:"requires_2fa"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

// HasScopes reports whether v is valid and carries every scope in want.
func (v *TokenValidation) HasScopes(want ...string) bool {
	if v == nil || !v.Valid {
		return false
	}
	for _, w := range want {
		found := false
		for _, s := range v.Scopes {
			if s == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// RefreshRequest is the POST /auth/refresh body.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// ============================================================================
// Login Types
// ============================================================================

// LoginResponse is returned by GET /auth/{provider}.
type LoginResponse struct {
	AuthorizationURL string `json:"authorization_url"`
	State            string `json:"state"`
}

// ============================================================================
// OTP Types
// ============================================================================

type OTPSendRequest struct {
	PhoneNumber string `json:"phone_number"`
}

type OTPSendResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type OTPVerifyRequest struct {
	PhoneNumber string `json:"phone_number"`
	Code        string `json:"code"`
}

// OTPStatusResponse is the diagnostic GET /auth/otp/status response.
type OTPStatusResponse struct {
	SID         string    `json:"sid"`
	To          string    `json:"to"`
	Channel     string    `json:"channel"`
	Status      string    `json:"status"`
	DateCreated time.Time `json:"date_created"`
}

// ============================================================================
// Service Types
// ============================================================================

type MessageResponse struct {
	Message string `json:"message"`
}

// BannerResponse is returned by GET /.
type BannerResponse struct {
	Message string `json:"message"`
	Version string `json:"version"`
}

// HealthResponse is returned by /health, /livez and /readyz.
type HealthResponse struct {
	Status  string        `json:"status"`
	Service string        `json:"service,omitempty"`
	Uptime  string        `json:"uptime,omitempty"`
	Version string        `json:"version,omitempty"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks reports dependency status in /readyz.
type HealthChecks struct {
	StateStore string `json:"state_store"`
	Signer     string `json:"signer"`
}
