package domain

import "time"

// TokenPair is what login callbacks and OTP verification hand back.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"` // seconds
	Requires2FA  bool   `json:"requires_2fa"`
}

// TokenValidation is the result of verifying an access token. Invalid
// results never carry identity, scopes or expiry.
type TokenValidation struct {
	Valid       bool       `json:"valid"`
	UserInfo    *UserInfo  `json:"user_info"`
	Scopes      []string   `json:"scopes"`
	Requires2FA bool       `json:"requires_2fa"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

// InvalidToken is the zero-disclosure validation result.
func InvalidToken() TokenValidation {
	return TokenValidation{Valid: false, Scopes: []string{}}
}
