package authsdk

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/commacm/comma-auth/pkg/httpx"
)

// ============================================================================
// Error Codes
// ============================================================================

const (
	// RFC 6749 / RFC 6750 codes
	ErrorCodeInvalidRequest         = "invalid_request"
	ErrorCodeInvalidToken           = "invalid_token"
	ErrorCodeInsufficientScope      = "insufficient_scope"
	ErrorCodeAccessDenied           = "access_denied"
	ErrorCodeServerError            = "server_error"
	ErrorCodeTemporarilyUnavailable = "temporarily_unavailable"

	// Gateway codes
	ErrorCodeInvalidState             = "invalid_state"
	ErrorCodeProviderExchangeFailed   = "provider_exchange_failed"
	ErrorCodeIdentityUnavailable      = "identity_unavailable"
	ErrorCodeInvalidCode              = "invalid_code"
	ErrorCodeProviderUnavailable      = "provider_unavailable"
	ErrorCodeUnknownProvider          = "unknown_provider"
	ErrorCodeNotImplemented           = "not_implemented"
	ErrorCodeReauthenticationRequired = "reauthentication_required"
	ErrorCodeRateLimitExceeded        = "rate_limit_exceeded"
)

// ============================================================================
// OAuth2Error
// ============================================================================

// OAuth2Error is the {error, error_description} body every failing endpoint
// returns. The server writes it and the client parses it back.
type OAuth2Error struct {
	StatusCode  int    `json:"-"`
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

func (e *OAuth2Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Is matches on Code so wrapped or re-parsed errors compare equal to the
// predefined values.
func (e *OAuth2Error) Is(target error) bool {
	t, ok := target.(*OAuth2Error)
	return ok && t.Code == e.Code
}

// WriteError writes e as a non-cacheable JSON response. invalid_token also
// carries an RFC 6750 challenge.
func (e *OAuth2Error) WriteError(w http.ResponseWriter) {
	httpx.NoCache(w)
	if e.Code == ErrorCodeInvalidToken {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.StatusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             e.Code,
		"error_description": e.Description,
	})
}

// WithDescription returns a copy of e with desc.
func (e *OAuth2Error) WithDescription(desc string) *OAuth2Error {
	return &OAuth2Error{StatusCode: e.StatusCode, Code: e.Code, Description: desc}
}

// ============================================================================
// Predefined Errors
// ============================================================================

var (
	ErrInvalidRequest = &OAuth2Error{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidRequest,
		Description: "the request is malformed or missing required parameters",
	}

	// ErrInvalidState is returned for a state that was never issued, was
	// already used, has expired, or belongs to another provider.
	ErrInvalidState = &OAuth2Error{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidState,
		Description: "invalid or expired state",
	}

	ErrProviderExchangeFailed = &OAuth2Error{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeProviderExchangeFailed,
		Description: "the identity provider rejected the authorization code",
	}

	// ErrIdentityUnavailable covers both a failed profile fetch and a
	// disallowed domain. Callers cannot tell them apart.
	ErrIdentityUnavailable = &OAuth2Error{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeIdentityUnavailable,
		Description: "could not obtain an allowed identity from the provider",
	}

	ErrInvalidToken = &OAuth2Error{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidToken,
		Description: "the token is missing, invalid or expired",
	}

	ErrInvalidCode = &OAuth2Error{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidCode,
		Description: "invalid verification code",
	}

	ErrProviderUnavailable = &OAuth2Error{
		StatusCode:  http.StatusBadGateway,
		Code:        ErrorCodeProviderUnavailable,
		Description: "an upstream provider is unavailable",
	}

	ErrUnknownProvider = &OAuth2Error{
		StatusCode:  http.StatusNotFound,
		Code:        ErrorCodeUnknownProvider,
		Description: "unknown or unconfigured provider",
	}

	ErrNotImplemented = &OAuth2Error{
		StatusCode:  http.StatusNotImplemented,
		Code:        ErrorCodeNotImplemented,
		Description: "this provider does not support the operation",
	}

	// ErrReauthenticationRequired is the answer to every valid refresh token.
	// Access tokens are only minted from a fresh provider login.
	ErrReauthenticationRequired = &OAuth2Error{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeReauthenticationRequired,
		Description: "sign in again to obtain a new access token",
	}

	ErrAccessDenied = &OAuth2Error{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeAccessDenied,
		Description: "the user or provider denied the request",
	}

	ErrInsufficientScope = &OAuth2Error{
		StatusCode:  http.StatusForbidden,
		Code:        ErrorCodeInsufficientScope,
		Description: "the access token does not have the required scopes",
	}

	ErrRateLimitExceeded = &OAuth2Error{
		StatusCode:  http.StatusTooManyRequests,
		Code:        ErrorCodeRateLimitExceeded,
		Description: "too many requests",
	}

	ErrServerError = &OAuth2Error{
		StatusCode:  http.StatusInternalServerError,
		Code:        ErrorCodeServerError,
		Description: "internal server error",
	}

	// ErrTemporarilyUnavailable is what Middleware answers when the auth
	// service itself cannot be reached.
	ErrTemporarilyUnavailable = &OAuth2Error{
		StatusCode:  http.StatusServiceUnavailable,
		Code:        ErrorCodeTemporarilyUnavailable,
		Description: "authentication service unavailable",
	}
)

func NewOAuth2Error(statusCode int, code, description string) *OAuth2Error {
	return &OAuth2Error{
		StatusCode:  statusCode,
		Code:        code,
		Description: description,
	}
}

// ============================================================================
// Error Parsing Helpers
// ============================================================================

// parseErrorResponse turns a non-2xx response into an *OAuth2Error.
func parseErrorResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return &OAuth2Error{
			StatusCode:  resp.StatusCode,
			Code:        errResp.Error,
			Description: errResp.ErrorDescription,
		}
	}

	return &OAuth2Error{
		StatusCode:  resp.StatusCode,
		Code:        ErrorCodeServerError,
		Description: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
	}
}
