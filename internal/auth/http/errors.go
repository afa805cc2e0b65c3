package http

import (
	"errors"
	"net/http"

	"github.com/commacm/comma-auth/internal/auth/service"
	"github.com/commacm/comma-auth/pkg/authsdk"
	"github.com/commacm/comma-auth/pkg/slogx"
)

var serviceErrors = []struct {
	err  error
	resp *authsdk.OAuth2Error
}{
	{service.ErrUnknownProvider, authsdk.ErrUnknownProvider},
	{service.ErrInvalidRedirect, authsdk.ErrInvalidRequest.WithDescription("redirect_url is not an allowed origin")},
	{service.ErrInvalidState, authsdk.ErrInvalidState},
	{service.ErrAccessDenied, authsdk.ErrAccessDenied},
	{service.ErrMissingCode, authsdk.ErrInvalidRequest.WithDescription("code is required")},
	{service.ErrExchangeFailed, authsdk.ErrProviderExchangeFailed},
	{service.ErrProviderUnavailable, authsdk.ErrProviderUnavailable},
	{service.ErrIdentityUnavailable, authsdk.ErrIdentityUnavailable},
	{service.ErrNotImplemented, authsdk.ErrNotImplemented},
	{service.ErrInvalidPhone, authsdk.ErrInvalidRequest.WithDescription("phone_number must be in E.164 format")},
	{service.ErrInvalidCode, authsdk.ErrInvalidCode},
	{service.ErrInvalidToken, authsdk.ErrInvalidToken},
	{service.ErrReauthenticationRequired, authsdk.ErrReauthenticationRequired},
}

// writeServiceError maps a service error onto the public taxonomy.
// Anything unrecognised is logged and answered as server_error.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	for _, e := range serviceErrors {
		if errors.Is(err, e.err) {
			e.resp.WriteError(w)
			return
		}
	}
	slogx.FromContext(r.Context()).Error("unhandled service error", "err", err)
	authsdk.ErrServerError.WriteError(w)
}
