package http

import (
	"net/http"
	"strings"

	"github.com/commacm/comma-auth/internal/auth/domain"
	"github.com/commacm/comma-auth/internal/auth/service"
	"github.com/commacm/comma-auth/pkg/authsdk"
	"github.com/commacm/comma-auth/pkg/httpx"
	"github.com/commacm/comma-auth/pkg/slogx"
)

type TokenHandler struct {
	Sessions *service.SessionService
}

func tokenResponse(p domain.TokenPair) authsdk.TokenResponse {
	return authsdk.TokenResponse{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		TokenType:    p.TokenType,
		ExpiresIn:    p.ExpiresIn,
		Requires2FA:  p.Requires2FA,
	}
}

func validationResponse(v domain.TokenValidation) authsdk.TokenValidation {
	out := authsdk.TokenValidation{
		Valid:       v.Valid,
		Scopes:      v.Scopes,
		Requires2FA: v.Requires2FA,
		ExpiresAt:   v.ExpiresAt,
	}
	if out.Scopes == nil {
		out.Scopes = []string{}
	}
	if v.UserInfo != nil {
		out.UserInfo = &authsdk.UserInfo{
			Email:    v.UserInfo.Email,
			Name:     v.UserInfo.Name,
			Picture:  v.UserInfo.Picture,
			Domain:   v.UserInfo.Domain,
			Provider: v.UserInfo.Provider.String(),
		}
	}
	return out
}

// HandleRefresh handles POST /auth/refresh
//
//	@Summary		Refresh (disabled)
//	@Description	Access tokens are only minted from a provider login. A valid refresh token is answered with
//	@Description	401 reauthentication_required, an invalid one with 401 invalid_token.
//	@Tags			Tokens
//	@Accept			json
//	@Accept			x-www-form-urlencoded
//	@Produce		json
//	@Param			body	body		authsdk.RefreshRequest	false	"refresh token (also accepted as form field or query parameter)"
//	@Failure		400		{object}	authsdk.ErrorResponse	"no refresh token"
//	@Failure		401		{object}	authsdk.ErrorResponse	"reauthentication_required or invalid_token"
//	@Router			/auth/refresh [post].
func (h *TokenHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var token string
	if httpx.IsJSON(r) {
		var req authsdk.RefreshRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			authsdk.ErrInvalidRequest.WithDescription("invalid JSON body").WriteError(w)
			return
		}
		token = req.RefreshToken
	} else {
		r.Body = http.MaxBytesReader(w, r.Body, httpx.MaxBodyBytes)
		token = r.FormValue("refresh_token")
	}
	if token == "" {
		token = r.URL.Query().Get("refresh_token")
	}

	if strings.TrimSpace(token) == "" {
		authsdk.ErrInvalidRequest.WithDescription("refresh_token is required").WriteError(w)
		return
	}

	writeServiceError(w, r, h.Sessions.Refresh(r.Context(), token))
}

// HandleVerify handles POST /auth/verify
//
//	@Summary		Verify an access token
//	@Description	Service-to-service check. Always 200 once a bearer is presented; valid=false carries no identity.
//	@Tags			Tokens
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.TokenValidation
//	@Failure		401	{object}	authsdk.ErrorResponse	"no bearer token"
//	@Router			/auth/verify [post].
func (h *TokenHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	raw, ok := httpx.BearerToken(r)
	if !ok {
		httpx.WriteBearerError(w, "missing bearer token")
		return
	}

	v := h.Sessions.Verify(r.Context(), raw)
	if !v.Valid {
		slogx.FromContext(r.Context()).Debug("verify: token invalid")
	}
	httpx.WriteJSON(w, http.StatusOK, validationResponse(v))
}

// HandleLogout handles POST /auth/logout
//
//	@Summary		Log out
//	@Description	Acknowledgement only. Tokens stay valid until they expire; clients discard them.
//	@Tags			Tokens
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.MessageResponse
//	@Failure		401	{object}	authsdk.ErrorResponse	"invalid or missing access token"
//	@Router			/auth/logout [post].
func (h *TokenHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	slogx.FromContext(r.Context()).Info("logout acknowledged")
	httpx.WriteJSON(w, http.StatusOK, authsdk.MessageResponse{Message: "Logged out successfully"})
}
