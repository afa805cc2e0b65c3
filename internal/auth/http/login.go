package http

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/commacm/comma-auth/internal/auth/service"
	"github.com/commacm/comma-auth/pkg/authsdk"
	"github.com/commacm/comma-auth/pkg/httpx"
	"github.com/commacm/comma-auth/pkg/slogx"
)

type LoginHandler struct {
	Sessions *service.SessionService
}

// HandleStart handles GET /auth/{provider}
//
//	@Summary		Start a provider login
//	@Description	Records a single-use state and returns the provider's authorization URL.
//	@Description	redirect_url, when given, must belong to an allowed origin; the callback then redirects there with the token.
//	@Tags			Login
//	@Produce		json
//	@Param			provider		path		string					true	"google, microsoft or apple"
//	@Param			redirect_url	query		string					false	"where to send the token after login"
//	@Success		200				{object}	authsdk.LoginResponse
//	@Failure		400				{object}	authsdk.ErrorResponse	"redirect_url not allowed"
//	@Failure		404				{object}	authsdk.ErrorResponse	"unknown provider"
//	@Router			/auth/{provider} [get].
func (h *LoginHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	start, err := h.Sessions.StartLogin(r.Context(), r.PathValue("provider"), r.URL.Query().Get("redirect_url"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.LoginResponse{
		AuthorizationURL: start.AuthorizationURL,
		State:            start.State,
	})
}

// HandleCallback handles GET and POST /auth/{provider}/callback
//
//	@Summary		Complete a provider login
//	@Description	Consumes the state, resolves the identity and mints a partial-scope token pair with requires_2fa=true.
//	@Description	With a stored redirect_url the response is a 302 to it carrying token and requires_2fa query parameters.
//	@Tags			Login
//	@Accept			x-www-form-urlencoded
//	@Produce		json
//	@Param			provider	path		string					true	"google, microsoft or apple"
//	@Param			code		query		string					false	"authorization code"
//	@Param			state		query		string					true	"state from login start"
//	@Param			error		query		string					false	"provider error"
//	@Param			id_token	formData	string					false	"Apple inline identity token"
//	@Param			user		formData	string					false	"Apple user JSON, first sign-in only"
//	@Success		200			{object}	authsdk.TokenResponse
//	@Success		302			"redirect to the stored redirect_url"
//	@Failure		400			{object}	authsdk.ErrorResponse	"invalid_state, access_denied, provider_exchange_failed or identity_unavailable"
//	@Failure		501			{object}	authsdk.ErrorResponse	"provider cannot exchange codes"
//	@Failure		502			{object}	authsdk.ErrorResponse	"provider unavailable"
//	@Router			/auth/{provider}/callback [get].
func (h *LoginHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		r.Body = http.MaxBytesReader(w, r.Body, httpx.MaxBodyBytes)
	}
	if err := r.ParseForm(); err != nil {
		authsdk.ErrInvalidRequest.WithDescription("invalid form body").WriteError(w)
		return
	}

	res, err := h.Sessions.CompleteCallback(r.Context(), service.CallbackParams{
		Provider: r.PathValue("provider"),
		Code:     r.Form.Get("code"),
		State:    r.Form.Get("state"),
		Error:    r.Form.Get("error"),
		IDToken:  r.Form.Get("id_token"),
		User:     r.Form.Get("user"),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if res.RedirectURL == "" {
		httpx.WriteJSON(w, http.StatusOK, tokenResponse(res.Pair))
		return
	}

	target, err := withToken(res.RedirectURL, res.Pair.AccessToken, res.Pair.Requires2FA)
	if err != nil {
		slogx.FromContext(r.Context()).Error("stored redirect_url unparsable", "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}
	httpx.NoCache(w)
	http.Redirect(w, r, target, http.StatusFound)
}

// withToken appends token and requires_2fa to raw, keeping its query.
func withToken(raw, token string, requires2FA bool) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("token", token)
	q.Set("requires_2fa", strconv.FormatBool(requires2FA))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
