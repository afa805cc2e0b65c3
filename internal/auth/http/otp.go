package http

import (
	"net/http"

	"github.com/commacm/comma-auth/internal/auth/domain"
	"github.com/commacm/comma-auth/internal/auth/service"
	"github.com/commacm/comma-auth/pkg/authsdk"
	"github.com/commacm/comma-auth/pkg/httpx"
)

// OTPHandler serves the step-up endpoints. Every route runs behind
// AuthnMiddleware with TokenService as the verifier.
type OTPHandler struct {
	Sessions *service.SessionService
}

func validationFromRequest(r *http.Request) (domain.TokenValidation, bool) {
	p, ok := httpx.PrincipalFromContext(r.Context())
	if !ok {
		return domain.TokenValidation{}, false
	}
	return service.ValidationFromPrincipal(p)
}

// HandleSend handles POST /auth/otp/send
//
//	@Summary		Send a step-up code
//	@Description	Sends a one-time code by SMS to phone_number (E.164). Any valid access token may call this.
//	@Tags			OTP
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		authsdk.OTPSendRequest	true	"phone number"
//	@Success		200		{object}	authsdk.OTPSendResponse
//	@Failure		400		{object}	authsdk.ErrorResponse	"invalid phone number"
//	@Failure		401		{object}	authsdk.ErrorResponse	"invalid or missing access token"
//	@Failure		502		{object}	authsdk.ErrorResponse	"OTP provider unavailable"
//	@Router			/auth/otp/send [post].
func (h *OTPHandler) HandleSend(w http.ResponseWriter, r *http.Request) {
	if _, ok := validationFromRequest(r); !ok {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	var req authsdk.OTPSendRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		authsdk.ErrInvalidRequest.WithDescription("invalid JSON body").WriteError(w)
		return
	}

	if err := h.Sessions.SendOTP(r.Context(), req.PhoneNumber); err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.OTPSendResponse{
		Status:  "sent",
		Message: "Verification code sent",
	})
}

// HandleVerify handles POST /auth/otp/verify
//
//	@Summary		Verify a step-up code
//	@Description	Checks the code and, when approved, returns a new token pair with the full scope set and requires_2fa=false.
//	@Tags			OTP
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		authsdk.OTPVerifyRequest	true	"phone number and code"
//	@Success		200		{object}	authsdk.TokenResponse
//	@Failure		400		{object}	authsdk.ErrorResponse	"invalid_code or invalid_request"
//	@Failure		401		{object}	authsdk.ErrorResponse	"invalid or missing access token"
//	@Router			/auth/otp/verify [post].
func (h *OTPHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	v, ok := validationFromRequest(r)
	if !ok {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	var req authsdk.OTPVerifyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		authsdk.ErrInvalidRequest.WithDescription("invalid JSON body").WriteError(w)
		return
	}

	pair, err := h.Sessions.VerifyOTP(r.Context(), v, req.PhoneNumber, req.Code)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tokenResponse(pair))
}

// HandleStatus handles GET /auth/otp/status
//
//	@Summary		Latest verification status
//	@Description	Diagnostic lookup of the most recent verification for phone_number.
//	@Tags			OTP
//	@Security		BearerAuth
//	@Produce		json
//	@Param			phone_number	query		string	true	"E.164 phone number"
//	@Success		200				{object}	authsdk.OTPStatusResponse
//	@Failure		400				{object}	authsdk.ErrorResponse	"invalid phone number"
//	@Failure		404				{object}	authsdk.ErrorResponse	"no verification known"
//	@Router			/auth/otp/status [get].
func (h *OTPHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	st, ok, err := h.Sessions.QueryOTPStatus(r.Context(), r.URL.Query().Get("phone_number"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if !ok {
		authsdk.NewOAuth2Error(http.StatusNotFound, "not_found", "no verification for this phone number").WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.OTPStatusResponse{
		SID:         st.SID,
		To:          st.To,
		Channel:     st.Channel,
		Status:      st.Status,
		DateCreated: st.CreatedAt,
	})
}
