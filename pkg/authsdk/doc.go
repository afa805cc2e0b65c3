/*
Package authsdk is the client side of the comma-auth gateway, for
applications that trust its tokens.

# Verifying Requests

Downstream services do not share the signing secret. They send the bearer
token to POST /auth/verify and act on the returned identity and scopes:

	auth := authsdk.NewClient("https://auth.comma.cm")

	v, err := auth.Verify(ctx, bearer)
	if err != nil {
		// the auth service could not answer
	}
	if !v.Valid {
		// reject
	}

Middleware wraps the same call for net/http handlers and enforces scopes:

	mux.Handle("POST /posts", auth.Middleware("write")(createPost))

Inside the handler the identity is available from the request context:

	user, _ := authsdk.UserFromContext(r.Context())

Requests without a valid token get 401 invalid_token. Tokens missing a
scope get 403 insufficient_scope. When the auth service is unreachable the
middleware answers 503 temporarily_unavailable rather than letting the
request through.

# Step-Up

Tokens from a provider login carry only the base scopes and requires_2fa.
SendOTP and VerifyOTP exchange such a token for one with the step-up scopes:

	_, err := auth.SendOTP(ctx, token, "+15551234567")
	upgraded, err := auth.VerifyOTP(ctx, token, "+15551234567", code)

# Errors

Every non-2xx response is returned as an *OAuth2Error. The predefined values
match with errors.Is on their code:

	if errors.Is(err, authsdk.ErrInvalidCode) {
		// ask for the code again
	}
*/
package authsdk
