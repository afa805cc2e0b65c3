package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/commacm/comma-auth/pkg/slogx"
)

// BearerVerifier turns a raw bearer token into a Principal.
type BearerVerifier interface {
	VerifyBearer(ctx context.Context, raw string) (Principal, error)
}

// BearerVerifierFunc adapts a function to BearerVerifier.
type BearerVerifierFunc func(ctx context.Context, raw string) (Principal, error)

func (f BearerVerifierFunc) VerifyBearer(ctx context.Context, raw string) (Principal, error) {
	return f(ctx, raw)
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
// The scheme is matched case-insensitively.
func BearerToken(r *http.Request) (string, bool) {
	authz := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(authz, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// AuthnMiddleware rejects requests without a valid bearer token and stores
// the verified Principal in the request context.
func AuthnMiddleware(v BearerVerifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			raw, ok := BearerToken(r)
			if !ok {
				WriteBearerError(w, "missing bearer token")
				return
			}

			p, err := v.VerifyBearer(ctx, raw)
			if err != nil {
				slogx.FromContext(ctx).Warn("bearer verification failed", "err", err)
				WriteBearerError(w, "token verification failed")
				return
			}

			ctx = WithPrincipal(ctx, p)
			ctx = context.WithValue(ctx, ctxKeyRawToken, raw)
			ctx = slogx.With(ctx, "sub", p.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WriteBearerError writes an RFC 6750 invalid_token challenge with a JSON body.
func WriteBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	WriteJSON(w, http.StatusUnauthorized, map[string]string{
		"error":             "invalid_token",
		"error_description": desc,
	})
}
