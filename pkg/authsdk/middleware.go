package authsdk

import (
	"context"
	"errors"
	"net/http"

	"github.com/commacm/comma-auth/pkg/httpx"
	"github.com/commacm/comma-auth/pkg/slogx"
)

type ctxKey struct{}

// ValidationFromContext returns the verification result Middleware stored.
func ValidationFromContext(ctx context.Context) (*TokenValidation, bool) {
	v, ok := ctx.Value(ctxKey{}).(*TokenValidation)
	return v, ok
}

// UserFromContext returns the verified identity of the request.
func UserFromContext(ctx context.Context) (*UserInfo, bool) {
	v, ok := ValidationFromContext(ctx)
	if !ok || v.UserInfo == nil {
		return nil, false
	}
	return v.UserInfo, true
}

// VerifyBearer adapts Verify to httpx.BearerVerifier.
func (c *Client) VerifyBearer(ctx context.Context, raw string) (httpx.Principal, error) {
	v, err := c.Verify(ctx, raw)
	if err != nil {
		return httpx.Principal{}, err
	}
	if !v.Valid || v.UserInfo == nil {
		return httpx.Principal{}, ErrInvalidToken
	}
	return httpx.Principal{
		Subject:     v.UserInfo.Email,
		Scopes:      v.Scopes,
		Requires2FA: v.Requires2FA,
		Claims:      v,
	}, nil
}

// Middleware verifies the request's bearer token against the service and
// requires every scope in requiredScopes. Invalid tokens get 401,
// missing scopes 403 insufficient_scope, and an unreachable service 503.
func (c *Client) Middleware(requiredScopes ...string) httpx.Middleware {
	requireScopes := httpx.RequireAllScopes(requiredScopes...)

	return func(next http.Handler) http.Handler {
		scoped := requireScopes(next)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			raw, ok := httpx.BearerToken(r)
			if !ok {
				httpx.WriteBearerError(w, "missing bearer token")
				return
			}

			p, err := c.VerifyBearer(ctx, raw)
			if err != nil {
				var oe *OAuth2Error
				if errors.As(err, &oe) && oe.StatusCode == http.StatusUnauthorized {
					httpx.WriteBearerError(w, "token verification failed")
					return
				}
				slogx.FromContext(ctx).Error("auth service verify failed", "err", err)
				ErrTemporarilyUnavailable.WriteError(w)
				return
			}

			ctx = httpx.WithPrincipal(ctx, p)
			ctx = context.WithValue(ctx, ctxKey{}, p.Claims)
			ctx = slogx.With(ctx, "sub", p.Subject)
			scoped.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
