package httpx

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/commacm/comma-auth/pkg/slogx"
)

type ctxKey string

const (
	ctxKeyPrincipal ctxKey = "principal"
	ctxKeyRawToken  ctxKey = "raw_token"
)

// Principal is the verified bearer of a request.
type Principal struct {
	Subject     string
	Scopes      []string
	Requires2FA bool

	// Claims holds the verifier's full claim set, if it wants to expose one.
	Claims any
}

// HasScope reports whether p carries scope.
func (p Principal) HasScope(scope string) bool {
	for _, s := range p.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKeyPrincipal, p)
}

// PrincipalFromContext returns the principal AuthnMiddleware stored, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKeyPrincipal).(Principal)
	return p, ok
}

// RawTokenFromContext returns the bearer string AuthnMiddleware accepted.
func RawTokenFromContext(ctx context.Context) string {
	s, _ := ctx.Value(ctxKeyRawToken).(string)
	return s
}

func scopesFromCtx(ctx context.Context) []string {
	if p, ok := PrincipalFromContext(ctx); ok {
		return p.Scopes
	}
	return nil
}

func logFromRequest(r *http.Request) *slog.Logger {
	return slogx.FromContext(r.Context())
}
