package jwtx_test

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/commacm/comma-auth/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func decodePayload(t *testing.T, token string) map[string]any {
	t.Helper()
	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)

	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	return m
}

func keysOf(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestAccessPayloadShape(t *testing.T) {
	key, err := jwtx.NewHMACKey("HS256", []byte("test-secret"))
	require.NoError(t, err)

	now := time.Date(2025, 3, 1, 12, 0, 0, 750_000_000, time.UTC)
	claims := jwtx.NewAccessClaims(jwtx.Profile{
		Email:    "alice@comma.cm",
		Name:     "Alice",
		Domain:   "comma.cm",
		Provider: "google",
	}, []string{"read"}, true, 30*time.Minute, now)

	token, err := key.SignAccess(claims)
	require.NoError(t, err)

	payload := decodePayload(t, token)
	require.ElementsMatch(t, []string{
		"sub", "name", "email", "domain", "provider", "picture",
		"scopes", "requires_2fa", "exp", "iat", "iss", "aud",
	}, keysOf(payload))

	require.Equal(t, "alice@comma.cm", payload["sub"])
	require.Nil(t, payload["picture"])
	require.Equal(t, "comma-auth", payload["iss"])
	require.Equal(t, "comma-apps", payload["aud"], "aud must serialise as a plain string")
	require.Equal(t, true, payload["requires_2fa"])
	require.Equal(t, []any{"read"}, payload["scopes"])

	iat := payload["iat"].(float64)
	exp := payload["exp"].(float64)
	require.Equal(t, float64(now.Truncate(time.Second).Unix()), iat)
	require.Equal(t, iat+30*60, exp)
}

func TestRefreshPayloadShape(t *testing.T) {
	key, err := jwtx.NewHMACKey("HS256", []byte("test-secret"))
	require.NoError(t, err)

	token, err := key.SignRefresh(jwtx.NewRefreshClaims("alice@comma.cm", 7*24*time.Hour, time.Now()))
	require.NoError(t, err)

	payload := decodePayload(t, token)
	require.ElementsMatch(t, []string{"sub", "type", "exp", "iat", "iss"}, keysOf(payload))
	require.Equal(t, "refresh", payload["type"])
}

func TestNilScopesSerialiseAsEmptyList(t *testing.T) {
	c := jwtx.NewAccessClaims(jwtx.Profile{Email: "a@comma.cm"}, nil, false, time.Minute, time.Now())
	b, err := json.Marshal(c)
	require.NoError(t, err)
	require.Contains(t, string(b), `"scopes":[]`)
}
