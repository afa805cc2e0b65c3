package app

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func devConfig(t *testing.T) Config {
	t.Helper()
	t.Setenv("ENV", "dev")
	t.Setenv("AUTH_JWT_SECRET", "")
	t.Setenv("AUTH_OTP_PROVIDER", "local")
	t.Setenv("AUTH_STATE_STORE", "memory")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("GOOGLE_CLIENT_ID", "gid")
	t.Setenv("GOOGLE_CLIENT_SECRET", "gsecret")
	t.Setenv("MICROSOFT_CLIENT_ID", "")
	t.Setenv("APPLE_CLIENT_ID", "")
	return LoadConfig()
}

func TestNewWiresRoutes(t *testing.T) {
	a, err := New(devConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.states.Close() })

	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	for _, path := range []string{"/health", "/livez", "/readyz", "/metrics", "/auth/google"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode, path)
	}

	resp, err := http.Get(srv.URL + "/auth/microsoft")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode, "unconfigured providers are unknown")

	// states, otp challenges and one task per rate limiter
	require.Greater(t, len(a.housekeepingService.Tasks), 2)
	require.Equal(t, "authorization_states", a.housekeepingService.Tasks[0].Name)
	require.Equal(t, "otp_challenges", a.housekeepingService.Tasks[1].Name)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := devConfig(t)
	cfg.StateStore = "etcd"

	_, err := New(cfg)
	require.ErrorContains(t, err, "AUTH_STATE_STORE")
}

func TestNewSQLiteStateStore(t *testing.T) {
	cfg := devConfig(t)
	cfg.StateStore = "sqlite"
	cfg.DatabaseFile = t.TempDir() + "/auth.db"

	a, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.states.Close() })
	require.NoError(t, a.states.Ping(t.Context()))
}
