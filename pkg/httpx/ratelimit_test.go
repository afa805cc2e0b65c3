package httpx_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"github.com/commacm/comma-auth/pkg/httpx"
	"github.com/stretchr/testify/require"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func serveFrom(h http.Handler, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = remote
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestIPKeyExtractor(t *testing.T) {
	t.Run("extracts from RemoteAddr", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		require.Equal(t, "192.168.1.1", httpx.IPKeyExtractor(req))
	})

	t.Run("ignores forwarding headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		req.Header.Set("X-Forwarded-For", "203.0.113.1")
		req.Header.Set("X-Real-IP", "203.0.113.2")
		require.Equal(t, "192.168.1.1", httpx.IPKeyExtractor(req))
	})
}

func TestParseTrustedProxies(t *testing.T) {
	got, err := httpx.ParseTrustedProxies(" 10.0.0.0/8, 127.0.0.1 ,,::1")
	require.NoError(t, err)
	require.Equal(t, []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("127.0.0.1/32"),
		netip.MustParsePrefix("::1/128"),
	}, got)

	got, err = httpx.ParseTrustedProxies("")
	require.NoError(t, err)
	require.Empty(t, got)

	_, err = httpx.ParseTrustedProxies("10.0.0.0/8,proxy.internal")
	require.ErrorContains(t, err, "proxy.internal")
}

func TestTrustedProxyIPKeyExtractor(t *testing.T) {
	trusted, err := httpx.ParseTrustedProxies("10.0.0.0/8")
	require.NoError(t, err)
	extract := httpx.TrustedProxyIPKeyExtractor(trusted)

	request := func(remote string, headers ...string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = remote
		for i := 0; i+1 < len(headers); i += 2 {
			req.Header.Add(headers[i], headers[i+1])
		}
		return req
	}

	tests := []struct {
		name string
		req  *http.Request
		want string
	}{
		{"untrusted peer spoofing X-Forwarded-For", request("198.51.100.7:1", "X-Forwarded-For", "203.0.113.1"), "198.51.100.7"},
		{"untrusted peer spoofing X-Real-IP", request("198.51.100.7:1", "X-Real-IP", "203.0.113.1"), "198.51.100.7"},
		{"trusted proxy", request("10.0.0.2:1", "X-Forwarded-For", "203.0.113.1"), "203.0.113.1"},
		{"client prepends a fake hop", request("10.0.0.2:1", "X-Forwarded-For", "1.2.3.4, 203.0.113.1"), "203.0.113.1"},
		{"proxy chain", request("10.0.0.2:1", "X-Forwarded-For", "203.0.113.1, 10.0.0.9"), "203.0.113.1"},
		{"repeated headers", request("10.0.0.2:1", "X-Forwarded-For", "1.2.3.4", "X-Forwarded-For", "203.0.113.1"), "203.0.113.1"},
		{"all hops trusted", request("10.0.0.2:1", "X-Forwarded-For", "10.0.0.3"), "10.0.0.2"},
		{"X-Real-IP from trusted proxy", request("10.0.0.2:1", "X-Real-IP", "203.0.113.2"), "203.0.113.2"},
		{"no headers", request("10.0.0.2:1"), "10.0.0.2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, extract(tt.req))
		})
	}

	t.Run("no trusted proxies", func(t *testing.T) {
		req := request("10.0.0.2:1", "X-Forwarded-For", "203.0.113.1")
		require.Equal(t, "10.0.0.2", httpx.TrustedProxyIPKeyExtractor(nil)(req))
	})
}

func TestCompositeKeyExtractor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.1:12345"

	t.Run("skips anonymous subject", func(t *testing.T) {
		extract := httpx.CompositeKeyExtractor(":", httpx.SubjectKeyExtractor, httpx.IPKeyExtractor)
		require.Equal(t, "192.168.1.1", extract(req))
	})

	t.Run("includes subject when authenticated", func(t *testing.T) {
		authed := req.WithContext(httpx.WithPrincipal(req.Context(), httpx.Principal{Subject: "alice@comma.cm"}))
		extract := httpx.CompositeKeyExtractor(":", httpx.SubjectKeyExtractor, httpx.IPKeyExtractor)
		require.Equal(t, "alice@comma.cm:192.168.1.1", extract(authed))
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Run("blocks requests over limit", func(t *testing.T) {
		cfg := httpx.RateLimitConfig{RequestsPerWindow: 3, Window: time.Minute, Burst: 3}
		h := httpx.RateLimitMiddleware(cfg, httpx.IPKeyExtractor)(okHandler)

		for i := range 3 {
			rec := serveFrom(h, "192.168.1.1:12345")
			require.Equal(t, http.StatusOK, rec.Code, "request %d should succeed", i+1)
		}

		rec := serveFrom(h, "192.168.1.1:12345")
		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		require.NotEmpty(t, rec.Header().Get("Retry-After"))
		require.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
		require.Equal(t, "1m0s", rec.Header().Get("X-RateLimit-Window"))
		require.Contains(t, rec.Body.String(), "rate_limit_exceeded")
	})

	t.Run("different keys are tracked separately", func(t *testing.T) {
		cfg := httpx.RateLimitConfig{RequestsPerWindow: 1, Window: time.Minute, Burst: 1}
		h := httpx.RateLimitByIP(cfg)(okHandler)

		require.Equal(t, http.StatusOK, serveFrom(h, "192.168.1.1:1").Code)
		require.Equal(t, http.StatusTooManyRequests, serveFrom(h, "192.168.1.1:1").Code)
		require.Equal(t, http.StatusOK, serveFrom(h, "192.168.1.2:1").Code)
	})

	t.Run("allows request when key extractor returns empty", func(t *testing.T) {
		cfg := httpx.RateLimitConfig{RequestsPerWindow: 1, Window: time.Minute, Burst: 1}
		h := httpx.RateLimitMiddleware(cfg, func(*http.Request) string { return "" })(okHandler)

		for range 3 {
			require.Equal(t, http.StatusOK, serveFrom(h, "192.168.1.1:1").Code)
		}
	})

	t.Run("reports rejections", func(t *testing.T) {
		cfg := httpx.RateLimitConfig{RequestsPerWindow: 1, Window: time.Minute, Burst: 1}
		rl := httpx.NewRateLimiter(cfg, httpx.IPKeyExtractor)
		var rejected int
		rl.OnReject = func(*http.Request) { rejected++ }
		h := rl.Middleware()(okHandler)

		serveFrom(h, "10.0.0.1:1")
		serveFrom(h, "10.0.0.1:1")
		serveFrom(h, "10.0.0.1:1")
		require.Equal(t, 2, rejected)
	})
}

func TestRateLimiterSweep(t *testing.T) {
	cfg := httpx.RateLimitConfig{RequestsPerWindow: 100, Window: 10 * time.Millisecond, Burst: 1}
	rl := httpx.NewRateLimiter(cfg, httpx.IPKeyExtractor)

	ok, _ := rl.Allow("a")
	require.True(t, ok)
	ok, _ = rl.Allow("b")
	require.True(t, ok)
	require.Equal(t, 2, rl.Len())

	time.Sleep(30 * time.Millisecond)

	n, err := rl.Sweep(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
	require.Zero(t, rl.Len())
}

func TestRateLimitProfiles(t *testing.T) {
	profiles := map[string]httpx.RateLimitConfig{
		"strict":   httpx.StrictLimit,
		"moderate": httpx.ModerateLimit,
		"lenient":  httpx.LenientLimit,
		"public":   httpx.PublicLimit,
	}
	for name, cfg := range profiles {
		t.Run(name, func(t *testing.T) {
			require.Positive(t, cfg.RequestsPerWindow)
			require.Positive(t, cfg.Window)
			require.Positive(t, cfg.Burst)
		})
	}

	require.Less(t, httpx.StrictLimit.RequestsPerWindow, httpx.ModerateLimit.RequestsPerWindow)
	require.Less(t, httpx.ModerateLimit.RequestsPerWindow, httpx.LenientLimit.RequestsPerWindow)
	require.Less(t, httpx.LenientLimit.RequestsPerWindow, httpx.PublicLimit.RequestsPerWindow)
}

func TestParseRateLimitFromEnv(t *testing.T) {
	def := httpx.RateLimitConfig{RequestsPerWindow: 10, Window: time.Minute, Burst: 10}

	t.Run("no env vars uses defaults", func(t *testing.T) {
		require.Equal(t, def, httpx.ParseRateLimitFromEnv("TEST", def))
	})

	t.Run("overrides all parameters", func(t *testing.T) {
		t.Setenv("RATELIMIT_TEST_REQUESTS", "200")
		t.Setenv("RATELIMIT_TEST_WINDOW_SEC", "30")
		t.Setenv("RATELIMIT_TEST_BURST", "250")

		cfg := httpx.ParseRateLimitFromEnv("TEST", def)
		require.Equal(t, 200, cfg.RequestsPerWindow)
		require.Equal(t, 30*time.Second, cfg.Window)
		require.Equal(t, 250, cfg.Burst)
	})

	t.Run("invalid and zero values use defaults", func(t *testing.T) {
		t.Setenv("RATELIMIT_TEST_REQUESTS", "invalid")
		t.Setenv("RATELIMIT_TEST_WINDOW_SEC", "-10")
		t.Setenv("RATELIMIT_TEST_BURST", "0")

		require.Equal(t, def, httpx.ParseRateLimitFromEnv("TEST", def))
	})
}

func BenchmarkRateLimitMiddleware(b *testing.B) {
	cfg := httpx.RateLimitConfig{RequestsPerWindow: 1000000, Window: time.Minute, Burst: 1000}
	h := httpx.RateLimitMiddleware(cfg, httpx.IPKeyExtractor)(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.1:12345"

	for b.Loop() {
		h.ServeHTTP(httptest.NewRecorder(), req)
	}
}
