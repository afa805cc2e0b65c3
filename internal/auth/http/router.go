package http

import (
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/commacm/comma-auth/api/auth" // Swagger docs
	"github.com/commacm/comma-auth/internal/auth/metrics"
	"github.com/commacm/comma-auth/internal/auth/service"
	"github.com/commacm/comma-auth/internal/auth/store"
	"github.com/commacm/comma-auth/pkg/httpx"
	"github.com/commacm/comma-auth/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	Sessions *service.SessionService
	Tokens   *service.TokenService
	States   store.StateStore

	// AllowedOrigins feeds CORS.
	AllowedOrigins []string

	// TrustedProxies may set X-Forwarded-For for per-IP limits.
	TrustedProxies []netip.Prefix

	Metrics  metrics.Recorder
	Gatherer prometheus.Gatherer

	limiters []*httpx.RateLimiter
}

func NewRouter(buildVersion string, logger *slog.Logger) *Router {
	return &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
		Metrics:      metrics.Nop{},
	}
}

// ApplyRoutes registers every route. Set the exported dependencies first.
func (r *Router) ApplyRoutes() {
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		httpx.Recover(),
		httpx.CORS(r.AllowedOrigins),
	}

	r.registerLogin()
	r.registerOTP()
	r.registerTokens()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// Limiters returns every rate limiter the routes use, for housekeeping.
func (r *Router) Limiters() []*httpx.RateLimiter {
	return r.limiters
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			comma-auth
//	@version		1.0.0
//	@description	Central authentication gateway. Users sign in with Google, Microsoft or Apple and receive a
//	@description	partial-scope bearer token, then complete an SMS one-time code to upgrade it to full scope.
//	@description
//	@description				Tokens are HMAC-signed JWTs. Downstream services check them with POST /auth/verify.
//
//	@BasePath					/
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Access token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// limit builds a tracked rate limiter that reports rejections as route.
func (r *Router) limit(route string, cfg httpx.RateLimitConfig, key httpx.KeyExtractor) httpx.Middleware {
	rl := httpx.NewRateLimiter(cfg, key)
	rl.OnReject = func(*http.Request) { r.Metrics.RateLimited(route) }
	r.limiters = append(r.limiters, rl)
	return rl.Middleware()
}

func (r *Router) clientIP() httpx.KeyExtractor {
	return httpx.TrustedProxyIPKeyExtractor(r.TrustedProxies)
}

func (r *Router) byIP(route string, cfg httpx.RateLimitConfig) httpx.Middleware {
	return r.limit(route, cfg, r.clientIP())
}

// byUser keys on the subject alone so one user shares a bucket across
// addresses. It must run after AuthnMiddleware.
func (r *Router) byUser(route string, cfg httpx.RateLimitConfig) httpx.Middleware {
	return r.limit(route, cfg, httpx.SubjectKeyExtractor)
}

func (r *Router) registerLogin() {
	h := &LoginHandler{Sessions: r.Sessions}

	// GET /auth/{provider} - lenient, it only records a state
	r.Mux.Handle("GET /auth/{provider}",
		httpx.Chain(http.HandlerFunc(h.HandleStart),
			r.byIP("login_start", httpx.LenientLimit),
		),
	)

	// Callbacks mint tokens: strict per provider and IP. POST is Apple's form_post.
	callback := httpx.Chain(http.HandlerFunc(h.HandleCallback),
		r.limit("callback", httpx.StrictLimit,
			httpx.CompositeKeyExtractor(":", httpx.PathValueKeyExtractor("provider"), r.clientIP())),
	)
	r.Mux.Handle("GET /auth/{provider}/callback", callback)
	r.Mux.Handle("POST /auth/{provider}/callback", callback)
}

func (r *Router) registerOTP() {
	h := &OTPHandler{Sessions: r.Sessions}

	// Sending costs money and checking is brute-forceable: strict per user.
	r.Mux.Handle("POST /auth/otp/send",
		httpx.Chain(http.HandlerFunc(h.HandleSend),
			httpx.AuthnMiddleware(r.Tokens),
			r.byUser("otp_send", httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /auth/otp/verify",
		httpx.Chain(http.HandlerFunc(h.HandleVerify),
			httpx.AuthnMiddleware(r.Tokens),
			r.byUser("otp_verify", httpx.StrictLimit),
		),
	)
	r.Mux.Handle("GET /auth/otp/status",
		httpx.Chain(http.HandlerFunc(h.HandleStatus),
			httpx.AuthnMiddleware(r.Tokens),
			r.byUser("otp_status", httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerTokens() {
	h := &TokenHandler{Sessions: r.Sessions}

	r.Mux.Handle("POST /auth/refresh",
		httpx.Chain(http.HandlerFunc(h.HandleRefresh),
			r.byIP("refresh", httpx.ModerateLimit),
		),
	)

	// Verify answers 200 for any presented bearer, so it does its own
	// bearer extraction instead of AuthnMiddleware.
	r.Mux.Handle("POST /auth/verify",
		httpx.Chain(http.HandlerFunc(h.HandleVerify),
			r.byIP("verify", httpx.PublicLimit),
		),
	)

	r.Mux.Handle("POST /auth/logout",
		httpx.Chain(http.HandlerFunc(h.HandleLogout),
			httpx.AuthnMiddleware(r.Tokens),
			r.byUser("logout", httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerSystem() {
	public := r.byIP("system", httpx.PublicLimit)

	r.Mux.Handle("GET /{$}", httpx.Chain(BannerHandler(r.buildVersion), public))
	r.Mux.Handle("GET /health", httpx.Chain(HealthHandler(), public))

	// Probes - lenient (monitoring systems may poll frequently)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			r.byIP("livez", httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.States),
			r.byIP("readyz", httpx.LenientLimit),
		),
	)

	if r.Gatherer != nil {
		r.Mux.Handle("GET /metrics", metrics.Handler(r.Gatherer))
	}
}
