package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	httpapi "github.com/commacm/comma-auth/internal/auth/http"
	"github.com/commacm/comma-auth/internal/auth/metrics"
	"github.com/commacm/comma-auth/internal/auth/otp"
	"github.com/commacm/comma-auth/internal/auth/otp/local"
	"github.com/commacm/comma-auth/internal/auth/otp/twilio"
	"github.com/commacm/comma-auth/internal/auth/provider"
	"github.com/commacm/comma-auth/internal/auth/provider/apple"
	"github.com/commacm/comma-auth/internal/auth/provider/google"
	"github.com/commacm/comma-auth/internal/auth/provider/microsoft"
	"github.com/commacm/comma-auth/internal/auth/service"
	"github.com/commacm/comma-auth/internal/auth/store"
	"github.com/commacm/comma-auth/internal/auth/store/drivers/memory"
	"github.com/commacm/comma-auth/internal/auth/store/drivers/redis"
	"github.com/commacm/comma-auth/internal/auth/store/drivers/sqlite"
	"github.com/commacm/comma-auth/pkg/jwtx"
	"github.com/commacm/comma-auth/pkg/slogx"
)

// BuildVersion is overridden at build time with -ldflags "-X .../app.BuildVersion=...".
var BuildVersion = "v0.1.0"

// Application encapsulates the auth gateway with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// ctx lives as long as the process and scopes background fetches
	// such as Apple's JWKS.
	ctx    context.Context
	cancel context.CancelFunc

	// Core dependencies
	states    store.StateStore
	key       *jwtx.HMACKey
	providers *provider.Registry
	verifier  otp.Verifier
	registry  *prometheus.Registry
	metrics   *metrics.Collector

	// Services
	tokenService        *service.TokenService
	sessionService      *service.SessionService
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: httpapi.ServiceName,
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app.ctx, app.cancel = context.WithCancel(context.Background())

	key, err := InitSigningKey(cfg, app.logger)
	if err != nil {
		app.cancel()
		return nil, fmt.Errorf("failed to initialize signing key: %w", err)
	}
	app.key = key

	if err := app.initStateStore(); err != nil {
		app.cancel()
		return nil, err
	}

	if err := app.initProviders(); err != nil {
		app.cancel()
		_ = app.states.Close()
		return nil, err
	}

	if err := app.initOTP(); err != nil {
		app.cancel()
		_ = app.states.Close()
		return nil, err
	}

	app.registry = metrics.NewRegistry()
	app.metrics = metrics.NewCollector(app.registry)

	app.initServices()
	app.initHTTP()
	app.initHousekeeping()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("auth service starting",
		"port", app.cfg.Port,
		"version", BuildVersion,
		"providers", app.providers.Names(),
		"otp", app.cfg.OTPProvider,
		"state_store", app.cfg.StateStore,
	)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a shutdown signal or server error
	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.housekeepingService.Stop()
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down auth service...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()
	app.cancel()

	if err := app.states.Close(); err != nil {
		app.logger.Error("error closing state store", "error", err)
		return err
	}

	app.logger.Info("auth service stopped")
	return nil
}

// Handler exposes the routed handler, mainly for tests.
func (app *Application) Handler() http.Handler { return app.router }

func (app *Application) initStateStore() error {
	opts := store.Options{TTL: app.cfg.StateTTL}

	switch app.cfg.StateStore {
	case "redis":
		ctx, cancel := context.WithTimeout(app.ctx, 5*time.Second)
		defer cancel()
		s, err := redis.Open(ctx, redis.Config{
			Addr:     app.cfg.Redis.Addr,
			Password: app.cfg.Redis.Password,
			DB:       app.cfg.Redis.DB,
		}, opts)
		if err != nil {
			return fmt.Errorf("failed to connect state store: %w", err)
		}
		app.states = s
	case "sqlite":
		dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)", app.cfg.DatabaseFile)
		s, err := sqlite.NewStore(dsn, opts)
		if err != nil {
			return fmt.Errorf("failed to initialize state store: %w", err)
		}
		app.states = s
		app.logger.Info("state store migrations applied", "file", app.cfg.DatabaseFile)
	default:
		app.states = memory.New(opts)
		if !app.cfg.IsDev() {
			app.logger.Warn("memory state store is not shared between replicas")
		}
	}
	return nil
}

func (app *Application) providerConfig(c OAuthConfig) provider.Config {
	return provider.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  c.RedirectURI,
		Allow:        app.cfg.AllowedDomains,
		Timeout:      app.cfg.ProviderTimeout,
	}
}

// initProviders registers every provider with a client id. An unconfigured
// provider is answered as unknown_provider.
func (app *Application) initProviders() error {
	var list []provider.Provider

	if app.cfg.Google.Enabled() {
		p, err := google.New(app.providerConfig(app.cfg.Google))
		if err != nil {
			return fmt.Errorf("google provider: %w", err)
		}
		list = append(list, p)
	}

	if app.cfg.Microsoft.Enabled() {
		p, err := microsoft.New(app.providerConfig(app.cfg.Microsoft.OAuthConfig), app.cfg.Microsoft.Tenant,
			microsoft.WithAllowedTenants(app.cfg.Microsoft.AllowedTenants...))
		if err != nil {
			return fmt.Errorf("microsoft provider: %w", err)
		}
		list = append(list, p)
	}

	if app.cfg.Apple.Enabled() {
		p, err := apple.New(app.ctx, apple.Config{
			Config: provider.Config{
				ClientID:    app.cfg.Apple.ClientID,
				RedirectURL: app.cfg.Apple.RedirectURI,
				Allow:       app.cfg.AllowedDomains,
				Timeout:     app.cfg.ProviderTimeout,
			},
			TeamID:          app.cfg.Apple.TeamID,
			KeyID:           app.cfg.Apple.KeyID,
			AllowUnverified: app.cfg.Apple.AllowUnverified,
		})
		if err != nil {
			return fmt.Errorf("apple provider: %w", err)
		}
		if app.cfg.Apple.AllowUnverified {
			app.logger.Warn("apple identity tokens will be accepted without signature verification")
		}
		list = append(list, p)
	}

	if len(list) == 0 {
		app.logger.Warn("no identity providers configured")
	}
	app.providers = provider.NewRegistry(list...)
	return nil
}

func (app *Application) initOTP() error {
	switch app.cfg.OTPProvider {
	case "local":
		app.verifier = local.New(local.Config{})
		app.logger.Warn("local OTP verifier enabled; codes are written to the log")
	default:
		v, err := twilio.New(twilio.Config{
			AccountSID: app.cfg.Twilio.AccountSID,
			AuthToken:  app.cfg.Twilio.AuthToken,
			ServiceSID: app.cfg.Twilio.ServiceSID,
			Channel:    app.cfg.Twilio.Channel,
			Timeout:    app.cfg.ProviderTimeout,
		})
		if err != nil {
			return fmt.Errorf("twilio verifier: %w", err)
		}
		app.verifier = v
	}
	return nil
}

// initServices initializes all business logic services
func (app *Application) initServices() {
	app.tokenService = service.NewTokenService(app.key, app.cfg.AccessTokenTTL, app.cfg.RefreshTokenTTL)
	app.tokenService.Metrics = app.metrics

	app.sessionService = &service.SessionService{
		Providers:      app.providers,
		States:         app.states,
		Tokens:         app.tokenService,
		OTP:            app.verifier,
		Policy:         app.cfg.ScopePolicy(),
		AllowedOrigins: app.cfg.AllowedOrigins,
		Metrics:        app.metrics,
	}
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(BuildVersion, app.logger)

	// Wire services to router
	router.Sessions = app.sessionService
	router.Tokens = app.tokenService
	router.States = app.states
	router.AllowedOrigins = app.cfg.AllowedOrigins
	router.TrustedProxies = app.cfg.TrustedProxyPrefixes()
	router.Metrics = app.metrics
	router.Gatherer = app.registry
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

// initHousekeeping registers every sweeper: states, OTP challenges (local
// driver only) and rate limiter buckets.
func (app *Application) initHousekeeping() {
	tasks := []service.SweepTask{service.StateSweeper(app.states, app.metrics)}

	if s, ok := app.verifier.(service.Sweeper); ok {
		tasks = append(tasks, service.SweepTask{Name: "otp_challenges", Sweeper: s})
	}
	for _, rl := range app.router.Limiters() {
		tasks = append(tasks, service.SweepTask{Name: "rate_limit_buckets", Sweeper: rl})
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.logger,
		app.cfg.HousekeepingInterval,
		tasks...,
	)
}
