// Package app wires configuration, stores, directory and SMS drivers,
// services and the HTTP surface into a runnable recovery service.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/varden/recover/internal/recover/http"
	"github.com/varden/recover/internal/recover/idm"
	"github.com/varden/recover/internal/recover/idm/cerebrum"
	"github.com/varden/recover/internal/recover/idm/mock"
	"github.com/varden/recover/internal/recover/metrics"
	"github.com/varden/recover/internal/recover/service"
	"github.com/varden/recover/internal/recover/sms"
	"github.com/varden/recover/internal/recover/sms/gateway"
	"github.com/varden/recover/internal/recover/store"
	"github.com/varden/recover/internal/recover/store/drivers/memory"
	"github.com/varden/recover/internal/recover/store/drivers/sqlite"
	"github.com/varden/recover/pkg/cryptox"
	"github.com/varden/recover/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application encapsulates the recovery service with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	kv        store.KV
	directory idm.Client
	metrics   *metrics.Metrics

	tokenService        *service.TokenService
	nonceService        *service.NonceService
	rateLimiter         *service.RateLimiter
	housekeepingService *service.HousekeepingService

	dispatcher *sms.Dispatcher

	server *http.Server
	router *httpapi.Router
}

// New creates an Application instance with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "recover-service",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
		metrics: metrics.New(),
	}

	if err := app.initStore(); err != nil {
		return nil, err
	}
	if err := app.initDirectory(); err != nil {
		_ = app.kv.Close()
		return nil, err
	}
	if err := app.initSMS(); err != nil {
		_ = app.kv.Close()
		return nil, err
	}
	if err := app.initServices(); err != nil {
		_ = app.kv.Close()
		return nil, err
	}
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("recovery service starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
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

// Shutdown gracefully shuts down the application.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down recovery service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.kv.Close(); err != nil {
		app.logger.Error("error closing store", "error", err)
		return err
	}

	app.logger.Info("recovery service stopped")
	return nil
}

// initStore initializes the shared TTL key-value store.
func (app *Application) initStore() error {
	switch app.cfg.StoreDriver {
	case "memory", "":
		app.kv = memory.NewStore()
		return nil

	case "sqlite":
		dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
		db, err := sqlite.NewStore(dsn)
		if err != nil {
			return fmt.Errorf("failed to initialize store: %w", err)
		}
		if err := db.ApplyMigrations(); err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to apply store migrations: %w", err)
		}
		app.logger.Info("store migrations applied successfully")
		app.kv = db
		return nil

	default:
		return fmt.Errorf("unknown store driver %q", app.cfg.StoreDriver)
	}
}

// initDirectory initializes the identity directory client.
func (app *Application) initDirectory() error {
	switch app.cfg.IDMDriver {
	case "mock", "":
		app.logger.Warn("using the mock identity directory; not for production")
		app.directory = mock.NewClient()
		return nil

	case "cerebrum":
		if app.cfg.CerebrumURL == "" || app.cfg.CerebrumAPIKey == "" {
			return fmt.Errorf("cerebrum directory requires a URL and an API key")
		}
		backend := cerebrum.NewClient(app.cfg.CerebrumURL, app.cfg.CerebrumAPIKey, app.cfg.CerebrumTimeout)
		app.directory = idm.NewResolver(backend, app.cfg.Eligibility)
		return nil

	default:
		return fmt.Errorf("unknown directory driver %q", app.cfg.IDMDriver)
	}
}

// initSMS initializes the dispatcher over the configured transport.
func (app *Application) initSMS() error {
	var sender sms.Sender

	switch app.cfg.SMSDriver {
	case "null", "":
		app.logger.Warn("using the null SMS transport; messages are discarded")
		sender = sms.NullSender{}

	case "gateway":
		if app.cfg.GatewayURL == "" {
			return fmt.Errorf("gateway SMS transport requires a URL")
		}
		sender = gateway.NewSender(
			app.cfg.GatewayURL,
			app.cfg.GatewaySystem,
			app.cfg.GatewayUser,
			app.cfg.GatewayPass,
			app.cfg.GatewayTimeout,
		)

	default:
		return fmt.Errorf("unknown SMS driver %q", app.cfg.SMSDriver)
	}

	dispatcher, err := sms.NewDispatcher(sender, sms.Config{
		DefaultRegion:    app.cfg.SMSDefaultRegion,
		WhitelistRegions: len(app.cfg.SMSWhitelistRegions) > 0,
		Regions:          app.cfg.SMSWhitelistRegions,
		WhitelistNumbers: len(app.cfg.SMSWhitelistNumbers) > 0,
		Numbers:          app.cfg.SMSWhitelistNumbers,
	}, sms.Events{
		Sent:     app.metrics.SMSSent,
		Filtered: app.metrics.SMSFiltered,
		Error:    app.metrics.SMSError,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize SMS dispatcher: %w", err)
	}

	app.dispatcher = dispatcher
	return nil
}

// initServices initializes the workflow services.
func (app *Application) initServices() error {
	secret, err := cryptox.LoadSecret(app.cfg.TokenSecret, app.cfg.TokenSecretFile)
	if err != nil {
		return fmt.Errorf("failed to load signing secret: %w", err)
	}

	app.tokenService = &service.TokenService{
		Secret: secret,
		Issuer: app.cfg.TokenIssuer,
		Expiry: app.cfg.TokenExpiry,
		Leeway: app.cfg.TokenLeeway,
		OnSign: []service.SignObserver{app.metrics.TokenSigned},
	}

	app.nonceService = &service.NonceService{
		Store:  app.kv,
		Length: app.cfg.NonceLength,
		TTL:    app.cfg.NonceTTL,
	}

	app.rateLimiter = &service.RateLimiter{
		Store:    app.kv,
		Disabled: app.cfg.RateLimitDisabled,
	}
	if app.cfg.RateLimitDisabled {
		app.logger.Warn("rate limiting disabled; not for production")
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.kv,
		app.logger,
		app.cfg.HousekeepingInterval,
	)

	return nil
}

// initHTTP initializes the HTTP router and server.
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(httpapi.Config{
		Scheme:  app.cfg.AuthScheme,
		Version: BuildVersion,

		Tokens:     app.tokenService,
		Nonces:     app.nonceService,
		Limiter:    app.rateLimiter,
		Directory:  app.directory,
		Dispatcher: app.dispatcher,
		KV:         app.kv,

		NonceMessage:     app.cfg.NonceMessage,
		UsernamesMessage: app.cfg.UsernamesMessage,

		OnError:          app.metrics.APIError,
		OnPasswordChange: app.metrics.PasswordChanged,
		MetricsHandler:   app.metrics.Handler(),
	}, app.logger)
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
