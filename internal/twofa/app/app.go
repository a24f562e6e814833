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

	httpapi "github.com/aussiebroadwan/twofa/internal/twofa/http"
	"github.com/aussiebroadwan/twofa/internal/twofa/service"
	"github.com/aussiebroadwan/twofa/internal/twofa/store"
	"github.com/aussiebroadwan/twofa/internal/twofa/store/drivers/redis"
	"github.com/aussiebroadwan/twofa/internal/twofa/store/drivers/sqlite"
	"github.com/aussiebroadwan/twofa/pkg/cryptox"
	"github.com/aussiebroadwan/twofa/pkg/slogx"
	"github.com/aussiebroadwan/twofa/pkg/totpx"
	"github.com/pquerna/otp"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application encapsulates the twofa service with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	db store.Store

	enrollmentService   *service.EnrollmentService
	housekeepingService *service.HousekeepingService // nil when UNVERIFIED_TTL is 0

	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "twofa",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initStore(context.Background()); err != nil {
		return nil, err
	}

	if err := app.initServices(); err != nil {
		_ = app.db.Close()
		return nil, err
	}
	app.initHTTP()

	return app, nil
}

// Handler exposes the fully wired router.
func (app *Application) Handler() http.Handler {
	return app.router
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	if app.housekeepingService != nil {
		app.housekeepingService.Start()
	}

	app.logger.Info("twofa service starting", "port", app.cfg.Port, "version", BuildVersion, "store", app.cfg.StoreDriver)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	// Block until we receive a shutdown signal or server error
	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			_ = app.release()
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
	app.logger.Info("shutting down twofa service...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	if err := app.release(); err != nil {
		return err
	}

	app.logger.Info("twofa service stopped")
	return nil
}

// release stops background work and closes the record store.
func (app *Application) release() error {
	if app.housekeepingService != nil {
		app.housekeepingService.Stop()
	}

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing store", "error", err)
		return err
	}
	return nil
}

// initStore opens the configured record store, applies migrations and
// enables sealing when a master key is present.
func (app *Application) initStore(ctx context.Context) error {
	var db store.Store

	switch app.cfg.StoreDriver {
	case StoreDriverRedis:
		rdb, err := redis.Connect(ctx, redis.Config{
			URL:       app.cfg.RedisURL,
			KeyPrefix: app.cfg.RedisKeyPrefix,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		db = rdb
	default:
		sdb, err := sqlite.NewStore(sqliteDSN(app.cfg.DatabaseFile))
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		db = sdb
	}

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}
	app.logger.Info("record store ready", "driver", app.cfg.StoreDriver)

	sealed, err := InitSealing(app.cfg, db, app.logger)
	if err != nil {
		_ = db.Close()
		return err
	}
	app.db = sealed

	return nil
}

// sqliteDSN enables WAL and a busy timeout for file databases.
func sqliteDSN(file string) string {
	if file == ":memory:" {
		return file
	}
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", file)
}

// initServices initializes all business logic services
func (app *Application) initServices() error {
	algorithm, err := totpx.ParseAlgorithm(app.cfg.Algorithm)
	if err != nil {
		return err
	}

	engine, err := totpx.NewEngine(totpx.Options{
		Period:    uint(app.cfg.Period),
		Digits:    otp.Digits(app.cfg.Digits),
		Algorithm: algorithm,
	})
	if err != nil {
		return err
	}

	secrets, err := totpx.NewSecretGenerator(app.cfg.SecretBytes, nil)
	if err != nil {
		return err
	}

	app.enrollmentService = &service.EnrollmentService{
		Store:            app.db,
		Engine:           engine,
		Secrets:          secrets,
		Identities:       cryptox.NewIdentityGenerator(nil),
		Issuer:           app.cfg.Issuer,
		EnrollWindow:     uint(app.cfg.EnrollWindow),
		ValidateWindow:   uint(app.cfg.ValidateWindow),
		ReplayProtection: app.cfg.ReplayProtection,
	}

	if app.cfg.UnverifiedTTL > 0 {
		app.housekeepingService = service.NewHousekeepingService(
			app.db,
			app.logger,
			app.cfg.HousekeepingInterval,
			app.cfg.UnverifiedTTL,
		)
	}

	return nil
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		BuildVersion,
		app.db,
		app.enrollmentService,
		app.logger,
	)
	router.RegisterLimit = app.cfg.RegisterLimit
	router.TrustProxyHeaders = app.cfg.TrustProxyHeaders
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
