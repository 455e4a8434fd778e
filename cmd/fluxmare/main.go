package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"

	"fluxmare/internal/api"
	"fluxmare/internal/audit"
	"fluxmare/internal/auth"
	"fluxmare/internal/chat"
	"fluxmare/internal/compare"
	"fluxmare/internal/config"
	"fluxmare/internal/estimation"
	"fluxmare/internal/observability"
	"fluxmare/internal/settings"
	"fluxmare/internal/storage"
)

func main() {
	// Initialize structured logger from environment configuration
	logger := observability.NewLogger(observability.ConfigFromEnv())

	addr := flag.String("addr", "", "listen address (host:port), overrides config")
	configPath := flag.String("config", "", "path to a YAML config file")
	migrate := flag.String("migrate", "", "run migrations: 'up' to apply, 'status' to show status")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}

	// Initialize Sentry if DSN is provided
	sentryEnabled := false
	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.SentryEnvironment,
			Release:          cfg.Release,
			TracesSampleRate: 1.0,
			AttachStacktrace: true,
		})
		if err != nil {
			logger.Warn("sentry initialization failed", "error", err)
		} else {
			logger.Info("sentry initialized", "environment", cfg.SentryEnvironment, "release", cfg.Release)
			sentryEnabled = true
		}
	}

	// Handle migrations CLI before starting server
	if *migrate != "" {
		runMigrationsCLI(cfg, logger, *migrate)
		return
	}

	// Select storage based on build tags and config (see store_*.go in this package).
	store := selectStore(cfg, logger)

	metricsCfg := observability.MetricsConfigFromEnv()
	if metricsCfg.Version == "" || metricsCfg.Version == "dev" {
		metricsCfg.Version = cfg.Release
	}
	var metrics *observability.Metrics
	if metricsCfg.Enabled {
		metrics = observability.NewMetrics(metricsCfg)
		logger.Info("metrics enabled", "namespace", metricsCfg.Namespace, "version", metricsCfg.Version)
	} else {
		logger.Info("metrics disabled")
	}

	coeffs := estimation.DefaultCoefficients()
	if cfg.CoefficientsFile != "" {
		loaded, err := estimation.LoadCoefficients(cfg.CoefficientsFile)
		if err != nil {
			logger.Error("coefficients file rejected; using built-in model", "error", err)
		} else {
			coeffs = loaded
			logger.Info("coefficients loaded", "file", cfg.CoefficientsFile)
		}
	}
	rnd := estimation.DefaultRandom()
	estimator := estimation.New(coeffs, rnd)

	var chatOpts []chat.ManagerOption
	if !cfg.SeedDemo {
		chatOpts = append(chatOpts, chat.WithoutSeed())
	}
	chats := chat.NewManager(store, logger, chatOpts...)
	history := chat.NewInputHistory(store, logger, nil)
	responder := chat.NewResponder(chat.ResponderConfig{
		Estimator: estimator,
		History:   history,
		Random:    rnd,
		Delay:     chat.RandomDelay(rnd, cfg.ReplyDelayMin, cfg.ReplyDelayMax),
		Logger:    logger,
		Metrics:   metrics,
	})

	sessions := auth.NewMemorySessionStore()
	authn, err := auth.NewAuthenticator(store, sessions, auth.AuthenticatorConfig{
		AdminEmail:    cfg.AdminEmail,
		AdminPassword: cfg.AdminPassword,
		SessionTTL:    cfg.SessionTTL,
	}, logger)
	if err != nil {
		logger.Error("authenticator init failed", "error", err)
		os.Exit(1)
	}

	rateCfg := api.RateLimitConfig{RequestsPerSecond: cfg.RateLimitRPS, Burst: cfg.RateLimitBurst}
	if cfg.TrustedProxies != "" {
		proxies, err := api.ParseTrustedProxies(cfg.TrustedProxies)
		if err != nil {
			logger.Error("invalid FLUXMARE_TRUSTED_PROXIES", "error", err)
		} else {
			rateCfg.Proxies = proxies
			logger.Info("trusted proxies configured", "count", len(proxies.CIDRs))
		}
	}
	if !rateCfg.Enabled() {
		logger.Info("rate limiting disabled")
	} else {
		logger.Info("rate limiting configured",
			"requests_per_second", rateCfg.RequestsPerSecond,
			"burst", rateCfg.Burst,
		)
	}

	mux := http.NewServeMux()
	srv := api.NewServer(mux, api.Deps{
		Store:       store,
		Auth:        authn,
		Chats:       chats,
		Responder:   responder,
		History:     history,
		Estimator:   estimator,
		Comparisons: compare.NewList(store, logger, compare.WithMetrics(metrics)),
		Settings:    settings.NewService(store, logger),
		Audit:       audit.NewMemoryAuditLogger(),
		Logger:      logger,
		Metrics:     metrics,
	})
	loginRL := api.LoginRateLimitMiddleware(api.LoginRateLimitConfig{
		AttemptsPerMinute: cfg.LoginPerMinute,
		ProxyConfig:       rateCfg.Proxies,
	})
	srv.RegisterRoutes(api.WithLoginRateLimit(loginRL), api.WithCSRF())

	// Background session cleanup every 15 minutes.
	cleanupCtx, stopCleanup := context.WithCancel(context.Background())
	go cleanupSessions(cleanupCtx, sessions, chats, logger)

	// Order: metrics (outermost) -> requestID -> logging -> rateLimiting (innermost before handler)
	handler := api.ApplyMiddlewares(
		mux,
		observability.MetricsMiddleware(metrics),
		api.RequestIDMiddleware(),
		api.LoggingMiddleware(logger.Slog()),
		observability.RateLimitMetricsMiddleware(metrics, rateCfg.Enabled()),
		api.RateLimitMiddleware(rateCfg, logger.Slog()),
	)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("fluxmare listening", "addr", cfg.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
		}
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	}

	// Graceful shutdown with 15-second timeout
	logger.Info("shutting down server", "timeout", "15s")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	} else {
		logger.Info("server stopped gracefully")
	}
	stopCleanup()

	// Replies still pending are dropped; the ones already running finish
	// before the store goes away.
	responder.Close()
	responder.Wait()

	if err := store.Close(); err != nil {
		logger.Error("error closing store", "error", err)
	} else {
		logger.Info("store closed")
	}

	if sentryEnabled {
		logger.Info("flushing sentry events", "deadline", "2s")
		sentry.Flush(2 * time.Second)
	}

	logger.Info("shutdown complete")
}

func cleanupSessions(ctx context.Context, sessions auth.SessionStore, chats *chat.Manager, logger observability.Logger) {
	ticker := time.NewTicker(15 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sessions.Cleanup(ctx)
			if err != nil {
				logger.Warn("session cleanup error", "error", err)
			} else if n > 0 {
				logger.Info("cleaned up expired sessions", "count", n)
			}
			if n := chats.Sweep(); n > 0 {
				logger.Info("evicted idle conversation caches", "count", n)
			}
		}
	}
}

// runMigrationsCLI executes migration commands.
func runMigrationsCLI(cfg *config.Config, logger observability.Logger, cmd string) {
	switch cmd {
	case "up":
		// Opening the store applies pending migrations.
		st := selectStore(cfg, logger)
		closeStore(st, logger)
		runMigrationsCLI(cfg, logger, "status")
	case "status":
		status := "migrations status not available in this build"
		if s := sqliteStatus(cfg.SQLiteDSN); s != "" {
			status = s
		}
		if s := postgresStatus(cfg.DatabaseURL); s != "" {
			status = s
		}
		logger.Info("migrations status", "status", status)
	default:
		logger.Warn("unknown migrate command", "command", cmd)
	}
}

func closeStore(st storage.Store, logger observability.Logger) {
	if err := st.Close(); err != nil {
		logger.Error("error closing store", "error", err)
	}
}
