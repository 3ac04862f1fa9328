package main

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"

	"ssogate/internal/api"
	"ssogate/internal/auth"
	"ssogate/internal/config"
	"ssogate/internal/federation"
	"ssogate/internal/observability"
	"ssogate/internal/resolver"
	"ssogate/internal/web"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		observability.NewLogger(observability.DefaultConfig()).Error("configuration error", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})

	sentryEnabled := false
	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      envOr("SENTRY_ENVIRONMENT", "production"),
			Release:          envOr("APP_VERSION", "dev"),
			TracesSampleRate: 1.0,
			AttachStacktrace: true,
		})
		if err != nil {
			logger.Warn("sentry initialization failed", "error", err)
		} else {
			logger.Info("sentry initialized")
			sentryEnabled = true
		}
	}

	metricsCfg := observability.MetricsConfigFromEnv()
	var metrics *observability.Metrics
	if metricsCfg.Enabled {
		metrics = observability.NewMetrics(metricsCfg)
		logger.Info("metrics enabled", "namespace", metricsCfg.Namespace)
	} else {
		logger.Info("metrics disabled")
	}

	store, auditLogger := selectBackends(cfg, logger)

	spOpts := federation.Options{BaseURL: cfg.BaseURL}
	if cfg.SPKeyFile != "" {
		key, cert, err := loadSPCredentials(cfg.SPKeyFile, cfg.SPCertFile)
		if err != nil {
			logger.Error("load SP signing credentials", "error", err)
			os.Exit(1)
		}
		spOpts.Key = key
		spOpts.Certificate = cert
		logger.Info("SP request signing enabled", "cert_file", cfg.SPCertFile)
	} else {
		logger.Info("SP request signing disabled (unsigned AuthnRequests)")
	}

	registry := federation.NewRegistry(store, spOpts)
	emailResolver := resolver.New(store, cfg.FallbackToDefaultIdP)
	sessions := auth.NewMemorySessionStore()
	pending := auth.NewPendingStore(cfg.PendingLoginTTL)

	mux := http.NewServeMux()

	// Admin API lives on its own mux behind the bearer-token gate.
	adminMux := http.NewServeMux()
	adminSrv := api.NewServer(adminMux, store, auditLogger, logger)
	adminSrv.RegisterRoutes()
	adminHandler := api.AdminAuthMiddleware(cfg.AdminToken, logger.Slog())(adminMux)
	mux.Handle("/api/v1/", adminHandler)
	if cfg.AdminToken == "" {
		logger.Warn("no admin token configured; the admin API is disabled")
	}

	loginLimiter := postOnly(api.RateLimitMiddleware(api.RateLimitConfig{
		RequestsPerSecond: 5.0 / 60.0,
		Burst:             5,
	}, logger.Slog()))
	webSrv := web.NewServer(mux, web.Options{
		Store:           store,
		Registry:        registry,
		Resolver:        emailResolver,
		Sessions:        sessions,
		Pending:         pending,
		Metrics:         metrics,
		Logger:          logger,
		SessionDuration: cfg.SessionDuration,
		BaseURL:         cfg.BaseURL,
	})
	webSrv.RegisterRoutes(loginLimiter)

	mux.Handle("/openapi.yaml", api.OpenAPIHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if metrics != nil {
		mux.Handle("/metrics", metrics.Handler())
	}

	// Background cleanup of expired sessions and abandoned login handshakes.
	go func() {
		ticker := time.NewTicker(15 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			n, err := sessions.Cleanup(context.Background())
			if err != nil {
				logger.Warn("session cleanup error", "error", err)
			} else if n > 0 {
				logger.Info("cleaned up expired sessions", "count", n)
			}
			if n := pending.Cleanup(); n > 0 {
				logger.Info("cleaned up abandoned logins", "count", n)
			}
		}
	}()

	handler := api.ApplyMiddlewares(
		mux,
		observability.MetricsMiddleware(metrics),
		api.RequestIDMiddleware(),
		api.LoggingMiddleware(logger.Slog()),
	)
	server := &http.Server{
		Addr:              cfg.ListenAddr,
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
		logger.Info("ssogate listening", "addr", cfg.ListenAddr, "base_url", cfg.BaseURL)
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
		}
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	}

	logger.Info("shutting down server", "timeout", "15s")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	} else {
		logger.Info("server stopped gracefully")
	}

	if err := store.Close(); err != nil {
		logger.Error("error closing store", "error", err)
	}
	if closer, ok := auditLogger.(interface{ Close() error }); ok {
		_ = closer.Close()
	}

	if sentryEnabled {
		sentry.Flush(2 * time.Second)
	}

	logger.Info("shutdown complete")
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// postOnly applies mw to POST requests and passes everything else through,
// so the login form itself is never rate limited.
func postOnly(mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		limited := mw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost {
				limited.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// loadSPCredentials reads and parses the SP signing key pair.
func loadSPCredentials(keyFile, certFile string) (*rsa.PrivateKey, *x509.Certificate, error) {
	keyPEM, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, nil, err
	}
	certPEM, err := os.ReadFile(certFile)
	if err != nil {
		return nil, nil, err
	}
	k, err := federation.ParsePrivateKey(string(keyPEM))
	if err != nil {
		return nil, nil, err
	}
	c, err := federation.ParseCertificate(string(certPEM))
	if err != nil {
		return nil, nil, err
	}
	return k, c, nil
}
