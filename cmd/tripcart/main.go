package main

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

	"github.com/spf13/pflag"

	"github.com/dukerupert/tripcart/internal/auth"
	"github.com/dukerupert/tripcart/internal/config"
	"github.com/dukerupert/tripcart/internal/database"
	"github.com/dukerupert/tripcart/internal/logging"
	"github.com/dukerupert/tripcart/internal/server"
	"github.com/dukerupert/tripcart/internal/store"
	ws "github.com/dukerupert/tripcart/internal/websocket"
)

func main() {
	if err := run(); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flagSet := pflag.NewFlagSet("tripcart", pflag.ContinueOnError)
	configPath := flagSet.String("config", os.Getenv("TRIPCART_CONFIG"), "path to a YAML config file")
	port := flagSet.String("port", "", "listen port")
	logLevel := flagSet.String("log-level", "", "debug, info, warn or error")
	logFormat := flagSet.String("log-format", "", "text or json")
	staticDir := flagSet.String("static-dir", "", "directory served at /")
	dbDriver := flagSet.String("db-driver", "", "sqlite or postgres")
	dbPath := flagSet.String("db-path", "", "SQLite database file")
	dbURL := flagSet.String("db-url", "", "PostgreSQL connection string")
	broadcastMode := flagSet.String("broadcast-mode", "", "scoped or global")
	toggleCAS := flagSet.Bool("toggle-cas", false, "reject purchase toggles that raced another client")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	// Flags set on the command line win over file and environment.
	for _, o := range []struct {
		name string
		val  *string
		dst  *string
	}{
		{"port", port, &cfg.Port},
		{"log-level", logLevel, &cfg.LogLevel},
		{"log-format", logFormat, &cfg.LogFormat},
		{"static-dir", staticDir, &cfg.StaticDir},
		{"db-driver", dbDriver, &cfg.Database.Driver},
		{"db-path", dbPath, &cfg.Database.Path},
		{"db-url", dbURL, &cfg.Database.URL},
		{"broadcast-mode", broadcastMode, &cfg.BroadcastMode},
	} {
		if flagSet.Changed(o.name) {
			*o.dst = *o.val
		}
	}
	if flagSet.Changed("toggle-cas") {
		cfg.ToggleCAS = *toggleCAS
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}

	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	mode, err := ws.ParseMode(cfg.BroadcastMode)
	if err != nil {
		return err
	}

	db, err := database.OpenDriver(cfg.Database.Driver, cfg.DSN())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	dialect := store.SQLite
	if cfg.Database.Driver == database.DriverPostgres {
		dialect = store.Postgres
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	verifier, err := newVerifier(ctx, cfg.Auth)
	if err != nil {
		return err
	}

	srv := server.New(db, dialect, verifier, server.Options{
		StaticDir:     cfg.StaticDir,
		BroadcastMode: mode,
		ToggleCAS:     cfg.ToggleCAS,
		WSRateLimit:   cfg.WSRateLimit,
	}, logger)

	// Drop idle per-IP limiter buckets
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				srv.RateLimiter().Cleanup()
			case <-ctx.Done():
				return
			}
		}
	}()

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("tripcart listening",
			"addr", cfg.Addr(),
			"db", cfg.Database.Driver,
			"auth", cfg.Auth.Mode,
			"broadcast", mode.String(),
		)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func newVerifier(ctx context.Context, cfg config.AuthConfig) (auth.Verifier, error) {
	switch cfg.Mode {
	case "oidc":
		v, err := auth.NewOIDCVerifier(ctx, cfg.OIDCIssuer, cfg.OIDCClientID)
		if err != nil {
			return nil, fmt.Errorf("oidc provider: %w", err)
		}
		return v, nil
	default:
		slog.Debug("verifying HS256 access tokens", "audience", cfg.JWTAudience)
		return auth.NewJWTVerifier(cfg.JWTSecret, cfg.JWTAudience, cfg.JWTIssuer), nil
	}
}
