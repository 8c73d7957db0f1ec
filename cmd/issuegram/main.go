package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	githubadapter "github.com/avasilyev/issuegram/internal/adapter/driven/github"
	sqliteadapter "github.com/avasilyev/issuegram/internal/adapter/driven/sqlite"
	"github.com/avasilyev/issuegram/internal/adapter/driven/telegram"
	httphandler "github.com/avasilyev/issuegram/internal/adapter/driving/http"
	"github.com/avasilyev/issuegram/internal/application"
	"github.com/avasilyev/issuegram/internal/config"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on missing required env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"poll_interval", cfg.PollInterval,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", cfg.DBPath)

	// 4. Run migrations on writer connection.
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	slog.Info("migrations complete")

	// 5. Wire adapters.
	trackStore := sqliteadapter.NewTrackRepo(db)
	ghClient := githubadapter.NewClient(cfg.GitHubToken)
	notifier := telegram.NewSink(cfg.TelegramToken)

	// Seeding the rate limit snapshot is best effort; the client learns the
	// real numbers from the first GraphQL response anyway.
	if err := ghClient.SeedRateLimit(ctx); err != nil {
		slog.Warn("could not seed rate limit snapshot", "error", err)
	}

	// 6. Create services.
	pollSvc := application.NewPollService(ghClient, trackStore, notifier, cfg.PollInterval)
	trackSvc := application.NewTrackService(ghClient, trackStore)

	// 7. Start the poll loop. A fatal poll error (rejected credentials)
	// cancels the whole process rather than spinning uselessly.
	pollErr := make(chan error, 1)
	go func() {
		pollErr <- pollSvc.Run(ctx)
	}()

	// 8. Create HTTP handler and start the API server.
	handler := httphandler.NewServeMux(httphandler.NewHandler(trackSvc, slog.Default()), slog.Default())
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()

	slog.Info("issuegram started",
		"listen_addr", cfg.ListenAddr,
		"poll_interval", cfg.PollInterval,
	)

	// 9. Wait for a shutdown signal or a fatal poll error.
	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-pollErr:
		if err != nil {
			slog.Error("poll loop failed", "error", err)
			runErr = err
		}
	}

	// 10. Graceful shutdown with 10s timeout for HTTP server drain.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return runErr
}
