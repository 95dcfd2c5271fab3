// Package cli holds the shared process bootstrap used by cmd/kasbuku,
// cmd/kasbuku-worker and cmd/kasbuku-admin, plus the admin command tree.
package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"kasbuku/internal/config"
	applog "kasbuku/internal/log"
	"kasbuku/internal/storage"
)

// LoadEnvFile loads .env for local development. Missing files are fine.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// Bootstrap loads the environment, configures logging and validates the
// configuration, exiting the process on failure.
func Bootstrap(service string) *config.Config {
	LoadEnvFile()
	cfg := config.Load()
	applog.Setup(service, cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		slog.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

// OpenStorage opens the SQLite repository or exits the process.
func OpenStorage(dbPath string) *storage.Repository {
	repo, err := storage.Open(dbPath)
	if err != nil {
		slog.Error("Failed to open database", "error", err, "path", dbPath)
		os.Exit(1)
	}
	return repo
}

// GracefulShutdown returns a context cancelled on SIGINT/SIGTERM and a done
// channel closed once cleanup has run.
func GracefulShutdown(timeout time.Duration, cleanup func()) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		slog.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		if cleanup != nil {
			cleanup()
		}
		cancel()

		select {
		case <-shutdownCtx.Done():
			slog.Warn("Shutdown timeout reached")
		case <-time.After(2 * time.Second):
			slog.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup is done.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
