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

	"kasbuku/internal/automation"
	"kasbuku/internal/cli"
	"kasbuku/internal/events"
	apphttp "kasbuku/internal/http"
	"kasbuku/internal/ledger"
)

func main() {
	cfg := cli.Bootstrap("kasbuku")

	repo := cli.OpenStorage(cfg.SQLiteDBPath)
	defer repo.Close()

	var publisher *events.Client
	if cfg.AMQPURL != "" {
		var err error
		publisher, err = events.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			slog.Warn("Failed to initialize AMQP client, continuing without events", "error", err)
			publisher = nil
		} else {
			defer publisher.Close()
			slog.Info("AMQP client initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	} else {
		slog.Info("AMQP disabled, ledger events will not be published")
	}

	// The interface conversions keep a nil *Client from becoming a non-nil
	// interface value.
	var ledgerEvents ledger.EventPublisher
	var batchEvents automation.EventPublisher
	if publisher != nil {
		ledgerEvents = publisher
		batchEvents = publisher
	}

	svc := ledger.NewService(repo, ledgerEvents)
	engine := automation.NewEngine(svc, batchEvents)

	srv := apphttp.NewServer(":"+cfg.Port, svc, engine, automation.InterestBasis(cfg.InterestBasis), cfg.Locale)
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		slog.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	slog.Info("Starting kasbuku server", "port", cfg.Port, "db", cfg.SQLiteDBPath)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	slog.Info("Server stopped gracefully")
}
