// kasbuku-worker runs the recurring automation batches on a fixed interval:
// admin fees, interest credits and installment payments. Every batch is
// idempotent per account and month, so overlapping runs and restarts are
// harmless.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kasbuku/internal/automation"
	"kasbuku/internal/cli"
	"kasbuku/internal/events"
	"kasbuku/internal/ledger"
)

func main() {
	cfg := cli.Bootstrap("kasbuku-worker")

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
		}
	}

	var ledgerEvents ledger.EventPublisher
	var batchEvents automation.EventPublisher
	if publisher != nil {
		ledgerEvents = publisher
		batchEvents = publisher
	}

	svc := ledger.NewService(repo, ledgerEvents)
	engine := automation.NewEngine(svc, batchEvents)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slog.Info("Automation worker configured",
		"interval", cfg.WorkerInterval,
		"interest_basis", cfg.InterestBasis,
		"db", cfg.SQLiteDBPath)

	runAll := func(now time.Time) {
		opts := automation.RunOptions{
			Now:         now,
			Basis:       automation.InterestBasis(cfg.InterestBasis),
			ItemTimeout: cfg.ItemTimeout,
		}
		if _, err := engine.RunAdminFees(ctx, opts); err != nil {
			slog.Error("Admin fee batch failed", "error", err)
		}
		if _, err := engine.RunInterest(ctx, opts); err != nil {
			slog.Error("Interest batch failed", "error", err)
		}
		if _, err := engine.RunInstallments(ctx, opts); err != nil {
			slog.Error("Installment batch failed", "error", err)
		}
	}

	// Initial run on startup, then on the ticker.
	runAll(time.Now().UTC())

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				runAll(now.UTC())
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		slog.Info("Context cancelled")
	}

	cancel()
	slog.Info("Worker stopped gracefully")
}
