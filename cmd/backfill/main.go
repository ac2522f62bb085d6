package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/snowfest/platform/internal/infra"
	"github.com/snowfest/platform/internal/repository"
	"github.com/snowfest/platform/internal/reward"
	"github.com/snowfest/platform/internal/seasonpass"
)

// One-shot repair tool: grants season-pass auto-claim rewards that were
// reached but never delivered. Idempotent; safe to re-run.
func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	seasonID := flag.Int("season-id", 0, "limit to one season (0 = all)")
	userID := flag.String("user-id", "", "limit to one user UUID")
	dryRun := flag.Bool("dry-run", false, "report without granting")
	flag.Parse()

	if err := run(logger, *seasonID, *userID, *dryRun); err != nil {
		logger.Error("backfill failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, seasonID int, userID string, dryRun bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pool, err := infra.NewPostgresPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	walletRepo := repository.NewWalletRepository()
	seasonRepo := repository.NewSeasonPassRepository()
	activityRepo := repository.NewActivityRepository()
	outboxRepo := repository.NewOutboxRepository()
	deliverer := reward.NewService(walletRepo, outboxRepo, logger)
	engine := seasonpass.NewEngine(pool, seasonRepo, outboxRepo, activityRepo, deliverer, infra.NewEventClock(loc), logger)

	opts := seasonpass.BackfillOptions{DryRun: dryRun}
	if seasonID > 0 {
		opts.SeasonID = &seasonID
	}
	if userID != "" {
		id, err := uuid.Parse(userID)
		if err != nil {
			return fmt.Errorf("parse user-id: %w", err)
		}
		opts.UserID = &id
	}

	report, err := engine.Backfill(ctx, opts)
	if err != nil {
		return err
	}

	fmt.Printf("scanned=%d granted=%d skipped=%d failed=%d dry_run=%v\n",
		report.Scanned, report.Granted, report.Skipped, report.Failed, dryRun)
	for _, f := range report.Failures {
		fmt.Printf("FAILED user=%s season=%d level=%d: %s\n", f.UserID, f.SeasonID, f.Level, f.Error)
	}

	if report.Failed > 0 {
		return fmt.Errorf("%d grants failed", report.Failed)
	}
	return nil
}
