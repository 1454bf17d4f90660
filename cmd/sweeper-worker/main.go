package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/medbook/clinic-booking/internal/booking"
	"github.com/medbook/clinic-booking/internal/config"
	"github.com/medbook/clinic-booking/internal/db"
	"github.com/medbook/clinic-booking/internal/logging"
	redisclient "github.com/medbook/clinic-booking/internal/redis"
)

// The sweeper worker periodically completes past-due appointments and
// repairs slots stranded by interrupted bookings.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("sweeper-worker starting up",
		zap.String("env", cfg.Env), zap.Duration("interval", cfg.SweepInterval))

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	repo := booking.NewPgRepository(pgPool)
	payments := booking.NewPgPaymentStore(pgPool)

	// The sweeper only does read-then-write transitions guarded by
	// conditional updates, so no cross-process lock is needed.
	svc := booking.NewService(repo, payments, redisclient.NoopLocker{}, logger)

	runOnce(rootCtx, svc, logger)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info("shutdown signal received, stopping sweeper worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, logger)
		}
	}
}

func runOnce(ctx context.Context, svc *booking.Service, logger *zap.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()

	completed, err := svc.SweepExpired(runCtx)
	if err != nil {
		logger.Error("sweep run error", zap.Error(err))
		return
	}

	repaired, err := svc.RepairOrphanedSlots(runCtx)
	if err != nil {
		logger.Error("repair run error", zap.Error(err))
		return
	}

	logger.Info("sweep run complete",
		zap.Int("appointments_completed", completed),
		zap.Int("slots_repaired", repaired),
		zap.Duration("took", time.Since(start)))
}
