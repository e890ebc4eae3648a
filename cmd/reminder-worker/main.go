package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/hackgods/counseling-scheduling/internal/config"
	"github.com/hackgods/counseling-scheduling/internal/counseling"
	"github.com/hackgods/counseling-scheduling/internal/db"
	"github.com/hackgods/counseling-scheduling/internal/logging"
	redisclient "github.com/hackgods/counseling-scheduling/internal/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("reminder-worker starting up",
		zap.String("env", cfg.Env),
		zap.Duration("interval", cfg.WorkerInterval),
		zap.Duration("lead", cfg.ReminderLead),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{AppName: "counseling-reminder-worker", MaxConns: 4})
	cancelPg()
	if err != nil {
		logger.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(rootCtx, cfg)
	if err != nil {
		logger.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("error closing redis", zap.Error(err))
		}
	}()
	logger.Info("connected to Redis")

	store := counseling.NewPgStore(pgPool)
	locker := redisclient.NewRedisLocker(rdb, cfg.LockTTL, cfg.LockWait)
	svc := counseling.NewService(store, locker, cfg, logger.Named("counseling"))

	// Run once at startup
	runOnce(rootCtx, svc, logger)

	c := cron.New(
		cron.WithLocation(cfg.Loc()),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	schedule := fmt.Sprintf("@every %s", cfg.WorkerInterval)
	if _, err := c.AddFunc(schedule, func() { runOnce(rootCtx, svc, logger) }); err != nil {
		logger.Fatal("invalid worker schedule", zap.String("schedule", schedule), zap.Error(err))
	}
	c.Start()
	logger.Info("reminder scheduler started", zap.String("schedule", schedule))

	<-rootCtx.Done()
	logger.Info("shutdown signal received, stopping reminder worker")
	<-c.Stop().Done()
}

func runOnce(ctx context.Context, svc *counseling.Service, logger *zap.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	sent, err := svc.SendMeetingReminders(runCtx)
	if err != nil {
		logger.Error("reminder run error", zap.Error(err))
		return
	}
	logger.Info("reminder run complete", zap.Int("reminders", sent), zap.Duration("took", time.Since(start)))
}
