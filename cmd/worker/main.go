// Package main is the entry point for the stats hub background worker.
//
// The worker owns the periodic jobs:
//   - leaderboard rebuilds into the Redis cache
//   - snapshot refreshes for recently active players
//   - pruning of the session archive past the retention window
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	goredis "github.com/redis/go-redis/v9"

	"github.com/mathrunner-hub/mathrunner-stats-hub/config"
	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/leaderboard"
	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/stats"
	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/infrastructure/persistence/postgres"
	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/infrastructure/persistence/redis"
	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/infrastructure/scheduler"
	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/infrastructure/scheduler/jobs"
	"github.com/mathrunner-hub/mathrunner-stats-hub/pkg/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION AND LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.Setup(cfg.Observability.LogLevel, cfg.Observability.LogFormat, "worker")
	log.Info("starting stats hub worker",
		"env", string(cfg.App.Environment),
		"version", cfg.App.Version,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. POSTGRESQL AND MIGRATIONS
	// ─────────────────────────────────────────────────────────────────────────
	pgCfg := postgres.DefaultConfig(cfg.Database.URL)
	pgCfg.QueryTimeout = cfg.Database.QueryTimeout

	db, err := postgres.Connect(ctx, pgCfg, log)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer db.Close()

	// The worker migrates too so it can run standalone.
	if err := postgres.NewMigrator(db, log).Migrate(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. REDIS (OPTIONAL)
	// ─────────────────────────────────────────────────────────────────────────
	var (
		redisClient   *goredis.Client
		boardCache    leaderboard.Cache
		snapshotStore stats.SnapshotStore
	)
	if !cfg.Redis.Disabled {
		redisClient, err = redis.Connect(ctx, redis.Config{
			URL:          cfg.Redis.URL,
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		}, log)
		if err != nil {
			log.Warn("redis unavailable, caches stay cold", "error", err)
		} else {
			defer redisClient.Close()
			boardCache = redis.NewLeaderboardCache(redisClient, log)
			snapshotStore = redis.NewSnapshotCache(redisClient, log)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. REPOSITORIES
	// ─────────────────────────────────────────────────────────────────────────
	aggRepo := postgres.NewAggregateRepository(db, log)
	boardRepo := postgres.NewLeaderboardRepository(db, log)

	// ─────────────────────────────────────────────────────────────────────────
	// 5. SCHEDULER AND JOBS
	// ─────────────────────────────────────────────────────────────────────────
	sched := scheduler.New(log)

	rebuild := jobs.NewRebuildLeaderboardJob(boardRepo, boardCache, nil, 100, log)
	if err := sched.Register(rebuild, scheduler.EveryImmediate(cfg.Scheduler.LeaderboardRebuildInterval), 0); err != nil {
		return err
	}

	prune := jobs.NewPruneSessionsJob(aggRepo, cfg.Scheduler.SessionRetention, log)
	if err := sched.Register(prune, scheduler.Every(cfg.Scheduler.PruneInterval), 0); err != nil {
		return err
	}

	if snapshotStore != nil {
		refresh := jobs.NewRefreshSnapshotsJob(aggRepo, snapshotStore, jobs.RefreshSnapshotsConfig{
			Window:      cfg.Scheduler.SnapshotRefreshWindow,
			Concurrency: 4,
		}, log)
		if err := sched.Register(refresh, scheduler.Every(cfg.Scheduler.SnapshotRefreshInterval), 0); err != nil {
			return err
		}
	}

	if err := sched.Start(ctx); err != nil {
		return err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	log.Info("received shutdown signal", "signal", sig.String())

	sched.Stop()
	log.Info("shutdown complete")
	return nil
}
