// Package main is the entry point for the Math Runner stats hub API server.
//
// The server exposes the REST API (accounts, session ingestion, dashboard
// stats, leaderboard, exports, tutor chat), the websocket live feed and the
// Prometheus endpoint. Per-user sync loops run in-process: login starts a
// loop, logout hard-cancels it.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/mathrunner-hub/mathrunner-stats-hub/config"
	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/application/command"
	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/application/eventhandler"
	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/application/query"
	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/application/service"
	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/account"
	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/leaderboard"
	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/shared"
	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/stats"
	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/infrastructure/external/genai"
	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/infrastructure/messaging"
	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/infrastructure/persistence/postgres"
	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/infrastructure/persistence/redis"
	syncer "github.com/mathrunner-hub/mathrunner-stats-hub/internal/infrastructure/sync"
	apihttp "github.com/mathrunner-hub/mathrunner-stats-hub/internal/interface/http"
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

	log := logger.Setup(cfg.Observability.LogLevel, cfg.Observability.LogFormat, "api")
	log.Info("starting math runner stats hub",
		"env", string(cfg.App.Environment),
		"version", cfg.App.Version,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. POSTGRESQL AND MIGRATIONS
	// ─────────────────────────────────────────────────────────────────────────
	pgCfg := postgres.DefaultConfig(cfg.Database.URL)
	pgCfg.MaxConns = int32(cfg.Database.MaxOpenConns)
	pgCfg.MinConns = int32(cfg.Database.MaxIdleConns)
	pgCfg.ConnMaxLifetime = cfg.Database.ConnMaxLifetime
	pgCfg.ConnMaxIdleTime = cfg.Database.ConnMaxIdleTime
	pgCfg.QueryTimeout = cfg.Database.QueryTimeout

	db, err := postgres.Connect(ctx, pgCfg, log)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer db.Close()

	if err := postgres.NewMigrator(db, log).Migrate(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	log.Info("database schema is up to date")

	// ─────────────────────────────────────────────────────────────────────────
	// 3. REDIS (OPTIONAL)
	// ─────────────────────────────────────────────────────────────────────────
	var (
		redisClient   *goredis.Client
		snapshotStore stats.SnapshotStore
		snapshotCache *redis.SnapshotCache
		presence      service.Presence
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
			log.Warn("redis unavailable, running without snapshot cache", "error", err)
		} else {
			defer redisClient.Close()
			snapshotCache = redis.NewSnapshotCache(redisClient, log)
			snapshotStore = snapshotCache
			presence = redis.NewPresence(redisClient, log)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	busCfg := messaging.DefaultBusConfig()
	busCfg.Logger = log
	localBus := messaging.NewBus(busCfg)
	defer localBus.Close()

	var publisher shared.EventPublisher = localBus
	if redisClient != nil {
		redisBus := messaging.NewRedisBus(redisClient, localBus, uuid.NewString(), log)
		redisBus.Start(ctx)
		defer redisBus.Stop()
		publisher = redisBus
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. REPOSITORIES AND SYNC LOOPS
	// ─────────────────────────────────────────────────────────────────────────
	userRepo := postgres.NewUserRepository(db, log)
	aggRepo := postgres.NewAggregateRepository(db, log)
	boardRepo := postgres.NewLeaderboardRepository(db, log)

	// Snapshot cache refresh on ingestion, so dashboards do not wait for the
	// next sync pass.
	if snapshotStore != nil {
		refresher := eventhandler.NewSnapshotRefresher(aggRepo, snapshotStore, log)
		if err := localBus.Subscribe(refresher); err != nil {
			return fmt.Errorf("subscribe snapshot refresher: %w", err)
		}
	}

	// Typed nils must not end up behind the Cache interface.
	var boardCache leaderboard.Cache
	if redisClient != nil {
		boardCache = redis.NewLeaderboardCache(redisClient, log)
	}

	loops := syncer.New(aggRepo, snapshotStore, syncer.Config{
		Interval:       cfg.Sync.Interval,
		PassTimeout:    cfg.Sync.PassTimeout,
		MaxActiveUsers: cfg.Sync.MaxActiveUsers,
	}, log)
	defer loops.StopAll()

	// ─────────────────────────────────────────────────────────────────────────
	// 6. APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	registerHandler := command.NewRegisterUserHandler(userRepo, publisher, log)
	authHandler := command.NewAuthenticateHandler(userRepo, log)
	ingestHandler := command.NewIngestSessionHandler(userRepo, aggRepo, publisher, log)

	sessionService := service.NewSessionService(
		func(ctx context.Context, username, password string) (*account.User, error) {
			return authHandler.Handle(ctx, command.AuthenticateCommand{
				Username: username,
				Password: password,
			})
		},
		presence, loops, publisher, log)

	statsHandler := query.NewGetStatsHandler(userRepo, aggRepo, snapshotStore, log)
	boardHandler := query.NewGetLeaderboardHandler(boardRepo, boardCache, 100, log)
	exportHandler := query.NewExportHandler(userRepo, aggRepo, aggRepo, log)
	importHandler := query.NewImportHandler(userRepo, aggRepo, log)

	// ─────────────────────────────────────────────────────────────────────────
	// 7. TUTOR CHAT
	// ─────────────────────────────────────────────────────────────────────────
	var completer genai.Completer
	if cfg.GenAI.Disabled || cfg.GenAI.APIKey == "" {
		log.Info("tutor chat running with the stub completer")
		completer = stubCompleter{}
	} else {
		genaiCfg := genai.DefaultConfig(cfg.GenAI.APIKey)
		genaiCfg.BaseURL = cfg.GenAI.BaseURL
		genaiCfg.Model = cfg.GenAI.Model
		genaiCfg.RequestTimeout = cfg.GenAI.RequestTimeout
		genaiCfg.RequestsPerMinute = cfg.GenAI.RequestsPerMinute
		genaiCfg.MaxOutputTokens = cfg.GenAI.MaxOutputTokens
		completer = genai.New(genaiCfg, log)
	}

	chatService := service.NewChatService(
		completer,
		query.NewChatContextBuilder(aggRepo, cfg.Chat.ContextMaxSessions),
		cfg.Features,
		service.ChatConfig{
			MaxConversations: cfg.Chat.MaxConversations,
			MaxExchanges:     cfg.Chat.MaxMessages,
			TTL:              cfg.Chat.ConversationTTL,
			CleanupInterval:  cfg.Chat.CleanupInterval,
		},
		publisher, log)
	defer chatService.Close()

	// ─────────────────────────────────────────────────────────────────────────
	// 8. LIVE FEED
	// ─────────────────────────────────────────────────────────────────────────
	hub := apihttp.NewHub(apihttp.HubConfig{
		WriteTimeout: cfg.HTTP.WSWriteTimeout,
		QueueSize:    cfg.HTTP.WSQueueSize,
	}, log)

	// Snapshots from this instance's loops go straight to the hub; snapshots
	// published by other instances arrive over the Redis channel.
	loops.OnSnapshot(hub.Broadcast)
	if snapshotCache != nil {
		snapshotCache.SubscribeSnapshots(ctx, hub.Broadcast)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 9. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	health := map[string]apihttp.HealthCheck{"postgres": db.Health}
	if redisClient != nil {
		health["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}

	server := apihttp.NewServer(cfg.HTTP, apihttp.Deps{
		Register:    registerHandler,
		Ingest:      ingestHandler,
		Sessions:    sessionService,
		Stats:       statsHandler,
		Leaderboard: boardHandler,
		Export:      exportHandler,
		Importer:    importHandler,
		Chat:        chatService,
		Flags:       cfg.Features,
		Hub:         hub,
		Health:      health,
	}, log)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	// ─────────────────────────────────────────────────────────────────────────
	// 10. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "error", err)
	}

	log.Info("shutdown complete")
	return nil
}

// stubCompleter answers chat requests when no completion API is configured.
type stubCompleter struct{}

func (stubCompleter) Complete(ctx context.Context, system string, history []genai.Message, prompt string) (string, error) {
	return "The tutor is offline right now. Keep practicing and check your stats dashboard!", nil
}
