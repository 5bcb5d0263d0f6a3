// Package redis implements the volatile stores: the live snapshot cache, the
// leaderboard cache and the presence set. Everything here is rebuildable
// from PostgreSQL; Redis being down degrades freshness, not correctness.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key prefixes. All keys are namespaced under mathrunner:.
const (
	keyPrefixSnapshot   = "mathrunner:snapshot:"
	keyLeaderboard      = "mathrunner:leaderboard"
	keyOnlineUsers      = "mathrunner:online"
	keyPrefixOnlineUser = "mathrunner:online:"
	channelSnapshots    = "mathrunner:snapshots"
)

// Default TTLs.
const (
	snapshotTTL    = 30 * time.Second
	leaderboardTTL = 2 * time.Minute
	presenceTTL    = 90 * time.Second
)

// Config holds Redis connection settings.
type Config struct {
	URL      string
	Host     string
	Port     int
	Password string
	DB       int

	PoolSize     int
	MinIdleConns int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Connect builds a client and verifies it with a ping.
func Connect(ctx context.Context, cfg Config, logger *slog.Logger) (*redis.Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var opts *redis.Options
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.MinIdleConns > 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	logger.Info("connected to redis", slog.String("addr", opts.Addr))
	return client, nil
}

// setJSON marshals v and stores it under key with the given TTL.
func setJSON(ctx context.Context, client *redis.Client, key string, v interface{}, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return client.Set(ctx, key, data, ttl).Err()
}

// getJSON loads key into v; ok=false on a miss.
func getJSON(ctx context.Context, client *redis.Client, key string, v interface{}) (bool, error) {
	data, err := client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return true, nil
}
