package redis

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/leaderboard"
	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/shared"
)

// LeaderboardCache implements leaderboard.Cache.
type LeaderboardCache struct {
	client *redis.Client
	logger *slog.Logger
}

// NewLeaderboardCache creates the cache.
func NewLeaderboardCache(client *redis.Client, logger *slog.Logger) *LeaderboardCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &LeaderboardCache{client: client, logger: logger}
}

// Put implements leaderboard.Cache.
func (c *LeaderboardCache) Put(ctx context.Context, board *leaderboard.Board) error {
	if err := setJSON(ctx, c.client, keyLeaderboard, board, leaderboardTTL); err != nil {
		return shared.WrapError("leaderboard", "Put", shared.ErrPersistence, "redis set", err)
	}
	return nil
}

// Get implements leaderboard.Cache.
func (c *LeaderboardCache) Get(ctx context.Context) (*leaderboard.Board, bool, error) {
	var board leaderboard.Board
	ok, err := getJSON(ctx, c.client, keyLeaderboard, &board)
	if err != nil {
		return nil, false, shared.WrapError("leaderboard", "Get", shared.ErrPersistence, "redis get", err)
	}
	if !ok {
		return nil, false, nil
	}
	return &board, true, nil
}
