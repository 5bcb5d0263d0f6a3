package redis

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/shared"
	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/stats"
)

// SnapshotCache implements stats.SnapshotStore and additionally publishes
// every stored snapshot on a pub/sub channel so other instances can feed
// their websocket hubs.
type SnapshotCache struct {
	client *redis.Client
	logger *slog.Logger
}

// NewSnapshotCache creates the cache.
func NewSnapshotCache(client *redis.Client, logger *slog.Logger) *SnapshotCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotCache{client: client, logger: logger}
}

// PutSnapshot implements stats.SnapshotStore.
func (c *SnapshotCache) PutSnapshot(ctx context.Context, userID string, snap stats.Snapshot) error {
	if err := setJSON(ctx, c.client, keyPrefixSnapshot+userID, snap, snapshotTTL); err != nil {
		return shared.WrapError("stats", "PutSnapshot", shared.ErrPersistence, "redis set", err)
	}

	// Best effort: a lost pub/sub message only delays the live feed until
	// the next sync pass.
	data, err := json.Marshal(snap)
	if err == nil {
		if err := c.client.Publish(ctx, channelSnapshots, data).Err(); err != nil {
			c.logger.Warn("snapshot publish failed",
				slog.String("user_id", userID), slog.Any("error", err))
		}
	}
	return nil
}

// GetSnapshot implements stats.SnapshotStore.
func (c *SnapshotCache) GetSnapshot(ctx context.Context, userID string) (stats.Snapshot, bool, error) {
	var snap stats.Snapshot
	ok, err := getJSON(ctx, c.client, keyPrefixSnapshot+userID, &snap)
	if err != nil {
		return stats.Snapshot{}, false, shared.WrapError("stats", "GetSnapshot", shared.ErrPersistence, "redis get", err)
	}
	return snap, ok, nil
}

// InvalidateSnapshot implements stats.SnapshotStore.
func (c *SnapshotCache) InvalidateSnapshot(ctx context.Context, userID string) error {
	if err := c.client.Del(ctx, keyPrefixSnapshot+userID).Err(); err != nil {
		return shared.WrapError("stats", "InvalidateSnapshot", shared.ErrPersistence, "redis del", err)
	}
	return nil
}

// SubscribeSnapshots delivers snapshots published by any instance to fn
// until the context is cancelled. Malformed payloads are dropped.
func (c *SnapshotCache) SubscribeSnapshots(ctx context.Context, fn func(stats.Snapshot)) {
	sub := c.client.Subscribe(ctx, channelSnapshots)
	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var snap stats.Snapshot
				if err := json.Unmarshal([]byte(msg.Payload), &snap); err != nil {
					c.logger.Warn("dropping malformed snapshot message", slog.Any("error", err))
					continue
				}
				fn(snap)
			}
		}
	}()
}
