package redis

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Presence tracks which players are currently logged in across instances.
// Each user gets a per-user key with a TTL plus membership in a shared set;
// the per-user key expiring means the login went stale (crashed client,
// dropped connection) and the set entry is lazily cleaned on read.
type Presence struct {
	client *redis.Client
	logger *slog.Logger
}

// NewPresence creates the tracker.
func NewPresence(client *redis.Client, logger *slog.Logger) *Presence {
	if logger == nil {
		logger = slog.Default()
	}
	return &Presence{client: client, logger: logger}
}

// MarkOnline records a login or a heartbeat.
func (p *Presence) MarkOnline(ctx context.Context, userID string) error {
	pipe := p.client.Pipeline()
	pipe.Set(ctx, keyPrefixOnlineUser+userID, time.Now().Unix(), presenceTTL)
	pipe.SAdd(ctx, keyOnlineUsers, userID)
	_, err := pipe.Exec(ctx)
	return err
}

// MarkOffline records a logout.
func (p *Presence) MarkOffline(ctx context.Context, userID string) error {
	pipe := p.client.Pipeline()
	pipe.Del(ctx, keyPrefixOnlineUser+userID)
	pipe.SRem(ctx, keyOnlineUsers, userID)
	_, err := pipe.Exec(ctx)
	return err
}

// IsOnline reports whether the user has a live presence key.
func (p *Presence) IsOnline(ctx context.Context, userID string) (bool, error) {
	n, err := p.client.Exists(ctx, keyPrefixOnlineUser+userID).Result()
	return n > 0, err
}

// Online returns the users currently online, dropping stale set entries.
func (p *Presence) Online(ctx context.Context) ([]string, error) {
	members, err := p.client.SMembers(ctx, keyOnlineUsers).Result()
	if err != nil {
		return nil, err
	}

	online := make([]string, 0, len(members))
	var stale []interface{}
	for _, userID := range members {
		alive, err := p.IsOnline(ctx, userID)
		if err != nil {
			return nil, err
		}
		if alive {
			online = append(online, userID)
		} else {
			stale = append(stale, userID)
		}
	}
	if len(stale) > 0 {
		if err := p.client.SRem(ctx, keyOnlineUsers, stale...).Err(); err != nil {
			p.logger.Warn("stale presence cleanup failed", slog.Any("error", err))
		}
	}
	return online, nil
}

// OnlineCount returns the number of live users.
func (p *Presence) OnlineCount(ctx context.Context) (int, error) {
	online, err := p.Online(ctx)
	if err != nil {
		return 0, err
	}
	return len(online), nil
}
