// Package query contains the read-side use cases: dashboard stats,
// leaderboard, exports and the chat performance context.
package query

import (
	"context"
	"log/slog"
	"time"

	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/account"
	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/shared"
	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/stats"
)

// GetStatsHandler serves the per-user dashboard snapshot.
//
// Reads go through the snapshot cache when one is wired: the sync loop keeps
// it warm for online users, so most dashboard reads never touch the database.
type GetStatsHandler struct {
	users  account.Repository
	repo   stats.Repository
	store  stats.SnapshotStore // nil when the cache is disabled
	logger *slog.Logger
}

// NewGetStatsHandler creates the handler. store may be nil.
func NewGetStatsHandler(users account.Repository, repo stats.Repository,
	store stats.SnapshotStore, logger *slog.Logger) *GetStatsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GetStatsHandler{users: users, repo: repo, store: store, logger: logger}
}

// Handle returns the current snapshot for the user. A known user who has
// never played gets an empty snapshot, not an error; an unknown user gets
// shared.ErrUserNotFound.
func (h *GetStatsHandler) Handle(ctx context.Context, userID string) (stats.Snapshot, error) {
	if h.store != nil {
		snap, ok, err := h.store.GetSnapshot(ctx, userID)
		if err != nil {
			h.logger.Warn("snapshot cache read failed",
				slog.String("user_id", userID),
				slog.Any("error", err))
		} else if ok {
			return snap, nil
		}
	}

	exists, err := h.users.Exists(ctx, userID)
	if err != nil {
		return stats.Snapshot{}, err
	}
	if !exists {
		return stats.Snapshot{}, shared.ErrUserNotFound
	}

	agg, err := h.repo.Load(ctx, userID)
	if err != nil {
		return stats.Snapshot{}, err
	}
	snap := stats.BuildSnapshot(agg, time.Now())

	if h.store != nil {
		if err := h.store.PutSnapshot(ctx, userID, snap); err != nil {
			h.logger.Warn("snapshot cache write failed",
				slog.String("user_id", userID),
				slog.Any("error", err))
		}
	}
	return snap, nil
}

// Period returns the summary for one time frame.
func (h *GetStatsHandler) Period(ctx context.Context, userID string, frame stats.TimeFrame) (stats.PeriodStats, error) {
	exists, err := h.users.Exists(ctx, userID)
	if err != nil {
		return stats.PeriodStats{}, err
	}
	if !exists {
		return stats.PeriodStats{}, shared.ErrUserNotFound
	}

	agg, err := h.repo.Load(ctx, userID)
	if err != nil {
		return stats.PeriodStats{}, err
	}
	return stats.ComputePeriodStats(agg, frame, time.Now()), nil
}
