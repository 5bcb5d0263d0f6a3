// Package jobs contains the worker's scheduled jobs: leaderboard rebuilds,
// snapshot refreshes for recently active players and history pruning.
package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/leaderboard"
	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/shared"
)

// RebuildLeaderboardJob materializes the leaderboard from the aggregates and
// stores it in the cache so API reads never hit the ranking query.
type RebuildLeaderboardJob struct {
	repo      leaderboard.Repository
	cache     leaderboard.Cache
	publisher shared.EventPublisher
	limit     int
	logger    *slog.Logger
}

// NewRebuildLeaderboardJob creates the job. cache and publisher may be nil.
func NewRebuildLeaderboardJob(repo leaderboard.Repository, cache leaderboard.Cache,
	publisher shared.EventPublisher, limit int, logger *slog.Logger) *RebuildLeaderboardJob {
	if logger == nil {
		logger = slog.Default()
	}
	if limit <= 0 {
		limit = 100
	}
	if publisher == nil {
		publisher = shared.NoopPublisher{}
	}
	return &RebuildLeaderboardJob{
		repo:      repo,
		cache:     cache,
		publisher: publisher,
		limit:     limit,
		logger:    logger,
	}
}

// Name implements scheduler.Job.
func (j *RebuildLeaderboardJob) Name() string { return "rebuild_leaderboard" }

// Run implements scheduler.Job.
func (j *RebuildLeaderboardJob) Run(ctx context.Context) error {
	board, err := j.repo.Build(ctx, j.limit)
	if err != nil {
		return fmt.Errorf("build leaderboard: %w", err)
	}

	if j.cache != nil {
		if err := j.cache.Put(ctx, board); err != nil {
			return fmt.Errorf("cache leaderboard: %w", err)
		}
	}

	event := leaderboardRebuiltEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventLeaderboardRebuilt, "leaderboard"),
		Entries:   len(board.Entries),
	}
	if err := j.publisher.Publish(ctx, event); err != nil {
		j.logger.Warn("leaderboard event publish failed", slog.Any("error", err))
	}

	j.logger.Debug("leaderboard rebuilt", slog.Int("entries", len(board.Entries)))
	return nil
}

type leaderboardRebuiltEvent struct {
	shared.BaseEvent
	Entries int `json:"entries"`
}

func (e leaderboardRebuiltEvent) Payload() map[string]interface{} {
	return map[string]interface{}{"entries": e.Entries}
}
