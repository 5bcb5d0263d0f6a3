package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/stats"
)

// RefreshSnapshotsConfig tunes the refresh job.
type RefreshSnapshotsConfig struct {
	// Window selects users whose aggregate changed this recently.
	Window time.Duration

	// Concurrency is the number of users refreshed in parallel.
	Concurrency int
}

// DefaultRefreshSnapshotsConfig returns sensible defaults.
func DefaultRefreshSnapshotsConfig() RefreshSnapshotsConfig {
	return RefreshSnapshotsConfig{
		Window:      30 * time.Minute,
		Concurrency: 4,
	}
}

// RefreshSnapshotsJob re-publishes snapshots for recently active players.
// Players with a live sync loop get fresher data from the loop itself; this
// job keeps dashboards warm for players who just logged out and covers
// worker-only deployments where no loops run.
type RefreshSnapshotsJob struct {
	repo   stats.Repository
	store  stats.SnapshotStore
	config RefreshSnapshotsConfig
	logger *slog.Logger
}

// NewRefreshSnapshotsJob creates the job.
func NewRefreshSnapshotsJob(repo stats.Repository, store stats.SnapshotStore,
	config RefreshSnapshotsConfig, logger *slog.Logger) *RefreshSnapshotsJob {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Window <= 0 {
		config.Window = 30 * time.Minute
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 4
	}
	return &RefreshSnapshotsJob{repo: repo, store: store, config: config, logger: logger}
}

// Name implements scheduler.Job.
func (j *RefreshSnapshotsJob) Name() string { return "refresh_snapshots" }

// Run implements scheduler.Job.
func (j *RefreshSnapshotsJob) Run(ctx context.Context) error {
	cutoff := time.Now().Add(-j.config.Window)
	userIDs, err := j.repo.ActiveSince(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("list active users: %w", err)
	}
	if len(userIDs) == 0 {
		return nil
	}

	sem := make(chan struct{}, j.config.Concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var failed int

	for _, userID := range userIDs {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(userID string) {
			defer func() {
				<-sem
				wg.Done()
			}()
			if err := j.refreshOne(ctx, userID); err != nil {
				mu.Lock()
				failed++
				mu.Unlock()
				j.logger.Warn("snapshot refresh failed",
					slog.String("user_id", userID), slog.Any("error", err))
			}
		}(userID)
	}
	wg.Wait()

	j.logger.Debug("snapshots refreshed",
		slog.Int("users", len(userIDs)), slog.Int("failed", failed))
	if failed == len(userIDs) {
		return fmt.Errorf("all %d snapshot refreshes failed", failed)
	}
	return nil
}

func (j *RefreshSnapshotsJob) refreshOne(ctx context.Context, userID string) error {
	agg, err := j.repo.Load(ctx, userID)
	if err != nil {
		return err
	}
	return j.store.PutSnapshot(ctx, userID, stats.BuildSnapshot(agg, time.Now()))
}
