package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// SessionPruner deletes archived sessions older than a cutoff.
type SessionPruner interface {
	PruneSessions(ctx context.Context, cutoff time.Time) (int64, error)
}

// PruneSessionsJob trims the game_sessions archive to the retention window.
// The bounded per-user windows inside the aggregates are not touched.
type PruneSessionsJob struct {
	pruner    SessionPruner
	retention time.Duration
	logger    *slog.Logger
}

// NewPruneSessionsJob creates the job.
func NewPruneSessionsJob(pruner SessionPruner, retention time.Duration, logger *slog.Logger) *PruneSessionsJob {
	if logger == nil {
		logger = slog.Default()
	}
	if retention <= 0 {
		retention = 90 * 24 * time.Hour
	}
	return &PruneSessionsJob{pruner: pruner, retention: retention, logger: logger}
}

// Name implements scheduler.Job.
func (j *PruneSessionsJob) Name() string { return "prune_sessions" }

// Run implements scheduler.Job.
func (j *PruneSessionsJob) Run(ctx context.Context) error {
	cutoff := time.Now().Add(-j.retention)
	removed, err := j.pruner.PruneSessions(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("prune sessions: %w", err)
	}
	if removed > 0 {
		j.logger.Info("pruned session archive",
			slog.Int64("removed", removed),
			slog.Time("cutoff", cutoff))
	}
	return nil
}
