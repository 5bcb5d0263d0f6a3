// Package eventhandler contains bus subscribers that react to domain events.
package eventhandler

import (
	"context"
	"log/slog"
	"time"

	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/shared"
	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/stats"
)

// SnapshotRefresher re-publishes a user's snapshot the moment a session is
// ingested. Dashboards see the new numbers immediately instead of waiting
// for the next sync pass.
type SnapshotRefresher struct {
	repo   stats.Repository
	store  stats.SnapshotStore
	logger *slog.Logger
}

// NewSnapshotRefresher creates the handler.
func NewSnapshotRefresher(repo stats.Repository, store stats.SnapshotStore, logger *slog.Logger) *SnapshotRefresher {
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotRefresher{repo: repo, store: store, logger: logger}
}

// EventTypes implements shared.EventHandler.
func (h *SnapshotRefresher) EventTypes() []shared.EventType {
	return []shared.EventType{shared.EventSessionIngested}
}

// Handle implements shared.EventHandler.
func (h *SnapshotRefresher) Handle(ctx context.Context, event shared.Event) error {
	userID := event.AggregateID()
	agg, err := h.repo.Load(ctx, userID)
	if err != nil {
		return err
	}
	if err := h.store.PutSnapshot(ctx, userID, stats.BuildSnapshot(agg, time.Now())); err != nil {
		h.logger.Warn("snapshot refresh failed",
			slog.String("user_id", userID), slog.Any("error", err))
	}
	return nil
}
