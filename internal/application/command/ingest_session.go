// Package command contains the write-side use cases: session ingestion and
// account registration/authentication.
package command

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/account"
	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/shared"
	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/stats"
	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/infrastructure/observability"
)

// IngestSessionCommand carries one finished game session.
type IngestSessionCommand struct {
	Session stats.GameSession
}

// IngestSessionResult reports the post-ingestion state.
type IngestSessionResult struct {
	Aggregate *stats.UserAggregate
	Metrics   stats.DerivedMetrics
	NewBest   bool
}

// IngestSessionHandler folds sessions into user aggregates.
//
// Updates for the same user are serialized through a per-user mutex: the
// load-apply-save cycle never interleaves for one user, so no session's
// contribution can be lost to a concurrent read-modify-write. Different
// users proceed in parallel.
type IngestSessionHandler struct {
	users     account.Repository
	repo      stats.Repository
	publisher shared.EventPublisher
	logger    *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewIngestSessionHandler creates the handler.
func NewIngestSessionHandler(users account.Repository, repo stats.Repository,
	publisher shared.EventPublisher, logger *slog.Logger) *IngestSessionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if publisher == nil {
		publisher = shared.NoopPublisher{}
	}
	return &IngestSessionHandler{
		users:     users,
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		locks:     make(map[string]*sync.Mutex),
	}
}

func (h *IngestSessionHandler) userLock(userID string) *sync.Mutex {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		h.locks[userID] = l
	}
	return l
}

// Handle validates the session, applies it to the aggregate and persists the
// result atomically. Sessions for unknown users fail loudly with
// shared.ErrUserNotFound; aggregates are never invented for ghost accounts.
func (h *IngestSessionHandler) Handle(ctx context.Context, cmd IngestSessionCommand) (*IngestSessionResult, error) {
	session := cmd.Session

	clamped, err := session.Validate()
	if err != nil {
		observability.SessionsRejected.Inc()
		return nil, err
	}
	if clamped {
		h.logger.Warn("session reported correct > total, clamped",
			slog.String("user_id", session.UserID),
			slog.String("session_id", session.ID))
	}
	if session.ID == "" {
		session.ID = uuid.NewString()
	}

	exists, err := h.users.Exists(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	if !exists {
		observability.SessionsRejected.Inc()
		return nil, shared.ErrUserNotFound
	}

	lock := h.userLock(session.UserID)
	lock.Lock()
	defer lock.Unlock()

	agg, err := h.repo.Load(ctx, session.UserID)
	if err != nil {
		return nil, err
	}

	prevBest := agg.BestScore
	agg.ApplySession(session)

	// Save is not retried: a failed save leaves the previous state intact
	// and the client re-submits; a blind retry could race a newer write
	// from the same user once the lock is released.
	if err := h.repo.Save(ctx, agg); err != nil {
		return nil, err
	}

	observability.SessionsIngested.Inc()
	metrics := stats.ComputeMetrics(agg)
	h.publishEvents(ctx, agg, metrics, session, prevBest)

	return &IngestSessionResult{
		Aggregate: agg,
		Metrics:   metrics,
		NewBest:   agg.BestScore > prevBest,
	}, nil
}

func (h *IngestSessionHandler) publishEvents(ctx context.Context, agg *stats.UserAggregate,
	metrics stats.DerivedMetrics, session stats.GameSession, prevBest int) {
	events := []shared.Event{
		stats.NewSessionIngestedEvent(agg.UserID, session.ID, session.Score, agg.GamesPlayed),
		stats.NewStatsUpdatedEvent(agg, metrics),
	}
	if agg.BestScore > prevBest {
		events = append(events, stats.NewBestScoreBeatenEvent(agg.UserID, prevBest, agg.BestScore))
	}
	for _, event := range events {
		if err := h.publisher.Publish(ctx, event); err != nil {
			h.logger.Warn("event publish failed",
				slog.String("event_type", string(event.EventType())),
				slog.Any("error", err))
		}
	}
}
