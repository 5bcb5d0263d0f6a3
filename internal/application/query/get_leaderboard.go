package query

import (
	"context"
	"log/slog"

	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/leaderboard"
	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/shared"
)

// GetLeaderboardHandler serves the ranked board, cache first.
type GetLeaderboardHandler struct {
	repo   leaderboard.Repository
	cache  leaderboard.Cache // nil when the cache is disabled
	limit  int
	logger *slog.Logger
}

// NewGetLeaderboardHandler creates the handler. cache may be nil.
func NewGetLeaderboardHandler(repo leaderboard.Repository, cache leaderboard.Cache,
	limit int, logger *slog.Logger) *GetLeaderboardHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if limit <= 0 {
		limit = 100
	}
	return &GetLeaderboardHandler{repo: repo, cache: cache, limit: limit, logger: logger}
}

// Handle returns the top n entries. The rebuild job keeps the cache warm;
// a cold cache falls through to a direct build.
func (h *GetLeaderboardHandler) Handle(ctx context.Context, n int) ([]leaderboard.Entry, error) {
	board, err := h.board(ctx)
	if err != nil {
		return nil, err
	}
	if len(board.Entries) == 0 {
		return nil, shared.ErrLeaderboardEmpty
	}
	return board.Top(n), nil
}

// Position returns the entry for one user, ok=false when the user is unranked.
func (h *GetLeaderboardHandler) Position(ctx context.Context, userID string) (leaderboard.Entry, bool, error) {
	board, err := h.board(ctx)
	if err != nil {
		return leaderboard.Entry{}, false, err
	}
	entry, ok := board.Find(userID)
	return entry, ok, nil
}

func (h *GetLeaderboardHandler) board(ctx context.Context) (*leaderboard.Board, error) {
	if h.cache != nil {
		board, ok, err := h.cache.Get(ctx)
		if err != nil {
			h.logger.Warn("leaderboard cache read failed", slog.Any("error", err))
		} else if ok {
			return board, nil
		}
	}

	board, err := h.repo.Build(ctx, h.limit)
	if err != nil {
		return nil, err
	}
	if h.cache != nil {
		if err := h.cache.Put(ctx, board); err != nil {
			h.logger.Warn("leaderboard cache write failed", slog.Any("error", err))
		}
	}
	return board, nil
}
