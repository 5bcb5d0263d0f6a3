package leaderboard

import (
	"context"
)

// Repository builds and caches leaderboards.
type Repository interface {
	// Build materializes a fresh board from the aggregates.
	Build(ctx context.Context, limit int) (*Board, error)
}

// Cache stores a built board for cheap reads between rebuilds.
type Cache interface {
	// Put stores the board with the cache's TTL.
	Put(ctx context.Context, board *Board) error

	// Get returns the cached board, ok=false on miss or expiry.
	Get(ctx context.Context) (*Board, bool, error)
}
