package stats

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Implementations live in infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository stores user aggregates.
type Repository interface {
	// Load returns the aggregate for the user. A user with no stored
	// aggregate gets a fresh empty one; Load never invents users, that
	// distinction belongs to the account repository.
	//
	// A malformed stored row is logged and replaced by an empty aggregate
	// so one corrupt row cannot wedge ingestion for the user forever.
	Load(ctx context.Context, userID string) (*UserAggregate, error)

	// Save persists the aggregate atomically. Readers see either the
	// previous state or the new state, never a partial write.
	Save(ctx context.Context, aggregate *UserAggregate) error

	// Delete removes the aggregate for the user.
	Delete(ctx context.Context, userID string) error

	// ActiveSince lists user IDs whose aggregate changed after the cutoff.
	ActiveSince(ctx context.Context, cutoff time.Time) ([]string, error)
}

// SnapshotStore caches the latest published snapshot per user for cheap
// dashboard reads. Implementations: Redis.
type SnapshotStore interface {
	// PutSnapshot stores the snapshot with the store's TTL.
	PutSnapshot(ctx context.Context, userID string, snap Snapshot) error

	// GetSnapshot returns the cached snapshot, ok=false on miss.
	GetSnapshot(ctx context.Context, userID string) (Snapshot, bool, error)

	// InvalidateSnapshot drops the cached snapshot.
	InvalidateSnapshot(ctx context.Context, userID string) error
}

// Snapshot is the published live view of one user's stats: the aggregate
// summary plus derived metrics. This is what the sync loop pushes to the
// cache and the websocket hub on every pass.
type Snapshot struct {
	UserID              string         `json:"userId"`
	Level               int            `json:"level"`
	GamesPlayed         int            `json:"gamesPlayed"`
	AverageScore        float64        `json:"averageScore"`
	BestScore           int            `json:"bestScore"`
	AverageResponseTime float64        `json:"averageResponseTime"`
	Metrics             DerivedMetrics `json:"metrics"`
	LastGame            *GameSession   `json:"lastGame,omitempty"`
	GeneratedAt         time.Time      `json:"generatedAt"`
}

// BuildSnapshot assembles the published view from an aggregate.
func BuildSnapshot(a *UserAggregate, now time.Time) Snapshot {
	return Snapshot{
		UserID:              a.UserID,
		Level:               a.Level,
		GamesPlayed:         a.GamesPlayed,
		AverageScore:        a.AverageScore,
		BestScore:           a.BestScore,
		AverageResponseTime: a.AverageResponseTime,
		Metrics:             ComputeMetrics(a),
		LastGame:            a.LastSession(),
		GeneratedAt:         now,
	}
}
