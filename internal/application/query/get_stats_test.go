package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/shared"
	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/stats"
	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/infrastructure/persistence/memory"
)

type fakeSnapshotStore struct {
	snapshots map[string]stats.Snapshot
	puts      int
	gets      int
}

func newFakeSnapshotStore() *fakeSnapshotStore {
	return &fakeSnapshotStore{snapshots: make(map[string]stats.Snapshot)}
}

func (s *fakeSnapshotStore) PutSnapshot(ctx context.Context, userID string, snap stats.Snapshot) error {
	s.puts++
	s.snapshots[userID] = snap
	return nil
}

func (s *fakeSnapshotStore) GetSnapshot(ctx context.Context, userID string) (stats.Snapshot, bool, error) {
	s.gets++
	snap, ok := s.snapshots[userID]
	return snap, ok, nil
}

func (s *fakeSnapshotStore) InvalidateSnapshot(ctx context.Context, userID string) error {
	delete(s.snapshots, userID)
	return nil
}

func TestGetStats_UnknownUser(t *testing.T) {
	users := memory.NewUserRepository()
	repo := memory.NewAggregateRepository()

	h := NewGetStatsHandler(users, repo, nil, nil)
	_, err := h.Handle(context.Background(), "ghost")
	assert.ErrorIs(t, err, shared.ErrUserNotFound)
}

func TestGetStats_KnownUserNeverPlayed(t *testing.T) {
	users := memory.NewUserRepository()
	repo := memory.NewAggregateRepository()
	seedUser(t, users, "u1")

	h := NewGetStatsHandler(users, repo, nil, nil)
	snap, err := h.Handle(context.Background(), "u1")
	require.NoError(t, err)

	assert.Equal(t, "u1", snap.UserID)
	assert.Equal(t, 0, snap.GamesPlayed)
	assert.Equal(t, 0.0, snap.AverageScore)
	assert.Equal(t, stats.BestCategoryNone, snap.Metrics.BestCategory)
	assert.Nil(t, snap.LastGame)
}

func TestGetStats_CacheHitSkipsRepository(t *testing.T) {
	users := memory.NewUserRepository()
	repo := memory.NewAggregateRepository()
	store := newFakeSnapshotStore()
	seedUser(t, users, "u1")

	cached := stats.Snapshot{UserID: "u1", GamesPlayed: 7, GeneratedAt: time.Now()}
	require.NoError(t, store.PutSnapshot(context.Background(), "u1", cached))

	h := NewGetStatsHandler(users, repo, store, nil)
	snap, err := h.Handle(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 7, snap.GamesPlayed, "cached snapshot must be served as-is")
}

func TestGetStats_CacheMissWarmsCache(t *testing.T) {
	users := memory.NewUserRepository()
	repo := memory.NewAggregateRepository()
	store := newFakeSnapshotStore()
	seedUser(t, users, "u1")
	seedSessions(t, repo, "u1", 33)

	h := NewGetStatsHandler(users, repo, store, nil)
	snap, err := h.Handle(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.GamesPlayed)
	assert.Equal(t, 33, snap.BestScore)
	assert.Equal(t, 1, store.puts, "miss must write the built snapshot back")
}

func TestGetStats_Period(t *testing.T) {
	users := memory.NewUserRepository()
	repo := memory.NewAggregateRepository()
	seedUser(t, users, "u1")

	ctx := context.Background()
	agg, err := repo.Load(ctx, "u1")
	require.NoError(t, err)
	agg.ApplySession(stats.GameSession{
		UserID: "u1", Score: 50, CorrectCount: 9, IncorrectCount: 1,
		PlayedAt: time.Now(),
	})
	agg.ApplySession(stats.GameSession{
		UserID: "u1", Score: 30, CorrectCount: 5, IncorrectCount: 5,
		PlayedAt: time.Now().AddDate(0, 0, -10),
	})
	require.NoError(t, repo.Save(ctx, agg))

	h := NewGetStatsHandler(users, repo, nil, nil)

	day, err := h.Period(ctx, "u1", stats.TimeFrameDay)
	require.NoError(t, err)
	assert.Equal(t, 1, day.GamesPlayed, "only today's session counts in the day frame")

	all, err := h.Period(ctx, "u1", stats.TimeFrameAll)
	require.NoError(t, err)
	assert.Equal(t, 2, all.GamesPlayed)

	_, err = h.Period(ctx, "ghost", stats.TimeFrameAll)
	assert.ErrorIs(t, err, shared.ErrUserNotFound)
}

func TestChatContext_Bounded(t *testing.T) {
	repo := memory.NewAggregateRepository()
	ctx := context.Background()

	agg, err := repo.Load(ctx, "u1")
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		agg.ApplySession(stats.GameSession{
			UserID: "u1", Score: 10 + i, LevelReached: 1,
			CorrectCount: 4, IncorrectCount: 1,
			Categories: map[stats.Category]stats.CategoryResult{
				stats.CategoryAlgebra: {Correct: 4, Total: 5},
			},
			PlayedAt: time.Now(),
		})
	}
	require.NoError(t, repo.Save(ctx, agg))

	b := NewChatContextBuilder(repo, 5)
	block, err := b.Build(ctx, "u1", "dana")
	require.NoError(t, err)

	assert.Contains(t, block, "Player: dana")
	assert.Contains(t, block, "Games played: 20")
	assert.Contains(t, block, "Last 5 sessions")
	assert.Contains(t, block, "algebra: 80.0%")
}

func TestChatContext_NoGames(t *testing.T) {
	repo := memory.NewAggregateRepository()

	b := NewChatContextBuilder(repo, 5)
	block, err := b.Build(context.Background(), "u1", "dana")
	require.NoError(t, err)
	assert.Contains(t, block, "No games recorded yet")
}
