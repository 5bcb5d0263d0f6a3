package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/leaderboard"
	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/shared"
)

type fakeBoardRepo struct {
	board  *leaderboard.Board
	builds int
}

func (r *fakeBoardRepo) Build(ctx context.Context, limit int) (*leaderboard.Board, error) {
	r.builds++
	return r.board, nil
}

type fakeBoardCache struct {
	board *leaderboard.Board
}

func (c *fakeBoardCache) Put(ctx context.Context, board *leaderboard.Board) error {
	c.board = board
	return nil
}

func (c *fakeBoardCache) Get(ctx context.Context) (*leaderboard.Board, bool, error) {
	if c.board == nil {
		return nil, false, nil
	}
	return c.board, true, nil
}

func testBoard() *leaderboard.Board {
	entries := []leaderboard.Entry{
		{UserID: "u2", Username: "beta", MaxLevel: 3, TotalScore: 100},
		{UserID: "u1", Username: "alpha", MaxLevel: 5, TotalScore: 90},
		{UserID: "u3", Username: "gamma", MaxLevel: 3, TotalScore: 200},
	}
	leaderboard.Rank(entries)
	return &leaderboard.Board{Entries: entries, BuiltAt: time.Now()}
}

func TestGetLeaderboard_RanksAndTops(t *testing.T) {
	repo := &fakeBoardRepo{board: testBoard()}
	h := NewGetLeaderboardHandler(repo, nil, 100, nil)

	top, err := h.Handle(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "alpha", top[0].Username, "highest level wins")
	assert.Equal(t, "gamma", top[1].Username, "same level resolves on score")
	assert.Equal(t, 1, top[0].Rank)
}

func TestGetLeaderboard_CacheAvoidsRebuild(t *testing.T) {
	repo := &fakeBoardRepo{board: testBoard()}
	cache := &fakeBoardCache{}
	h := NewGetLeaderboardHandler(repo, cache, 100, nil)

	ctx := context.Background()
	_, err := h.Handle(ctx, 3)
	require.NoError(t, err)
	_, err = h.Handle(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.builds, "second read must come from the cache")
}

func TestGetLeaderboard_Empty(t *testing.T) {
	repo := &fakeBoardRepo{board: &leaderboard.Board{BuiltAt: time.Now()}}
	h := NewGetLeaderboardHandler(repo, nil, 100, nil)

	_, err := h.Handle(context.Background(), 10)
	assert.ErrorIs(t, err, shared.ErrLeaderboardEmpty)
}

func TestGetLeaderboard_Position(t *testing.T) {
	repo := &fakeBoardRepo{board: testBoard()}
	h := NewGetLeaderboardHandler(repo, nil, 100, nil)

	entry, ok, err := h.Position(context.Background(), "u3")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, entry.Rank)

	_, ok, err = h.Position(context.Background(), "nobody")
	require.NoError(t, err)
	assert.False(t, ok)
}
