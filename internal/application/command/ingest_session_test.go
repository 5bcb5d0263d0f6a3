package command

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/account"
	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/shared"
	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/stats"
	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/infrastructure/persistence/memory"
)

func newTestUser(t *testing.T, users account.Repository, id string) {
	t.Helper()
	user, err := account.NewUser(id, "player-"+id, id+"@example.com", "secret-password")
	require.NoError(t, err)
	require.NoError(t, users.Create(context.Background(), user))
}

func testSession(userID string, score int) stats.GameSession {
	return stats.GameSession{
		UserID:       userID,
		Score:        score,
		LevelReached: 3,
		DurationMS:   60_000,
		Categories: map[stats.Category]stats.CategoryResult{
			stats.CategoryAddition: {Correct: 8, Total: 10},
		},
		PlayedAt: time.Now(),
	}
}

func TestIngestSession_UpdatesAggregate(t *testing.T) {
	users := memory.NewUserRepository()
	repo := memory.NewAggregateRepository()
	newTestUser(t, users, "u1")

	h := NewIngestSessionHandler(users, repo, nil, nil)

	res, err := h.Handle(context.Background(), IngestSessionCommand{Session: testSession("u1", 42)})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Aggregate.GamesPlayed)
	assert.Equal(t, 42, res.Aggregate.BestScore)
	assert.True(t, res.NewBest)

	res, err = h.Handle(context.Background(), IngestSessionCommand{Session: testSession("u1", 10)})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Aggregate.GamesPlayed)
	assert.Equal(t, 42, res.Aggregate.BestScore, "lower score must not touch the best")
	assert.False(t, res.NewBest)
	assert.InDelta(t, 26.0, res.Aggregate.AverageScore, 1e-9)
}

func TestIngestSession_UnknownUserFailsLoudly(t *testing.T) {
	users := memory.NewUserRepository()
	repo := memory.NewAggregateRepository()

	h := NewIngestSessionHandler(users, repo, nil, nil)

	_, err := h.Handle(context.Background(), IngestSessionCommand{Session: testSession("ghost", 10)})
	assert.ErrorIs(t, err, shared.ErrUserNotFound)

	agg, loadErr := repo.Load(context.Background(), "ghost")
	require.NoError(t, loadErr)
	assert.False(t, agg.HasPlayed(), "no aggregate may be created for an unknown user")
}

func TestIngestSession_InvalidSessionRejected(t *testing.T) {
	users := memory.NewUserRepository()
	repo := memory.NewAggregateRepository()
	newTestUser(t, users, "u1")

	h := NewIngestSessionHandler(users, repo, nil, nil)

	bad := testSession("u1", -5)
	_, err := h.Handle(context.Background(), IngestSessionCommand{Session: bad})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestIngestSession_ConcurrentSameUser(t *testing.T) {
	users := memory.NewUserRepository()
	repo := memory.NewAggregateRepository()
	newTestUser(t, users, "u1")

	h := NewIngestSessionHandler(users, repo, nil, nil)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := testSession("u1", i)
			s.ID = fmt.Sprintf("s-%03d", i)
			_, err := h.Handle(context.Background(), IngestSessionCommand{Session: s})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	agg, err := repo.Load(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, n, agg.GamesPlayed, "every session must be counted exactly once")
	assert.Equal(t, int64(n*(n-1)/2), agg.CumulativeScore)
}

func TestIngestSession_ConcurrentDifferentUsers(t *testing.T) {
	users := memory.NewUserRepository()
	repo := memory.NewAggregateRepository()

	const usersCount = 10
	ids := make([]string, usersCount)
	for i := range ids {
		ids[i] = fmt.Sprintf("u%d", i)
		newTestUser(t, users, ids[i])
	}

	h := NewIngestSessionHandler(users, repo, nil, nil)

	var wg sync.WaitGroup
	for _, id := range ids {
		for j := 0; j < 5; j++ {
			wg.Add(1)
			go func(id string, j int) {
				defer wg.Done()
				s := testSession(id, 10+j)
				s.ID = fmt.Sprintf("%s-s%d", id, j)
				_, err := h.Handle(context.Background(), IngestSessionCommand{Session: s})
				assert.NoError(t, err)
			}(id, j)
		}
	}
	wg.Wait()

	for _, id := range ids {
		agg, err := repo.Load(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, 5, agg.GamesPlayed, "user %s", id)
	}
}

type failingRepo struct {
	*memory.AggregateRepository
	failSave bool
}

func (r *failingRepo) Save(ctx context.Context, agg *stats.UserAggregate) error {
	if r.failSave {
		return shared.WrapError("stats", "Save", shared.ErrPersistence, "disk on fire", errors.New("io error"))
	}
	return r.AggregateRepository.Save(ctx, agg)
}

func TestIngestSession_SaveFailureLeavesNoPartialState(t *testing.T) {
	users := memory.NewUserRepository()
	repo := &failingRepo{AggregateRepository: memory.NewAggregateRepository()}
	newTestUser(t, users, "u1")

	h := NewIngestSessionHandler(users, repo, nil, nil)

	_, err := h.Handle(context.Background(), IngestSessionCommand{Session: testSession("u1", 30)})
	require.NoError(t, err)

	repo.failSave = true
	_, err = h.Handle(context.Background(), IngestSessionCommand{Session: testSession("u1", 99)})
	require.ErrorIs(t, err, shared.ErrPersistence)

	agg, loadErr := repo.Load(context.Background(), "u1")
	require.NoError(t, loadErr)
	assert.Equal(t, 1, agg.GamesPlayed, "failed save must not leak a half-applied session")
	assert.Equal(t, 30, agg.BestScore)
}

func TestIngestSession_ClampedSessionStillIngested(t *testing.T) {
	users := memory.NewUserRepository()
	repo := memory.NewAggregateRepository()
	newTestUser(t, users, "u1")

	h := NewIngestSessionHandler(users, repo, nil, nil)

	s := testSession("u1", 10)
	s.Categories = map[stats.Category]stats.CategoryResult{
		stats.CategoryDivision: {Correct: 12, Total: 10},
	}
	res, err := h.Handle(context.Background(), IngestSessionCommand{Session: s})
	require.NoError(t, err)
	assert.Equal(t, 10, res.Aggregate.Categories[stats.CategoryDivision].Correct)
	assert.Equal(t, 10, res.Aggregate.Categories[stats.CategoryDivision].Total)
}
