package query

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/account"
	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/shared"
	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/stats"
	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/infrastructure/persistence/memory"
)

func seedUser(t *testing.T, users account.Repository, id string) *account.User {
	t.Helper()
	user, err := account.NewUser(id, "player-"+id, id+"@example.com", "secret-password")
	require.NoError(t, err)
	require.NoError(t, users.Create(context.Background(), user))
	return user
}

func seedSessions(t *testing.T, repo *memory.AggregateRepository, userID string, scores ...int) *stats.UserAggregate {
	t.Helper()
	ctx := context.Background()
	for i, score := range scores {
		agg, err := repo.Load(ctx, userID)
		require.NoError(t, err)
		agg.ApplySession(stats.GameSession{
			ID:             userID + "-s" + string(rune('a'+i)),
			UserID:         userID,
			Score:          score,
			LevelReached:   2,
			CorrectCount:   7,
			IncorrectCount: 3,
			DurationMS:     30_000,
			Categories: map[stats.Category]stats.CategoryResult{
				stats.CategorySubtraction: {Correct: 7, Total: 10},
			},
			PlayedAt: time.Date(2026, 8, 30, 12, i, 0, 0, time.UTC),
		})
		require.NoError(t, repo.Save(ctx, agg))
	}
	agg, err := repo.Load(ctx, userID)
	require.NoError(t, err)
	return agg
}

func TestExportImport_RoundTrip(t *testing.T) {
	ctx := context.Background()
	users := memory.NewUserRepository()
	repo := memory.NewAggregateRepository()
	seedUser(t, users, "u1")
	original := seedSessions(t, repo, "u1", 10, 25, 40)

	exporter := NewExportHandler(users, repo, repo, nil)
	doc, err := exporter.ExportJSON(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", doc.User.ID)
	require.NotNil(t, doc.Aggregate)

	raw, err := json.Marshal(doc)
	require.NoError(t, err)

	// Wipe and restore.
	require.NoError(t, repo.Delete(ctx, "u1"))

	importer := NewImportHandler(users, repo, nil)
	restored, err := importer.Handle(ctx, "u1", raw)
	require.NoError(t, err)

	assert.Equal(t, original.GamesPlayed, restored.GamesPlayed)
	assert.Equal(t, original.CumulativeScore, restored.CumulativeScore)
	assert.Equal(t, original.BestScore, restored.BestScore)
	assert.InDelta(t, original.AverageScore, restored.AverageScore, 1e-9)
	assert.Equal(t, stats.ComputeMetrics(original), stats.ComputeMetrics(restored))
}

func TestImport_ReplaysHistoryWithoutAggregate(t *testing.T) {
	ctx := context.Background()
	users := memory.NewUserRepository()
	repo := memory.NewAggregateRepository()
	seedUser(t, users, "u1")
	seedSessions(t, repo, "u1", 10, 25, 40)

	exporter := NewExportHandler(users, repo, repo, nil)
	doc, err := exporter.ExportJSON(ctx, "u1")
	require.NoError(t, err)
	doc.Aggregate = nil
	raw, err := json.Marshal(doc)
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, "u1"))

	importer := NewImportHandler(users, repo, nil)
	restored, err := importer.Handle(ctx, "u1", raw)
	require.NoError(t, err)

	assert.Equal(t, 3, restored.GamesPlayed)
	assert.Equal(t, int64(75), restored.CumulativeScore)
	assert.Equal(t, 40, restored.BestScore)
	// Replay keeps chronological order: newest session stays newest.
	require.NotNil(t, restored.LastSession())
	assert.Equal(t, 40, restored.LastSession().Score)
}

func TestImport_RejectsForeignDocument(t *testing.T) {
	ctx := context.Background()
	users := memory.NewUserRepository()
	repo := memory.NewAggregateRepository()
	seedUser(t, users, "u1")

	doc := ExportDocument{User: ExportUser{ID: "someone-else"}}
	raw, err := json.Marshal(doc)
	require.NoError(t, err)

	importer := NewImportHandler(users, repo, nil)
	_, err = importer.Handle(ctx, "u1", raw)
	assert.ErrorIs(t, err, shared.ErrInvalidSnapshot)
}

func TestImport_RejectsGarbage(t *testing.T) {
	users := memory.NewUserRepository()
	repo := memory.NewAggregateRepository()
	seedUser(t, users, "u1")

	importer := NewImportHandler(users, repo, nil)
	_, err := importer.Handle(context.Background(), "u1", []byte("{not json"))
	assert.ErrorIs(t, err, shared.ErrInvalidSnapshot)
}

func TestExportCSV(t *testing.T) {
	ctx := context.Background()
	users := memory.NewUserRepository()
	repo := memory.NewAggregateRepository()
	seedUser(t, users, "u1")
	seedSessions(t, repo, "u1", 10, 25)

	exporter := NewExportHandler(users, repo, repo, nil)
	var buf bytes.Buffer
	require.NoError(t, exporter.ExportCSV(ctx, "u1", &buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3, "header plus one row per session")
	assert.True(t, strings.HasPrefix(lines[0], "session_id,played_at,score"))
	// Newest first.
	assert.Contains(t, lines[1], ",25,")
	assert.Contains(t, lines[2], ",10,")
}

func TestExportDocument_DayGrouping(t *testing.T) {
	sessions := []stats.GameSession{
		{ID: "c", Score: 30, PlayedAt: time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)},
		{ID: "b", Score: 20, PlayedAt: time.Date(2026, 8, 29, 23, 0, 0, 0, time.UTC)},
		{ID: "a", Score: 10, PlayedAt: time.Date(2026, 8, 29, 8, 0, 0, 0, time.UTC)},
	}

	days := groupByDay(sessions)
	require.Len(t, days, 2)

	assert.Equal(t, "2026-08-30", days[0].Date)
	assert.Equal(t, 1, days[0].PersonalStats.GamesPlayed)
	require.NotNil(t, days[0].LastGame)
	assert.Equal(t, "c", days[0].LastGame.ID)

	assert.Equal(t, "2026-08-29", days[1].Date)
	assert.Equal(t, 2, days[1].PersonalStats.GamesPlayed)
	assert.InDelta(t, 15.0, days[1].PersonalStats.AverageScore, 1e-9)
	assert.Equal(t, "b", days[1].LastGame.ID, "newest session of the day")
}
