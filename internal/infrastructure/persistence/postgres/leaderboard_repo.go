package postgres

import (
	"context"
	"log/slog"
	"time"

	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/leaderboard"
	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/shared"
)

// LeaderboardRepository implements leaderboard.Repository on PostgreSQL.
// Ordering happens SQL-side over the denormalized total_correct and
// total_attempts counters kept in user_stats.
type LeaderboardRepository struct {
	conn   *Connection
	logger *slog.Logger
}

// NewLeaderboardRepository creates the repository.
func NewLeaderboardRepository(conn *Connection, logger *slog.Logger) *LeaderboardRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &LeaderboardRepository{conn: conn, logger: logger}
}

const buildBoardSQL = `
SELECT s.user_id,
       u.username,
       s.level,
       s.cumulative_score,
       s.games_played,
       s.total_correct,
       s.total_attempts,
       s.total_duration_ms,
       s.total_exercises
FROM user_stats s
JOIN users u ON u.id = s.user_id
WHERE s.games_played > 0
ORDER BY s.level DESC, s.cumulative_score DESC
LIMIT $1`

// Build implements leaderboard.Repository.
func (r *LeaderboardRepository) Build(ctx context.Context, limit int) (*leaderboard.Board, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.conn.Query(ctx, buildBoardSQL, limit)
	if err != nil {
		return nil, shared.WrapError("leaderboard", "Build", shared.ErrPersistence, "query user_stats", err)
	}
	defer rows.Close()

	var entries []leaderboard.Entry
	for rows.Next() {
		var (
			e               leaderboard.Entry
			totalCorrect    int
			totalAttempts   int
			totalDurationMS int64
			totalExercises  int
		)
		if err := rows.Scan(&e.UserID, &e.Username, &e.MaxLevel, &e.TotalScore,
			&e.GamesPlayed, &totalCorrect, &totalAttempts,
			&totalDurationMS, &totalExercises); err != nil {
			return nil, err
		}
		if totalAttempts > 0 {
			e.Accuracy = float64(totalCorrect) / float64(totalAttempts) * 100
		}
		if totalExercises > 0 {
			e.AverageResponseTime = float64(totalDurationMS) / float64(totalExercises)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// SQL pre-orders by the primary keys; Rank settles accuracy ties and
	// assigns positions.
	leaderboard.Rank(entries)
	return &leaderboard.Board{Entries: entries, BuiltAt: time.Now()}, nil
}
