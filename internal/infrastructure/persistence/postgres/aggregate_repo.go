package postgres

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/shared"
	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/stats"
)

// AggregateRepository implements stats.Repository on PostgreSQL.
//
// The whole aggregate lives in one user_stats row (category counters and the
// bounded session window as JSONB), so Save is a single upsert and readers
// never observe a partial write. The append-only game_sessions table keeps
// the full history beyond the bounded window for CSV export and pruning.
type AggregateRepository struct {
	conn   *Connection
	logger *slog.Logger
}

// NewAggregateRepository creates the repository.
func NewAggregateRepository(conn *Connection, logger *slog.Logger) *AggregateRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &AggregateRepository{conn: conn, logger: logger}
}

const loadAggregateSQL = `
SELECT user_id, level, games_played, cumulative_score, best_score, best_series,
       total_duration_ms, total_exercises, categories, recent_sessions, updated_at
FROM user_stats
WHERE user_id = $1`

// Load implements stats.Repository. A user without a stored row gets a fresh
// empty aggregate. A row that fails to decode or violates the aggregate
// invariants is treated as corrupt: it is logged and replaced by an empty
// aggregate so the user is not wedged forever; the next Save overwrites it.
func (r *AggregateRepository) Load(ctx context.Context, userID string) (*stats.UserAggregate, error) {
	row := r.conn.QueryRow(ctx, loadAggregateSQL, userID)

	var (
		agg         stats.UserAggregate
		categoriesB []byte
		sessionsB   []byte
	)
	err := row.Scan(&agg.UserID, &agg.Level, &agg.GamesPlayed, &agg.CumulativeScore,
		&agg.BestScore, &agg.BestSeries, &agg.TotalDurationMS, &agg.TotalExercises,
		&categoriesB, &sessionsB, &agg.UpdatedAt)
	if IsNoRows(err) {
		return stats.NewUserAggregate(userID), nil
	}
	if err != nil {
		return nil, shared.WrapError("stats", "Load", shared.ErrPersistence, "query user_stats", err)
	}

	if err := json.Unmarshal(categoriesB, &agg.Categories); err != nil {
		return r.recoverMalformed(userID, err), nil
	}
	if err := json.Unmarshal(sessionsB, &agg.RecentSessions); err != nil {
		return r.recoverMalformed(userID, err), nil
	}

	// Derived values are not stored; the cumulative counters are canonical.
	if agg.GamesPlayed > 0 {
		agg.AverageScore = float64(agg.CumulativeScore) / float64(agg.GamesPlayed)
	}
	if agg.TotalExercises > 0 {
		agg.AverageResponseTime = float64(agg.TotalDurationMS) / float64(agg.TotalExercises)
	}

	if err := agg.Validate(); err != nil {
		return r.recoverMalformed(userID, err), nil
	}
	return &agg, nil
}

func (r *AggregateRepository) recoverMalformed(userID string, cause error) *stats.UserAggregate {
	r.logger.Error("malformed aggregate row, starting fresh",
		slog.String("user_id", userID),
		slog.Any("error", shared.WrapError("stats", "Load", shared.ErrCorruptData, "decode user_stats", cause)))
	return stats.NewUserAggregate(userID)
}

const upsertAggregateSQL = `
INSERT INTO user_stats (
    user_id, level, games_played, cumulative_score, best_score, best_series,
    total_duration_ms, total_exercises, total_correct, total_attempts,
    categories, recent_sessions, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (user_id) DO UPDATE SET
    level             = EXCLUDED.level,
    games_played      = EXCLUDED.games_played,
    cumulative_score  = EXCLUDED.cumulative_score,
    best_score        = EXCLUDED.best_score,
    best_series       = EXCLUDED.best_series,
    total_duration_ms = EXCLUDED.total_duration_ms,
    total_exercises   = EXCLUDED.total_exercises,
    total_correct     = EXCLUDED.total_correct,
    total_attempts    = EXCLUDED.total_attempts,
    categories        = EXCLUDED.categories,
    recent_sessions   = EXCLUDED.recent_sessions,
    updated_at        = EXCLUDED.updated_at`

const insertSessionSQL = `
INSERT INTO game_sessions (
    id, user_id, score, level_reached, correct_count, incorrect_count,
    best_series, duration_ms, categories, played_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id) DO NOTHING`

// Save implements stats.Repository. The aggregate row and the archive append
// for the newest session commit in one transaction.
func (r *AggregateRepository) Save(ctx context.Context, agg *stats.UserAggregate) error {
	categoriesB, err := json.Marshal(agg.Categories)
	if err != nil {
		return shared.WrapError("stats", "Save", shared.ErrPersistence, "encode categories", err)
	}
	sessionsB, err := json.Marshal(agg.RecentSessions)
	if err != nil {
		return shared.WrapError("stats", "Save", shared.ErrPersistence, "encode sessions", err)
	}

	var totalCorrect, totalAttempts int
	for _, cs := range agg.Categories {
		totalCorrect += cs.Correct
		totalAttempts += cs.Total
	}

	err = r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, upsertAggregateSQL,
			agg.UserID, agg.Level, agg.GamesPlayed, agg.CumulativeScore,
			agg.BestScore, agg.BestSeries, agg.TotalDurationMS, agg.TotalExercises,
			totalCorrect, totalAttempts, categoriesB, sessionsB, agg.UpdatedAt,
		); err != nil {
			return err
		}

		if last := agg.LastSession(); last != nil {
			catB, err := json.Marshal(last.Categories)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, insertSessionSQL,
				last.ID, agg.UserID, last.Score, last.LevelReached,
				last.CorrectCount, last.IncorrectCount, last.BestSeries,
				last.DurationMS, catB, last.PlayedAt,
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return shared.WrapError("stats", "Save", shared.ErrPersistence, "upsert user_stats", err)
	}
	return nil
}

// Delete implements stats.Repository.
func (r *AggregateRepository) Delete(ctx context.Context, userID string) error {
	_, err := r.conn.Exec(ctx, `DELETE FROM user_stats WHERE user_id = $1`, userID)
	if err != nil {
		return shared.WrapError("stats", "Delete", shared.ErrPersistence, "delete user_stats", err)
	}
	return nil
}

// ActiveSince implements stats.Repository.
func (r *AggregateRepository) ActiveSince(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := r.conn.Query(ctx,
		`SELECT user_id FROM user_stats WHERE updated_at > $1`, cutoff)
	if err != nil {
		return nil, shared.WrapError("stats", "ActiveSince", shared.ErrPersistence, "query user_stats", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const historySQL = `
SELECT id, user_id, score, level_reached, correct_count, incorrect_count,
       best_series, duration_ms, categories, played_at
FROM game_sessions
WHERE user_id = $1
ORDER BY played_at DESC
LIMIT $2`

// History returns the archived sessions for the user, newest first. Unlike
// the aggregate's bounded window this reads the full archive table.
func (r *AggregateRepository) History(ctx context.Context, userID string, limit int) ([]stats.GameSession, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.conn.Query(ctx, historySQL, userID, limit)
	if err != nil {
		return nil, shared.WrapError("stats", "History", shared.ErrPersistence, "query game_sessions", err)
	}
	defer rows.Close()

	var sessions []stats.GameSession
	for rows.Next() {
		var s stats.GameSession
		var catB []byte
		if err := rows.Scan(&s.ID, &s.UserID, &s.Score, &s.LevelReached,
			&s.CorrectCount, &s.IncorrectCount, &s.BestSeries,
			&s.DurationMS, &catB, &s.PlayedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(catB, &s.Categories); err != nil {
			r.logger.Warn("skipping session with undecodable categories",
				slog.String("session_id", s.ID))
			continue
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// PruneSessions deletes archived sessions older than the cutoff and returns
// the number removed. The bounded windows inside user_stats are untouched.
func (r *AggregateRepository) PruneSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.conn.Exec(ctx,
		`DELETE FROM game_sessions WHERE played_at < $1`, cutoff)
	if err != nil {
		return 0, shared.WrapError("stats", "Prune", shared.ErrPersistence, "delete game_sessions", err)
	}
	return tag.RowsAffected(), nil
}
