package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// Migration is one schema change with its rollback.
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

const migration001Up = `
CREATE TABLE IF NOT EXISTS users (
    id            TEXT PRIMARY KEY,
    username      TEXT NOT NULL UNIQUE,
    email         TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
    last_login_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS user_stats (
    user_id               TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
    level                 INTEGER NOT NULL DEFAULT 0,
    games_played          INTEGER NOT NULL DEFAULT 0,
    cumulative_score      BIGINT NOT NULL DEFAULT 0,
    best_score            INTEGER NOT NULL DEFAULT 0,
    best_series           INTEGER NOT NULL DEFAULT 0,
    total_duration_ms     BIGINT NOT NULL DEFAULT 0,
    total_exercises       INTEGER NOT NULL DEFAULT 0,
    total_correct         INTEGER NOT NULL DEFAULT 0,
    total_attempts        INTEGER NOT NULL DEFAULT 0,
    categories            JSONB NOT NULL DEFAULT '{}'::jsonb,
    recent_sessions       JSONB NOT NULL DEFAULT '[]'::jsonb,
    updated_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_user_stats_updated_at ON user_stats (updated_at);
`

const migration001Down = `
DROP TABLE IF EXISTS user_stats;
DROP TABLE IF EXISTS users;
`

const migration002Up = `
CREATE TABLE IF NOT EXISTS game_sessions (
    id              TEXT PRIMARY KEY,
    user_id         TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    score           INTEGER NOT NULL,
    level_reached   INTEGER NOT NULL,
    correct_count   INTEGER NOT NULL,
    incorrect_count INTEGER NOT NULL,
    best_series     INTEGER NOT NULL DEFAULT 0,
    duration_ms     BIGINT NOT NULL,
    categories      JSONB NOT NULL DEFAULT '{}'::jsonb,
    played_at       TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_game_sessions_user_played
    ON game_sessions (user_id, played_at DESC);
CREATE INDEX IF NOT EXISTS idx_game_sessions_played_at
    ON game_sessions (played_at);
`

const migration002Down = `
DROP TABLE IF EXISTS game_sessions;
`

// GetMigrations returns all migrations in version order.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "users_and_user_stats", Up: migration001Up, Down: migration001Down},
		{Version: 2, Name: "game_sessions_archive", Up: migration002Up, Down: migration002Down},
	}
}

// Migrator applies schema migrations tracked in schema_migrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
	logger     *slog.Logger
}

// NewMigrator creates a migrator with the built-in migrations.
func NewMigrator(conn *Connection, logger *slog.Logger) *Migrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Migrator{conn: conn, migrations: GetMigrations(), logger: logger}
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	_, err := m.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	return err
}

func (m *Migrator) applied(ctx context.Context) (map[int]time.Time, error) {
	rows, err := m.conn.Query(ctx, `SELECT version, applied_at FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int]time.Time)
	for rows.Next() {
		var version int
		var at time.Time
		if err := rows.Scan(&version, &at); err != nil {
			return nil, err
		}
		out[version] = at
	}
	return out, rows.Err()
}

// Migrate applies every pending migration in order.
func (m *Migrator) Migrate(ctx context.Context) error {
	if err := m.ensureTable(ctx); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}
	done, err := m.applied(ctx)
	if err != nil {
		return fmt.Errorf("read applied migrations: %w", err)
	}

	pending := make([]Migration, 0, len(m.migrations))
	for _, mig := range m.migrations {
		if _, ok := done[mig.Version]; !ok {
			pending = append(pending, mig)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].Version < pending[j].Version })

	for _, mig := range pending {
		start := time.Now()
		if _, err := m.conn.Exec(ctx, mig.Up); err != nil {
			return fmt.Errorf("migration %d (%s): %w", mig.Version, mig.Name, err)
		}
		if _, err := m.conn.Exec(ctx,
			`INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`,
			mig.Version, mig.Name); err != nil {
			return fmt.Errorf("record migration %d: %w", mig.Version, err)
		}
		m.logger.Info("applied migration",
			slog.Int("version", mig.Version),
			slog.String("name", mig.Name),
			slog.Duration("took", time.Since(start)))
	}
	return nil
}

// Rollback reverts the most recent applied migration.
func (m *Migrator) Rollback(ctx context.Context) error {
	if err := m.ensureTable(ctx); err != nil {
		return err
	}
	done, err := m.applied(ctx)
	if err != nil {
		return err
	}
	if len(done) == 0 {
		return nil
	}

	latest := 0
	for v := range done {
		if v > latest {
			latest = v
		}
	}
	for _, mig := range m.migrations {
		if mig.Version != latest {
			continue
		}
		if _, err := m.conn.Exec(ctx, mig.Down); err != nil {
			return fmt.Errorf("rollback %d (%s): %w", mig.Version, mig.Name, err)
		}
		if _, err := m.conn.Exec(ctx,
			`DELETE FROM schema_migrations WHERE version = $1`, mig.Version); err != nil {
			return err
		}
		m.logger.Info("rolled back migration", slog.Int("version", mig.Version))
		return nil
	}
	return fmt.Errorf("unknown migration version %d", latest)
}
