package postgres

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/account"
	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/shared"
)

// UserRepository implements account.Repository on PostgreSQL.
type UserRepository struct {
	conn   *Connection
	logger *slog.Logger
}

// NewUserRepository creates the repository.
func NewUserRepository(conn *Connection, logger *slog.Logger) *UserRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserRepository{conn: conn, logger: logger}
}

// Create implements account.Repository.
func (r *UserRepository) Create(ctx context.Context, user *account.User) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO users (id, username, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		user.ID, user.Username, user.Email, user.PasswordHash, user.CreatedAt)
	if IsUniqueViolation(err) {
		return shared.ErrUserAlreadyExists
	}
	if err != nil {
		return shared.WrapError("account", "Create", shared.ErrPersistence, "insert user", err)
	}
	return nil
}

const selectUserSQL = `
SELECT id, username, email, password_hash, created_at, last_login_at
FROM users`

func scanUser(row interface{ Scan(...interface{}) error }) (*account.User, error) {
	var u account.User
	var lastLogin sql.NullTime
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash,
		&u.CreatedAt, &lastLogin); err != nil {
		return nil, err
	}
	if lastLogin.Valid {
		u.LastLoginAt = lastLogin.Time
	}
	return &u, nil
}

// GetByID implements account.Repository.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*account.User, error) {
	row := r.conn.QueryRow(ctx, selectUserSQL+` WHERE id = $1`, id)
	user, err := scanUser(row)
	if IsNoRows(err) {
		return nil, shared.ErrUserNotFound
	}
	if err != nil {
		return nil, shared.WrapError("account", "GetByID", shared.ErrPersistence, "query user", err)
	}
	return user, nil
}

// GetByUsername implements account.Repository.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*account.User, error) {
	row := r.conn.QueryRow(ctx, selectUserSQL+` WHERE username = $1`, username)
	user, err := scanUser(row)
	if IsNoRows(err) {
		return nil, shared.ErrUserNotFound
	}
	if err != nil {
		return nil, shared.WrapError("account", "GetByUsername", shared.ErrPersistence, "query user", err)
	}
	return user, nil
}

// Update implements account.Repository.
func (r *UserRepository) Update(ctx context.Context, user *account.User) error {
	tag, err := r.conn.Exec(ctx, `
		UPDATE users
		SET username = $2, email = $3, password_hash = $4, last_login_at = $5
		WHERE id = $1`,
		user.ID, user.Username, user.Email, user.PasswordHash, user.LastLoginAt)
	if err != nil {
		return shared.WrapError("account", "Update", shared.ErrPersistence, "update user", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrUserNotFound
	}
	return nil
}

// Exists implements account.Repository.
func (r *UserRepository) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.conn.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, shared.WrapError("account", "Exists", shared.ErrPersistence, "query user", err)
	}
	return exists, nil
}
