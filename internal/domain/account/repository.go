package account

import (
	"context"
)

// Repository stores user accounts.
// Implementations live in infrastructure/persistence.
type Repository interface {
	// Create stores a new user.
	// Returns shared.ErrUserAlreadyExists on username or email conflict.
	Create(ctx context.Context, user *User) error

	// GetByID returns the user with the given ID.
	// Returns shared.ErrUserNotFound when missing.
	GetByID(ctx context.Context, id string) (*User, error)

	// GetByUsername returns the user with the given username.
	// Returns shared.ErrUserNotFound when missing.
	GetByUsername(ctx context.Context, username string) (*User, error)

	// Update persists changed user fields.
	Update(ctx context.Context, user *User) error

	// Exists reports whether a user with the given ID is registered.
	Exists(ctx context.Context, id string) (bool, error)
}
