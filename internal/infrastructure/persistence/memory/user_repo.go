package memory

import (
	"context"
	"sync"

	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/account"
	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/shared"
)

// UserRepository implements account.Repository in memory.
type UserRepository struct {
	mu     sync.RWMutex
	byID   map[string]*account.User
	byName map[string]string
}

// NewUserRepository creates an empty repository.
func NewUserRepository() *UserRepository {
	return &UserRepository{
		byID:   make(map[string]*account.User),
		byName: make(map[string]string),
	}
}

// Create implements account.Repository.
func (r *UserRepository) Create(ctx context.Context, user *account.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[user.ID]; ok {
		return shared.ErrUserAlreadyExists
	}
	if _, ok := r.byName[user.Username]; ok {
		return shared.ErrUserAlreadyExists
	}
	copied := *user
	r.byID[user.ID] = &copied
	r.byName[user.Username] = user.ID
	return nil
}

// GetByID implements account.Repository.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*account.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.byID[id]
	if !ok {
		return nil, shared.ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}

// GetByUsername implements account.Repository.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*account.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[username]
	if !ok {
		return nil, shared.ErrUserNotFound
	}
	copied := *r.byID[id]
	return &copied, nil
}

// Update implements account.Repository.
func (r *UserRepository) Update(ctx context.Context, user *account.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.byID[user.ID]
	if !ok {
		return shared.ErrUserNotFound
	}
	if old.Username != user.Username {
		delete(r.byName, old.Username)
		r.byName[user.Username] = user.ID
	}
	copied := *user
	r.byID[user.ID] = &copied
	return nil
}

// Exists implements account.Repository.
func (r *UserRepository) Exists(ctx context.Context, id string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byID[id]
	return ok, nil
}
