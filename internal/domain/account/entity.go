// Package account contains player accounts for Math Runner. Accounts are the
// source of truth for user existence; the stats aggregate never invents one.
package account

import (
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/shared"
)

// User is a registered player.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	LastLoginAt  time.Time `json:"lastLoginAt"`
}

// NewUser creates a validated user with a bcrypt password hash.
func NewUser(id, username, email, password string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" || len(username) > 64 {
		return nil, shared.ErrInvalidUsername
	}
	email = strings.TrimSpace(strings.ToLower(email))
	if !strings.Contains(email, "@") {
		return nil, shared.ErrInvalidEmail
	}
	u := &User{
		ID:        id,
		Username:  username,
		Email:     email,
		CreatedAt: time.Now(),
	}
	if err := u.SetPassword(password); err != nil {
		return nil, err
	}
	return u, nil
}

// SetPassword replaces the stored password hash.
func (u *User) SetPassword(password string) error {
	if len(password) < 8 {
		return shared.WrapError("account", "SetPassword", shared.ErrValidation, "password too short", nil)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return shared.WrapError("account", "SetPassword", shared.ErrValidation, "hashing failed", err)
	}
	u.PasswordHash = string(hash)
	return nil
}

// CheckPassword verifies a candidate password against the stored hash.
func (u *User) CheckPassword(password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return shared.ErrWrongPassword
	}
	return nil
}

// TouchLogin records a successful login.
func (u *User) TouchLogin(at time.Time) {
	u.LastLoginAt = at
}
