package command

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/account"
	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/shared"
)

// RegisterUserCommand carries the signup form.
type RegisterUserCommand struct {
	Username string
	Email    string
	Password string
}

// RegisterUserHandler creates new accounts.
type RegisterUserHandler struct {
	users     account.Repository
	publisher shared.EventPublisher
	logger    *slog.Logger
}

// NewRegisterUserHandler creates the handler.
func NewRegisterUserHandler(users account.Repository, publisher shared.EventPublisher, logger *slog.Logger) *RegisterUserHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if publisher == nil {
		publisher = shared.NoopPublisher{}
	}
	return &RegisterUserHandler{users: users, publisher: publisher, logger: logger}
}

// Handle validates the form and persists the account.
func (h *RegisterUserHandler) Handle(ctx context.Context, cmd RegisterUserCommand) (*account.User, error) {
	user, err := account.NewUser(uuid.NewString(), cmd.Username, cmd.Email, cmd.Password)
	if err != nil {
		return nil, err
	}
	if err := h.users.Create(ctx, user); err != nil {
		return nil, err
	}

	event := account.NewRegisteredEvent(user.ID, user.Username)
	if err := h.publisher.Publish(ctx, event); err != nil {
		h.logger.Warn("event publish failed",
			slog.String("event_type", string(event.EventType())),
			slog.Any("error", err))
	}
	return user, nil
}

// AuthenticateCommand carries login credentials.
type AuthenticateCommand struct {
	Username string
	Password string
}

// AuthenticateHandler verifies credentials and records the login.
type AuthenticateHandler struct {
	users  account.Repository
	logger *slog.Logger
}

// NewAuthenticateHandler creates the handler.
func NewAuthenticateHandler(users account.Repository, logger *slog.Logger) *AuthenticateHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthenticateHandler{users: users, logger: logger}
}

// Handle returns the user on success and shared.ErrWrongPassword on a bad
// password. An unknown username also maps to ErrWrongPassword so the endpoint
// does not leak which usernames exist.
func (h *AuthenticateHandler) Handle(ctx context.Context, cmd AuthenticateCommand) (*account.User, error) {
	user, err := h.users.GetByUsername(ctx, cmd.Username)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, shared.ErrWrongPassword
		}
		return nil, err
	}
	if err := user.CheckPassword(cmd.Password); err != nil {
		return nil, err
	}

	user.TouchLogin(time.Now())
	if err := h.users.Update(ctx, user); err != nil {
		// Login still succeeds; the timestamp is best effort.
		h.logger.Warn("failed to record login time",
			slog.String("user_id", user.ID),
			slog.Any("error", err))
	}
	return user, nil
}
