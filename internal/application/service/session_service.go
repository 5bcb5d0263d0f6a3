package service

import (
	"context"
	"log/slog"

	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/account"
	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/shared"
)

// Presence tracks who is online. Implemented by the Redis presence set; nil
// when Redis is disabled.
type Presence interface {
	MarkOnline(ctx context.Context, userID string) error
	MarkOffline(ctx context.Context, userID string) error
}

// LoopController starts and stops per-user sync loops.
type LoopController interface {
	Start(userID string) error
	Stop(userID string)
}

// AuthenticateFunc verifies credentials. Wired to the command-side
// authenticate handler so the session service does not depend on the
// command package.
type AuthenticateFunc func(ctx context.Context, username, password string) (*account.User, error)

// SessionService ties login and logout to the live machinery: a successful
// login marks the player online and starts their sync loop, logout tears
// both down.
type SessionService struct {
	auth      AuthenticateFunc
	presence  Presence // nil without Redis
	loops     LoopController
	publisher shared.EventPublisher
	logger    *slog.Logger
}

// NewSessionService creates the service. presence may be nil.
func NewSessionService(auth AuthenticateFunc, presence Presence, loops LoopController,
	publisher shared.EventPublisher, logger *slog.Logger) *SessionService {
	if logger == nil {
		logger = slog.Default()
	}
	if publisher == nil {
		publisher = shared.NoopPublisher{}
	}
	return &SessionService{
		auth:      auth,
		presence:  presence,
		loops:     loops,
		publisher: publisher,
		logger:    logger,
	}
}

// Login authenticates and brings the player's live view up. Presence and the
// sync loop are best effort: a Redis hiccup must not block a valid login.
func (s *SessionService) Login(ctx context.Context, username, password string) (*account.User, error) {
	user, err := s.auth(ctx, username, password)
	if err != nil {
		return nil, err
	}

	if s.presence != nil {
		if err := s.presence.MarkOnline(ctx, user.ID); err != nil {
			s.logger.Warn("presence mark online failed",
				slog.String("user_id", user.ID), slog.Any("error", err))
		}
	}
	if s.loops != nil {
		if err := s.loops.Start(user.ID); err != nil {
			s.logger.Warn("sync loop start failed",
				slog.String("user_id", user.ID), slog.Any("error", err))
		}
	}

	event := account.NewLoggedInEvent(user.ID, user.Username)
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("event publish failed",
			slog.String("event_type", string(event.EventType())),
			slog.Any("error", err))
	}
	return user, nil
}

// Logout tears the player's live view down. When Logout returns, the sync
// loop for the user has fully stopped.
func (s *SessionService) Logout(ctx context.Context, userID string) {
	if s.loops != nil {
		s.loops.Stop(userID)
	}
	if s.presence != nil {
		if err := s.presence.MarkOffline(ctx, userID); err != nil {
			s.logger.Warn("presence mark offline failed",
				slog.String("user_id", userID), slog.Any("error", err))
		}
	}

	event := account.NewLoggedOutEvent(userID)
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("event publish failed",
			slog.String("event_type", string(event.EventType())),
			slog.Any("error", err))
	}
}
