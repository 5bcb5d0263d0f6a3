package account

import (
	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/shared"
)

// RegisteredEvent is emitted after a new account is created.
type RegisteredEvent struct {
	shared.BaseEvent
	Username string `json:"username"`
}

// Payload implements shared.Event.
func (e RegisteredEvent) Payload() map[string]interface{} {
	return map[string]interface{}{"username": e.Username}
}

// NewRegisteredEvent creates a RegisteredEvent.
func NewRegisteredEvent(userID, username string) RegisteredEvent {
	return RegisteredEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventUserRegistered, userID),
		Username:  username,
	}
}

// LoggedInEvent is emitted when a player logs in and their sync loop starts.
type LoggedInEvent struct {
	shared.BaseEvent
	Username string `json:"username"`
}

// Payload implements shared.Event.
func (e LoggedInEvent) Payload() map[string]interface{} {
	return map[string]interface{}{"username": e.Username}
}

// NewLoggedInEvent creates a LoggedInEvent.
func NewLoggedInEvent(userID, username string) LoggedInEvent {
	return LoggedInEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventUserLoggedIn, userID),
		Username:  username,
	}
}

// LoggedOutEvent is emitted when a player logs out and their sync loop stops.
type LoggedOutEvent struct {
	shared.BaseEvent
}

// Payload implements shared.Event.
func (e LoggedOutEvent) Payload() map[string]interface{} {
	return map[string]interface{}{}
}

// NewLoggedOutEvent creates a LoggedOutEvent.
func NewLoggedOutEvent(userID string) LoggedOutEvent {
	return LoggedOutEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventUserLoggedOut, userID),
	}
}
