package shared

import (
	"context"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Each event represents something significant that
// happened in the domain and may fan out to the live feed, caches and jobs.
const (
	// Account events
	EventUserRegistered EventType = "account.registered"
	EventUserLoggedIn   EventType = "account.logged_in"
	EventUserLoggedOut  EventType = "account.logged_out"

	// Stats events
	EventSessionIngested EventType = "stats.session_ingested"
	EventStatsUpdated    EventType = "stats.updated"
	EventBestScoreBeaten EventType = "stats.best_score_beaten"
	EventLevelReached    EventType = "stats.level_reached"

	// Sync events
	EventSnapshotPublished EventType = "sync.snapshot_published"
	EventSyncStarted       EventType = "sync.started"
	EventSyncStopped       EventType = "sync.stopped"

	// Leaderboard events
	EventLeaderboardRebuilt EventType = "leaderboard.rebuilt"

	// Chat events
	EventChatReplySent EventType = "chat.reply_sent"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	AggregateId string    `json:"aggregate_id"`
	Version     int       `json:"version"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType { return e.Type }

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string { return e.AggregateId }

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// EventPublisher publishes domain events to interested subscribers.
// Implementations live in infrastructure/messaging.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// EventHandler processes a single domain event.
type EventHandler interface {
	Handle(ctx context.Context, event Event) error
	EventTypes() []EventType
}

// NoopPublisher discards all events. Useful in tests and for binaries
// that do not wire an event bus.
type NoopPublisher struct{}

// Publish implements EventPublisher.
func (NoopPublisher) Publish(ctx context.Context, event Event) error { return nil }
