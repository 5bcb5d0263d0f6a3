package stats

import (
	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/shared"
)

// SessionIngestedEvent is emitted after a session has been folded into the
// aggregate and persisted.
type SessionIngestedEvent struct {
	shared.BaseEvent
	SessionID   string `json:"session_id"`
	Score       int    `json:"score"`
	GamesPlayed int    `json:"games_played"`
}

// Payload implements shared.Event.
func (e SessionIngestedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"session_id":   e.SessionID,
		"score":        e.Score,
		"games_played": e.GamesPlayed,
	}
}

// NewSessionIngestedEvent creates a SessionIngestedEvent.
func NewSessionIngestedEvent(userID, sessionID string, score, gamesPlayed int) SessionIngestedEvent {
	return SessionIngestedEvent{
		BaseEvent:   shared.NewBaseEvent(shared.EventSessionIngested, userID),
		SessionID:   sessionID,
		Score:       score,
		GamesPlayed: gamesPlayed,
	}
}

// StatsUpdatedEvent carries the refreshed aggregate summary to live
// subscribers (websocket hub, snapshot cache).
type StatsUpdatedEvent struct {
	shared.BaseEvent
	Level               int     `json:"level"`
	GamesPlayed         int     `json:"games_played"`
	AverageScore        float64 `json:"average_score"`
	BestScore           int     `json:"best_score"`
	AverageResponseTime float64 `json:"average_response_time"`
	GlobalAccuracy      float64 `json:"global_accuracy"`
	BestCategory        string  `json:"best_category"`
	Trend               Trend   `json:"trend"`
}

// Payload implements shared.Event.
func (e StatsUpdatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"level":                 e.Level,
		"games_played":          e.GamesPlayed,
		"average_score":         e.AverageScore,
		"best_score":            e.BestScore,
		"average_response_time": e.AverageResponseTime,
		"global_accuracy":       e.GlobalAccuracy,
		"best_category":         e.BestCategory,
		"trend":                 string(e.Trend),
	}
}

// NewStatsUpdatedEvent creates a StatsUpdatedEvent from an aggregate and its
// derived metrics.
func NewStatsUpdatedEvent(a *UserAggregate, m DerivedMetrics) StatsUpdatedEvent {
	return StatsUpdatedEvent{
		BaseEvent:           shared.NewBaseEvent(shared.EventStatsUpdated, a.UserID),
		Level:               a.Level,
		GamesPlayed:         a.GamesPlayed,
		AverageScore:        a.AverageScore,
		BestScore:           a.BestScore,
		AverageResponseTime: a.AverageResponseTime,
		GlobalAccuracy:      m.GlobalAccuracy,
		BestCategory:        m.BestCategory,
		Trend:               m.Trend,
	}
}

// BestScoreBeatenEvent is emitted when a session sets a new personal best.
type BestScoreBeatenEvent struct {
	shared.BaseEvent
	PreviousBest int `json:"previous_best"`
	NewBest      int `json:"new_best"`
}

// Payload implements shared.Event.
func (e BestScoreBeatenEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"previous_best": e.PreviousBest,
		"new_best":      e.NewBest,
	}
}

// NewBestScoreBeatenEvent creates a BestScoreBeatenEvent.
func NewBestScoreBeatenEvent(userID string, previous, best int) BestScoreBeatenEvent {
	return BestScoreBeatenEvent{
		BaseEvent:    shared.NewBaseEvent(shared.EventBestScoreBeaten, userID),
		PreviousBest: previous,
		NewBest:      best,
	}
}
