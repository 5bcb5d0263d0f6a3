package stats

import (
	"time"

	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/shared"
)

// CategoryResult holds the per-category outcome of a single session.
type CategoryResult struct {
	Correct int `json:"correct"`
	Total   int `json:"total"`
}

// GameSession is one finished run of the game as reported by the client.
type GameSession struct {
	ID             string                      `json:"id"`
	UserID         string                      `json:"userId"`
	Score          int                         `json:"score"`
	LevelReached   int                         `json:"levelReached"`
	CorrectCount   int                         `json:"correctCount"`
	IncorrectCount int                         `json:"incorrectCount"`
	BestSeries     int                         `json:"bestSeries"`
	DurationMS     int64                       `json:"durationMs"`
	Categories     map[Category]CategoryResult `json:"categories"`
	PlayedAt       time.Time                   `json:"playedAt"`
}

// Exercises returns the number of exercises answered in this session.
func (s GameSession) Exercises() int {
	return s.CorrectCount + s.IncorrectCount
}

// Accuracy returns the session hit rate in percent, 0 when nothing was answered.
func (s GameSession) Accuracy() float64 {
	total := s.Exercises()
	if total == 0 {
		return 0
	}
	return float64(s.CorrectCount) / float64(total) * 100
}

// AverageResponseTime returns the mean time per exercise in milliseconds.
func (s GameSession) AverageResponseTime() float64 {
	total := s.Exercises()
	if total == 0 {
		return 0
	}
	return float64(s.DurationMS) / float64(total)
}

// Validate checks the session and normalizes repairable defects.
//
// Game clients occasionally report correct > total for a category when a
// round is aborted mid-answer. Those counts are clamped to correct = total
// rather than rejected; the caller logs the repair. Genuinely nonsensical
// sessions (negative counters, unknown categories) are rejected.
func (s *GameSession) Validate() (clamped bool, err error) {
	if s.UserID == "" {
		return false, shared.WrapError("stats", "Validate", shared.ErrInvalidSession, "session has no user ID", nil)
	}
	if s.Score < 0 || s.LevelReached < 0 || s.DurationMS < 0 ||
		s.CorrectCount < 0 || s.IncorrectCount < 0 || s.BestSeries < 0 {
		return false, shared.WrapError("stats", "Validate", shared.ErrInvalidSession, "session has negative counters", nil)
	}
	for cat, res := range s.Categories {
		if !cat.IsValid() {
			return false, shared.WrapError("stats", "Validate", shared.ErrUnknownCategory, string(cat), nil)
		}
		if res.Correct < 0 || res.Total < 0 {
			return false, shared.WrapError("stats", "Validate", shared.ErrInvalidSession, "category has negative counters", nil)
		}
		if res.Correct > res.Total {
			res.Correct = res.Total
			s.Categories[cat] = res
			clamped = true
		}
	}
	if s.PlayedAt.IsZero() {
		s.PlayedAt = time.Now()
	}
	return clamped, nil
}

// Clone returns a deep copy of the session.
func (s GameSession) Clone() GameSession {
	clone := s
	clone.Categories = make(map[Category]CategoryResult, len(s.Categories))
	for cat, res := range s.Categories {
		clone.Categories[cat] = res
	}
	return clone
}
