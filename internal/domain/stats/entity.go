package stats

import (
	"time"

	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Category identifies an exercise category.
type Category string

// Exercise categories produced by the game client.
const (
	CategoryAddition       Category = "addition"
	CategorySubtraction    Category = "subtraction"
	CategoryMultiplication Category = "multiplication"
	CategoryDivision       Category = "division"
	CategoryPower          Category = "power"
	CategoryAlgebra        Category = "algebra"
)

// AllCategories lists every known category in canonical order.
func AllCategories() []Category {
	return []Category{
		CategoryAddition,
		CategorySubtraction,
		CategoryMultiplication,
		CategoryDivision,
		CategoryPower,
		CategoryAlgebra,
	}
}

// IsValid reports whether the category is one of the known categories.
func (c Category) IsValid() bool {
	switch c {
	case CategoryAddition, CategorySubtraction, CategoryMultiplication,
		CategoryDivision, CategoryPower, CategoryAlgebra:
		return true
	}
	return false
}

// CategoryStats accumulates correct/total counts for a single category.
// The invariant Correct <= Total holds for every stored aggregate.
type CategoryStats struct {
	Correct int `json:"correct"`
	Total   int `json:"total"`
}

// Precision returns the hit rate in percent, 0 when no attempts were made.
func (c CategoryStats) Precision() float64 {
	if c.Total == 0 {
		return 0
	}
	return float64(c.Correct) / float64(c.Total) * 100
}

// ══════════════════════════════════════════════════════════════════════════════
// LIMITS
// ══════════════════════════════════════════════════════════════════════════════

const (
	// MaxRecentSessions bounds the retained session window. Older sessions
	// are evicted FIFO; cumulative counters keep their contribution.
	MaxRecentSessions = 100

	// TrendWindow is the number of sessions compared on each side when
	// deriving the score trend.
	TrendWindow = 3

	// MinCategorySample is the minimum attempts a category needs before it
	// can be declared the best category.
	MinCategorySample = 2
)

// ══════════════════════════════════════════════════════════════════════════════
// USER AGGREGATE
// ══════════════════════════════════════════════════════════════════════════════

// UserAggregate is the rolling performance summary for one player.
//
// AverageScore and AverageResponseTime are derived from the cumulative
// counters on every update. They are stored for cheap reads but the
// cumulative values stay authoritative.
type UserAggregate struct {
	UserID string `json:"userId"`

	// Progression
	Level      int `json:"level"`
	BestScore  int `json:"bestScore"`
	BestSeries int `json:"bestSeries"`

	// Cumulative counters
	GamesPlayed     int   `json:"gamesPlayed"`
	CumulativeScore int64 `json:"cumulativeScore"`
	TotalDurationMS int64 `json:"totalDurationMs"`
	TotalExercises  int   `json:"totalExercises"`

	// Derived (recomputed on every apply)
	AverageScore        float64 `json:"averageScore"`
	AverageResponseTime float64 `json:"averageResponseTime"`

	// Per-category accumulators
	Categories map[Category]CategoryStats `json:"categories"`

	// Recent sessions, newest first, bounded by MaxRecentSessions.
	RecentSessions []GameSession `json:"recentSessions"`

	UpdatedAt time.Time `json:"updatedAt"`
}

// NewUserAggregate returns a fresh aggregate for a player with no history.
func NewUserAggregate(userID string) *UserAggregate {
	return &UserAggregate{
		UserID:     userID,
		Categories: make(map[Category]CategoryStats),
		UpdatedAt:  time.Now(),
	}
}

// ApplySession folds a finished game session into the aggregate.
// The session must already be validated (see GameSession.Validate).
func (a *UserAggregate) ApplySession(s GameSession) {
	a.GamesPlayed++
	a.CumulativeScore += int64(s.Score)
	// Always recompute from the cumulative counter. Incremental average
	// adjustment accumulates floating point drift over thousands of games.
	a.AverageScore = float64(a.CumulativeScore) / float64(a.GamesPlayed)

	if s.Score > a.BestScore {
		a.BestScore = s.Score
	}
	if s.BestSeries > a.BestSeries {
		a.BestSeries = s.BestSeries
	}
	if s.LevelReached > a.Level {
		a.Level = s.LevelReached
	}

	a.TotalDurationMS += s.DurationMS
	a.TotalExercises += s.Exercises()
	if a.TotalExercises > 0 {
		a.AverageResponseTime = float64(a.TotalDurationMS) / float64(a.TotalExercises)
	} else {
		a.AverageResponseTime = 0
	}

	if a.Categories == nil {
		a.Categories = make(map[Category]CategoryStats)
	}
	for cat, res := range s.Categories {
		cur := a.Categories[cat]
		cur.Correct += res.Correct
		cur.Total += res.Total
		a.Categories[cat] = cur
	}

	a.RecentSessions = append([]GameSession{s}, a.RecentSessions...)
	if len(a.RecentSessions) > MaxRecentSessions {
		a.RecentSessions = a.RecentSessions[:MaxRecentSessions]
	}

	a.UpdatedAt = time.Now()
}

// LastSession returns the most recent session, or nil when none exists.
func (a *UserAggregate) LastSession() *GameSession {
	if len(a.RecentSessions) == 0 {
		return nil
	}
	s := a.RecentSessions[0]
	return &s
}

// HasPlayed reports whether the player has at least one recorded session.
func (a *UserAggregate) HasPlayed() bool {
	return a.GamesPlayed > 0
}

// Validate checks the structural invariants of a stored aggregate.
// A violation means the stored row is corrupt, not that the caller erred.
func (a *UserAggregate) Validate() error {
	if a.UserID == "" {
		return shared.ErrMalformedAggregate
	}
	if a.GamesPlayed < 0 || a.CumulativeScore < 0 || a.TotalDurationMS < 0 || a.TotalExercises < 0 {
		return shared.ErrMalformedAggregate
	}
	for _, cs := range a.Categories {
		if cs.Correct < 0 || cs.Total < 0 || cs.Correct > cs.Total {
			return shared.ErrMalformedAggregate
		}
	}
	if len(a.RecentSessions) > MaxRecentSessions {
		return shared.ErrMalformedAggregate
	}
	return nil
}

// Clone returns a deep copy of the aggregate.
func (a *UserAggregate) Clone() *UserAggregate {
	clone := *a
	clone.Categories = make(map[Category]CategoryStats, len(a.Categories))
	for cat, cs := range a.Categories {
		clone.Categories[cat] = cs
	}
	clone.RecentSessions = make([]GameSession, len(a.RecentSessions))
	for i, s := range a.RecentSessions {
		clone.RecentSessions[i] = s.Clone()
	}
	return &clone
}
