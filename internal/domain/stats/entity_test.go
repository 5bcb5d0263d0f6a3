package stats

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/shared"
)

func session(score int, opts ...func(*GameSession)) GameSession {
	s := GameSession{
		ID:             fmt.Sprintf("s-%d", score),
		UserID:         "user1",
		Score:          score,
		LevelReached:   1,
		CorrectCount:   8,
		IncorrectCount: 2,
		DurationMS:     20_000,
		Categories: map[Category]CategoryResult{
			CategoryAddition: {Correct: 8, Total: 10},
		},
		PlayedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

func TestApplySession_AverageFromCumulative(t *testing.T) {
	agg := NewUserAggregate("user1")

	for _, score := range []int{10, 17, 23} {
		agg.ApplySession(session(score))
	}

	assert.Equal(t, 3, agg.GamesPlayed)
	assert.Equal(t, int64(50), agg.CumulativeScore)
	// 50/3, exact to float64 division of the cumulative counter.
	assert.InDelta(t, 50.0/3.0, agg.AverageScore, 1e-12)
}

func TestApplySession_BestScoreMonotone(t *testing.T) {
	agg := NewUserAggregate("user1")

	agg.ApplySession(session(5))
	assert.Equal(t, 5, agg.BestScore)

	agg.ApplySession(session(20))
	assert.Equal(t, 20, agg.BestScore)

	agg.ApplySession(session(3))
	assert.Equal(t, 20, agg.BestScore, "a worse session must not lower the best score")
}

func TestApplySession_BoundedHistory(t *testing.T) {
	agg := NewUserAggregate("user1")

	for i := 1; i <= MaxRecentSessions+5; i++ {
		s := session(i)
		s.ID = fmt.Sprintf("s-%03d", i)
		agg.ApplySession(s)
	}

	assert.Len(t, agg.RecentSessions, MaxRecentSessions)
	assert.Equal(t, "s-105", agg.RecentSessions[0].ID, "newest first")
	assert.Equal(t, "s-006", agg.RecentSessions[MaxRecentSessions-1].ID, "the five oldest evicted")
	// Evicted sessions still count in the cumulative summary.
	assert.Equal(t, MaxRecentSessions+5, agg.GamesPlayed)
}

func TestApplySession_ResponseTime(t *testing.T) {
	agg := NewUserAggregate("user1")

	agg.ApplySession(session(10, func(s *GameSession) {
		s.CorrectCount = 4
		s.IncorrectCount = 1
		s.DurationMS = 10_000
	}))
	assert.InDelta(t, 2000.0, agg.AverageResponseTime, 1e-9)

	agg.ApplySession(session(10, func(s *GameSession) {
		s.CorrectCount = 5
		s.IncorrectCount = 0
		s.DurationMS = 5_000
	}))
	// (10000+5000) / (5+5)
	assert.InDelta(t, 1500.0, agg.AverageResponseTime, 1e-9)
}

func TestApplySession_NoExercises(t *testing.T) {
	agg := NewUserAggregate("user1")

	agg.ApplySession(session(0, func(s *GameSession) {
		s.CorrectCount = 0
		s.IncorrectCount = 0
		s.DurationMS = 0
		s.Categories = nil
	}))

	assert.Zero(t, agg.AverageResponseTime, "no exercises must not divide by zero")
	assert.Zero(t, agg.AverageScore)
	assert.Equal(t, 1, agg.GamesPlayed)
}

func TestApplySession_CategoryAccumulation(t *testing.T) {
	agg := NewUserAggregate("user1")

	agg.ApplySession(session(10, func(s *GameSession) {
		s.Categories = map[Category]CategoryResult{
			CategoryAddition: {Correct: 3, Total: 5},
			CategoryDivision: {Correct: 1, Total: 2},
		}
	}))
	agg.ApplySession(session(10, func(s *GameSession) {
		s.Categories = map[Category]CategoryResult{
			CategoryAddition: {Correct: 2, Total: 5},
		}
	}))

	assert.Equal(t, CategoryStats{Correct: 5, Total: 10}, agg.Categories[CategoryAddition])
	assert.Equal(t, CategoryStats{Correct: 1, Total: 2}, agg.Categories[CategoryDivision])
	assert.InDelta(t, 50.0, agg.Categories[CategoryAddition].Precision(), 1e-9)
}

func TestValidate_ClampsCorrectOverTotal(t *testing.T) {
	s := session(10, func(s *GameSession) {
		s.Categories = map[Category]CategoryResult{
			CategoryAlgebra: {Correct: 7, Total: 5},
		}
	})

	clamped, err := s.Validate()
	assert.NoError(t, err)
	assert.True(t, clamped)
	assert.Equal(t, CategoryResult{Correct: 5, Total: 5}, s.Categories[CategoryAlgebra])
}

func TestValidate_RejectsNegativeCounters(t *testing.T) {
	s := session(10, func(s *GameSession) { s.Score = -1 })

	_, err := s.Validate()
	assert.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrInvalidSession))
}

func TestValidate_RejectsUnknownCategory(t *testing.T) {
	s := session(10, func(s *GameSession) {
		s.Categories = map[Category]CategoryResult{"geometry": {Correct: 1, Total: 2}}
	})

	_, err := s.Validate()
	assert.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrUnknownCategory))
}

func TestAggregateValidate_CorruptRows(t *testing.T) {
	agg := NewUserAggregate("user1")
	assert.NoError(t, agg.Validate())

	agg.Categories[CategoryPower] = CategoryStats{Correct: 9, Total: 3}
	assert.ErrorIs(t, agg.Validate(), shared.ErrCorruptData)
}

func TestClone_Independent(t *testing.T) {
	agg := NewUserAggregate("user1")
	agg.ApplySession(session(10))

	clone := agg.Clone()
	clone.ApplySession(session(50))
	clone.Categories[CategoryAddition] = CategoryStats{Correct: 99, Total: 99}

	assert.Equal(t, 1, agg.GamesPlayed)
	assert.Equal(t, 2, clone.GamesPlayed)
	assert.NotEqual(t, agg.Categories[CategoryAddition], clone.Categories[CategoryAddition])
}
