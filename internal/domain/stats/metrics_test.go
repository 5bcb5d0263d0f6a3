package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestComputeMetrics_EmptyAggregate(t *testing.T) {
	agg := NewUserAggregate("user1")

	m := ComputeMetrics(agg)

	assert.Zero(t, m.GlobalAccuracy)
	assert.Equal(t, BestCategoryNone, m.BestCategory)
	assert.Equal(t, BestCategoryNone, m.WeakestCategory)
	assert.Equal(t, TrendSteady, m.Trend)
}

func TestComputeMetrics_GlobalAccuracy(t *testing.T) {
	agg := NewUserAggregate("user1")
	agg.Categories = map[Category]CategoryStats{
		CategoryAddition: {Correct: 6, Total: 10},
		CategoryDivision: {Correct: 4, Total: 10},
	}

	m := ComputeMetrics(agg)

	assert.InDelta(t, 50.0, m.GlobalAccuracy, 1e-9)
	assert.InDelta(t, 60.0, m.CategoryPrecision[CategoryAddition], 1e-9)
}

func TestBestCategory_MinimumSample(t *testing.T) {
	agg := NewUserAggregate("user1")
	agg.Categories = map[Category]CategoryStats{
		// Perfect but below the minimum sample size.
		CategoryPower: {Correct: 1, Total: 1},
	}
	assert.Equal(t, BestCategoryNone, ComputeMetrics(agg).BestCategory)

	agg.Categories[CategoryPower] = CategoryStats{Correct: 2, Total: 2}
	assert.Equal(t, string(CategoryPower), ComputeMetrics(agg).BestCategory)
}

func TestBestCategory_TieGoesToLargerSample(t *testing.T) {
	agg := NewUserAggregate("user1")
	agg.Categories = map[Category]CategoryStats{
		CategoryAddition: {Correct: 2, Total: 2},
		CategoryDivision: {Correct: 4, Total: 4},
	}

	m := ComputeMetrics(agg)

	assert.Equal(t, string(CategoryDivision), m.BestCategory)
}

func TestWeakestCategory(t *testing.T) {
	agg := NewUserAggregate("user1")
	agg.Categories = map[Category]CategoryStats{
		CategoryAddition:    {Correct: 9, Total: 10},
		CategorySubtraction: {Correct: 2, Total: 10},
		CategoryAlgebra:     {Correct: 1, Total: 1}, // below sample, ignored
	}

	m := ComputeMetrics(agg)

	assert.Equal(t, string(CategorySubtraction), m.WeakestCategory)
}

func applyScores(agg *UserAggregate, scores ...int) {
	for _, sc := range scores {
		agg.ApplySession(session(sc))
	}
}

func TestTrend_Improving(t *testing.T) {
	agg := NewUserAggregate("user1")
	// Applied oldest to newest; the window stores newest first.
	applyScores(agg, 10, 10, 10, 30, 30, 30)

	assert.Equal(t, TrendImproving, ComputeMetrics(agg).Trend)
}

func TestTrend_Declining(t *testing.T) {
	agg := NewUserAggregate("user1")
	applyScores(agg, 30, 30, 30, 10, 10, 10)

	assert.Equal(t, TrendDeclining, ComputeMetrics(agg).Trend)
}

func TestTrend_SteadyWithinEpsilon(t *testing.T) {
	agg := NewUserAggregate("user1")
	applyScores(agg, 20, 20, 20, 20, 20, 20)

	assert.Equal(t, TrendSteady, ComputeMetrics(agg).Trend)
}

func TestTrend_TooFewSessions(t *testing.T) {
	agg := NewUserAggregate("user1")
	applyScores(agg, 1, 100, 1, 100, 1)

	assert.Equal(t, TrendSteady, ComputeMetrics(agg).Trend, "fewer than both windows reads steady")
}

func TestComputePeriodStats_Day(t *testing.T) {
	now := time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)
	agg := NewUserAggregate("user1")

	yesterday := session(10)
	yesterday.PlayedAt = now.AddDate(0, 0, -1)
	today1 := session(20)
	today1.PlayedAt = now.Add(-2 * time.Hour)
	today2 := session(40)
	today2.PlayedAt = now.Add(-1 * time.Hour)

	agg.ApplySession(yesterday)
	agg.ApplySession(today1)
	agg.ApplySession(today2)

	ps := ComputePeriodStats(agg, TimeFrameDay, now)

	assert.Equal(t, 2, ps.GamesPlayed)
	assert.InDelta(t, 30.0, ps.AverageScore, 1e-9)
	assert.Equal(t, 40, ps.BestScore)
	assert.True(t, ps.HasProgression)
	assert.InDelta(t, 20.0, ps.ScoreDelta, 1e-9, "30 today vs 10 yesterday")
}

func TestComputePeriodStats_DayBucketsInUTC(t *testing.T) {
	// 23:45 UTC on March 13 is already March 14 in UTC+5. Day buckets are
	// UTC, like the dataByDate export keys, so a session played minutes
	// earlier must land in the same window even when the reference time
	// carries a different zone.
	zone := time.FixedZone("UTC+5", 5*3600)
	agg := NewUserAggregate("user1")

	late := session(30)
	late.PlayedAt = time.Date(2026, 3, 13, 23, 30, 0, 0, time.UTC)
	agg.ApplySession(late)

	now := time.Date(2026, 3, 13, 23, 45, 0, 0, time.UTC).In(zone)

	ps := ComputePeriodStats(agg, TimeFrameDay, now)
	assert.Equal(t, 1, ps.GamesPlayed, "local dates differ, UTC dates match")

	nextDay := ComputePeriodStats(agg, TimeFrameDay, time.Date(2026, 3, 14, 0, 15, 0, 0, time.UTC))
	assert.Equal(t, 0, nextDay.GamesPlayed)
}

func TestComputePeriodStats_All(t *testing.T) {
	agg := NewUserAggregate("user1")
	applyScores(agg, 10, 20)

	ps := ComputePeriodStats(agg, TimeFrameAll, time.Now())

	assert.Equal(t, 2, ps.GamesPlayed)
	assert.InDelta(t, 15.0, ps.AverageScore, 1e-9)
	assert.False(t, ps.HasProgression)
}
