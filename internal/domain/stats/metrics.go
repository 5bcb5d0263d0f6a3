package stats

import (
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// DERIVED METRICS
// Pure functions over an aggregate. Nothing here mutates the aggregate and
// nothing here touches storage; the sync loop and the query side both call
// ComputeMetrics on whatever aggregate state they hold.
// ══════════════════════════════════════════════════════════════════════════════

// Trend describes the direction of recent scores.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendDeclining Trend = "declining"
	TrendSteady    Trend = "steady"
)

// BestCategoryNone is reported when no category has enough attempts.
const BestCategoryNone = "none"

// trendEpsilon is the score delta below which the trend reads as steady.
const trendEpsilon = 0.5

// DerivedMetrics is the dashboard view computed from an aggregate.
type DerivedMetrics struct {
	GlobalAccuracy    float64              `json:"globalAccuracy"`
	BestCategory      string               `json:"bestCategory"`
	WeakestCategory   string               `json:"weakestCategory"`
	Trend             Trend                `json:"trend"`
	CategoryPrecision map[Category]float64 `json:"categoryPrecision"`
}

// ComputeMetrics derives the dashboard metrics from an aggregate.
func ComputeMetrics(a *UserAggregate) DerivedMetrics {
	m := DerivedMetrics{
		BestCategory:      BestCategoryNone,
		WeakestCategory:   BestCategoryNone,
		Trend:             computeTrend(a.RecentSessions),
		CategoryPrecision: make(map[Category]float64, len(a.Categories)),
	}

	var sumCorrect, sumTotal int
	for cat, cs := range a.Categories {
		sumCorrect += cs.Correct
		sumTotal += cs.Total
		m.CategoryPrecision[cat] = cs.Precision()
	}
	if sumTotal > 0 {
		m.GlobalAccuracy = float64(sumCorrect) / float64(sumTotal) * 100
	}

	m.BestCategory = bestCategory(a.Categories)
	m.WeakestCategory = weakestCategory(a.Categories)
	return m
}

// bestCategory picks the category with the highest hit rate among those with
// at least MinCategorySample attempts. Ties go to the category with more
// attempts; a remaining tie resolves in canonical category order.
func bestCategory(categories map[Category]CategoryStats) string {
	best := ""
	var bestRate float64
	var bestTotal int
	for _, cat := range AllCategories() {
		cs, ok := categories[cat]
		if !ok || cs.Total < MinCategorySample {
			continue
		}
		rate := float64(cs.Correct) / float64(cs.Total)
		if best == "" || rate > bestRate || (rate == bestRate && cs.Total > bestTotal) {
			best = string(cat)
			bestRate = rate
			bestTotal = cs.Total
		}
	}
	if best == "" {
		return BestCategoryNone
	}
	return best
}

// weakestCategory mirrors bestCategory with the comparison inverted.
func weakestCategory(categories map[Category]CategoryStats) string {
	worst := ""
	var worstRate float64
	var worstTotal int
	for _, cat := range AllCategories() {
		cs, ok := categories[cat]
		if !ok || cs.Total < MinCategorySample {
			continue
		}
		rate := float64(cs.Correct) / float64(cs.Total)
		if worst == "" || rate < worstRate || (rate == worstRate && cs.Total > worstTotal) {
			worst = string(cat)
			worstRate = rate
			worstTotal = cs.Total
		}
	}
	if worst == "" {
		return BestCategoryNone
	}
	return worst
}

// computeTrend compares the mean score of the TrendWindow newest sessions
// against the TrendWindow oldest sessions in the retained window. Sessions
// are stored newest first. Fewer than 2*TrendWindow sessions read as steady.
func computeTrend(sessions []GameSession) Trend {
	if len(sessions) < 2*TrendWindow {
		return TrendSteady
	}
	recent := meanScore(sessions[:TrendWindow])
	oldest := meanScore(sessions[len(sessions)-TrendWindow:])
	switch {
	case recent > oldest+trendEpsilon:
		return TrendImproving
	case recent < oldest-trendEpsilon:
		return TrendDeclining
	default:
		return TrendSteady
	}
}

func meanScore(sessions []GameSession) float64 {
	if len(sessions) == 0 {
		return 0
	}
	var sum int64
	for _, s := range sessions {
		sum += int64(s.Score)
	}
	return float64(sum) / float64(len(sessions))
}

// ══════════════════════════════════════════════════════════════════════════════
// PERIOD STATS
// ══════════════════════════════════════════════════════════════════════════════

// TimeFrame selects the window for period stats.
type TimeFrame string

const (
	TimeFrameDay TimeFrame = "day"
	TimeFrameAll TimeFrame = "all"
)

// PeriodStats summarizes the retained sessions inside one window.
type PeriodStats struct {
	TimeFrame      TimeFrame `json:"timeFrame"`
	GamesPlayed    int       `json:"gamesPlayed"`
	AverageScore   float64   `json:"averageScore"`
	BestScore      int       `json:"bestScore"`
	Accuracy       float64   `json:"accuracy"`
	ScoreDelta     float64   `json:"scoreDelta"`
	HasProgression bool      `json:"hasProgression"`
}

// ComputePeriodStats summarizes the sessions falling inside the frame.
// For the day frame, ScoreDelta compares today's average score against
// yesterday's; HasProgression is false when either day is empty.
//
// Only the retained window contributes: sessions evicted from the FIFO are
// summarized solely by the cumulative counters.
func ComputePeriodStats(a *UserAggregate, frame TimeFrame, now time.Time) PeriodStats {
	ps := PeriodStats{TimeFrame: frame}

	var window []GameSession
	switch frame {
	case TimeFrameDay:
		window = sessionsOnDay(a.RecentSessions, now)
		yesterday := sessionsOnDay(a.RecentSessions, now.AddDate(0, 0, -1))
		if len(window) > 0 && len(yesterday) > 0 {
			ps.ScoreDelta = meanScore(window) - meanScore(yesterday)
			ps.HasProgression = true
		}
	default:
		window = a.RecentSessions
	}

	ps.GamesPlayed = len(window)
	ps.AverageScore = meanScore(window)
	var correct, total int
	for _, s := range window {
		if s.Score > ps.BestScore {
			ps.BestScore = s.Score
		}
		correct += s.CorrectCount
		total += s.Exercises()
	}
	if total > 0 {
		ps.Accuracy = float64(correct) / float64(total) * 100
	}
	return ps
}

// sessionsOnDay buckets in UTC, matching the dataByDate export keys. Local
// dates would split the same session across days depending on the host.
func sessionsOnDay(sessions []GameSession, day time.Time) []GameSession {
	y, m, d := day.UTC().Date()
	var out []GameSession
	for _, s := range sessions {
		sy, sm, sd := s.PlayedAt.UTC().Date()
		if sy == y && sm == m && sd == d {
			out = append(out, s)
		}
	}
	return out
}
