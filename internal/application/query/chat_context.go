package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/stats"
)

// ChatContextBuilder renders a compact performance summary that the tutor
// chat injects into the completion prompt. The block is bounded: at most
// maxSessions recent sessions, no free-form user data beyond the username.
type ChatContextBuilder struct {
	repo        stats.Repository
	maxSessions int
}

// NewChatContextBuilder creates the builder.
func NewChatContextBuilder(repo stats.Repository, maxSessions int) *ChatContextBuilder {
	if maxSessions <= 0 {
		maxSessions = 10
	}
	return &ChatContextBuilder{repo: repo, maxSessions: maxSessions}
}

// Build renders the performance block for one user. A user with no recorded
// games gets a short "no games yet" block so the tutor does not hallucinate
// history.
func (b *ChatContextBuilder) Build(ctx context.Context, userID, username string) (string, error) {
	agg, err := b.repo.Load(ctx, userID)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Player: %s\n", username)

	if !agg.HasPlayed() {
		sb.WriteString("No games recorded yet.\n")
		return sb.String(), nil
	}

	metrics := stats.ComputeMetrics(agg)

	fmt.Fprintf(&sb, "Level: %d\n", agg.Level)
	fmt.Fprintf(&sb, "Games played: %d\n", agg.GamesPlayed)
	fmt.Fprintf(&sb, "Average score: %.1f (best %d)\n", agg.AverageScore, agg.BestScore)
	fmt.Fprintf(&sb, "Average response time: %.0f ms\n", agg.AverageResponseTime)
	fmt.Fprintf(&sb, "Overall accuracy: %.1f%%\n", metrics.GlobalAccuracy)
	fmt.Fprintf(&sb, "Best category: %s, weakest: %s\n", metrics.BestCategory, metrics.WeakestCategory)
	fmt.Fprintf(&sb, "Score trend: %s\n", metrics.Trend)

	if len(agg.Categories) > 0 {
		sb.WriteString("Per-category accuracy:\n")
		for _, cat := range stats.AllCategories() {
			cs, ok := agg.Categories[cat]
			if !ok || cs.Total == 0 {
				continue
			}
			fmt.Fprintf(&sb, "  %s: %.1f%% (%d/%d)\n", cat, cs.Precision(), cs.Correct, cs.Total)
		}
	}

	n := len(agg.RecentSessions)
	if n > b.maxSessions {
		n = b.maxSessions
	}
	if n > 0 {
		fmt.Fprintf(&sb, "Last %d sessions (newest first):\n", n)
		for _, s := range agg.RecentSessions[:n] {
			fmt.Fprintf(&sb, "  score %d, level %d, accuracy %.0f%%\n",
				s.Score, s.LevelReached, s.Accuracy())
		}
	}
	return sb.String(), nil
}
