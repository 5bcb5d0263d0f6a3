// Package leaderboard contains the ranked view over all player aggregates.
package leaderboard

import (
	"sort"
	"time"
)

// Entry is one ranked row of the leaderboard.
type Entry struct {
	Rank                int     `json:"rank"`
	UserID              string  `json:"userId"`
	Username            string  `json:"username"`
	MaxLevel            int     `json:"maxLevel"`
	TotalScore          int64   `json:"totalScore"`
	Accuracy            float64 `json:"accuracy"`
	AverageResponseTime float64 `json:"avgResponseTime"`
	GamesPlayed         int     `json:"gamesPlayed"`
}

// Board is a materialized leaderboard with its build time.
type Board struct {
	Entries []Entry   `json:"entries"`
	BuiltAt time.Time `json:"builtAt"`
}

// Rank orders the entries by max level, then total score, then accuracy,
// and assigns 1-based ranks in place.
func Rank(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].MaxLevel != entries[j].MaxLevel {
			return entries[i].MaxLevel > entries[j].MaxLevel
		}
		if entries[i].TotalScore != entries[j].TotalScore {
			return entries[i].TotalScore > entries[j].TotalScore
		}
		return entries[i].Accuracy > entries[j].Accuracy
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
}

// Top returns the first n entries of the board.
func (b *Board) Top(n int) []Entry {
	if n <= 0 || n > len(b.Entries) {
		n = len(b.Entries)
	}
	return b.Entries[:n]
}

// Find returns the entry for the user, ok=false when unranked.
func (b *Board) Find(userID string) (Entry, bool) {
	for _, e := range b.Entries {
		if e.UserID == userID {
			return e, true
		}
	}
	return Entry{}, false
}
