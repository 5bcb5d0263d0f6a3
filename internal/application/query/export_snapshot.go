package query

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/account"
	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/shared"
	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/stats"
	"github.com/mathrunner-hub/mathrunner-stats-hub/pkg/timeutil"
)

// SessionHistory reads the archived session log, newest first.
type SessionHistory interface {
	History(ctx context.Context, userID string, limit int) ([]stats.GameSession, error)
}

// maxExportHistory bounds how many archived sessions one export pulls.
const maxExportHistory = 1000

// ══════════════════════════════════════════════════════════════════════════════
// EXPORT DOCUMENT
// ══════════════════════════════════════════════════════════════════════════════

// ExportDocument is the portable stats document handed to the user. The
// aggregate field is the authoritative state for re-import; dataByDate is the
// human-readable per-day breakdown.
type ExportDocument struct {
	User       ExportUser           `json:"user"`
	Aggregate  *stats.UserAggregate `json:"aggregate"`
	DataByDate []ExportDay          `json:"dataByDate"`
}

// ExportUser identifies the owner of the document.
type ExportUser struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	Email      string    `json:"email"`
	ExportedAt time.Time `json:"exportedAt"`
}

// ExportDay summarizes one calendar day (UTC).
type ExportDay struct {
	Date             string                                  `json:"date"`
	PersonalStats    stats.PeriodStats                       `json:"personalStats"`
	PerCategoryStats map[stats.Category]stats.CategoryResult `json:"perCategoryStats"`
	LastGame         *stats.GameSession                      `json:"lastGame,omitempty"`
	GameHistory      []stats.GameSession                     `json:"gameHistory"`
}

// ExportHandler produces the JSON and CSV exports.
type ExportHandler struct {
	users   account.Repository
	repo    stats.Repository
	history SessionHistory
	logger  *slog.Logger
}

// NewExportHandler creates the handler.
func NewExportHandler(users account.Repository, repo stats.Repository,
	history SessionHistory, logger *slog.Logger) *ExportHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExportHandler{users: users, repo: repo, history: history, logger: logger}
}

// ExportJSON builds the full export document for the user.
func (h *ExportHandler) ExportJSON(ctx context.Context, userID string) (*ExportDocument, error) {
	user, err := h.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	agg, err := h.repo.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	sessions, err := h.history.History(ctx, userID, maxExportHistory)
	if err != nil {
		return nil, err
	}

	return &ExportDocument{
		User: ExportUser{
			ID:         user.ID,
			Username:   user.Username,
			Email:      user.Email,
			ExportedAt: time.Now().UTC(),
		},
		Aggregate:  agg,
		DataByDate: groupByDay(sessions),
	}, nil
}

// ExportCSV writes the archived sessions as CSV, one row per session,
// newest first.
func (h *ExportHandler) ExportCSV(ctx context.Context, userID string, w io.Writer) error {
	if _, err := h.users.GetByID(ctx, userID); err != nil {
		return err
	}
	sessions, err := h.history.History(ctx, userID, maxExportHistory)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	header := []string{"session_id", "played_at", "score", "level_reached",
		"correct", "incorrect", "best_series", "duration_ms", "accuracy_pct"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, s := range sessions {
		row := []string{
			s.ID,
			s.PlayedAt.UTC().Format(time.RFC3339),
			strconv.Itoa(s.Score),
			strconv.Itoa(s.LevelReached),
			strconv.Itoa(s.CorrectCount),
			strconv.Itoa(s.IncorrectCount),
			strconv.Itoa(s.BestSeries),
			strconv.FormatInt(s.DurationMS, 10),
			fmt.Sprintf("%.1f", s.Accuracy()),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// groupByDay buckets sessions by UTC day key, newest day first. Sessions
// inside a day keep their newest-first order.
func groupByDay(sessions []stats.GameSession) []ExportDay {
	byDay := make(map[string][]stats.GameSession)
	for _, s := range sessions {
		key := timeutil.DayKey(s.PlayedAt)
		byDay[key] = append(byDay[key], s)
	}

	keys := make([]string, 0, len(byDay))
	for key := range byDay {
		keys = append(keys, key)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))

	days := make([]ExportDay, 0, len(keys))
	for _, key := range keys {
		daySessions := byDay[key]
		day := ExportDay{
			Date:             key,
			PersonalStats:    summarizeDay(daySessions),
			PerCategoryStats: sumCategories(daySessions),
			GameHistory:      daySessions,
		}
		if len(daySessions) > 0 {
			last := daySessions[0]
			day.LastGame = &last
		}
		days = append(days, day)
	}
	return days
}

func summarizeDay(sessions []stats.GameSession) stats.PeriodStats {
	ps := stats.PeriodStats{TimeFrame: stats.TimeFrameDay, GamesPlayed: len(sessions)}
	var scoreSum int64
	var correct, total int
	for _, s := range sessions {
		scoreSum += int64(s.Score)
		if s.Score > ps.BestScore {
			ps.BestScore = s.Score
		}
		correct += s.CorrectCount
		total += s.Exercises()
	}
	if len(sessions) > 0 {
		ps.AverageScore = float64(scoreSum) / float64(len(sessions))
	}
	if total > 0 {
		ps.Accuracy = float64(correct) / float64(total) * 100
	}
	return ps
}

func sumCategories(sessions []stats.GameSession) map[stats.Category]stats.CategoryResult {
	out := make(map[stats.Category]stats.CategoryResult)
	for _, s := range sessions {
		for cat, res := range s.Categories {
			cur := out[cat]
			cur.Correct += res.Correct
			cur.Total += res.Total
			out[cat] = cur
		}
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// IMPORT
// ══════════════════════════════════════════════════════════════════════════════

// ImportHandler restores a previously exported document.
type ImportHandler struct {
	users  account.Repository
	repo   stats.Repository
	logger *slog.Logger
}

// NewImportHandler creates the handler.
func NewImportHandler(users account.Repository, repo stats.Repository, logger *slog.Logger) *ImportHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImportHandler{users: users, repo: repo, logger: logger}
}

// Handle restores the aggregate from an export document. The target user must
// already exist and must match the document owner; imports never create
// accounts. The aggregate field is authoritative; when it is absent the
// aggregate is rebuilt by replaying dataByDate oldest first, which loses
// the contribution of sessions evicted from the retained window before the
// export was taken.
func (h *ImportHandler) Handle(ctx context.Context, userID string, raw []byte) (*stats.UserAggregate, error) {
	var doc ExportDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, shared.WrapError("stats", "Import", shared.ErrInvalidSnapshot, "document is not valid JSON", err)
	}
	if doc.User.ID != userID {
		return nil, shared.WrapError("stats", "Import", shared.ErrInvalidSnapshot, "document belongs to a different user", nil)
	}
	exists, err := h.users.Exists(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, shared.ErrUserNotFound
	}

	agg := doc.Aggregate
	if agg == nil {
		agg = replayDocument(userID, doc.DataByDate)
	}
	agg.UserID = userID
	if err := agg.Validate(); err != nil {
		return nil, shared.WrapError("stats", "Import", shared.ErrInvalidSnapshot, "document aggregate is malformed", err)
	}

	if err := h.repo.Save(ctx, agg); err != nil {
		return nil, err
	}
	h.logger.Info("stats imported",
		slog.String("user_id", userID),
		slog.Int("games_played", agg.GamesPlayed))
	return agg, nil
}

func replayDocument(userID string, days []ExportDay) *stats.UserAggregate {
	agg := stats.NewUserAggregate(userID)
	// Oldest day first, oldest session first inside each day.
	for i := len(days) - 1; i >= 0; i-- {
		history := days[i].GameHistory
		for j := len(history) - 1; j >= 0; j-- {
			s := history[j]
			if _, err := s.Validate(); err != nil {
				continue
			}
			agg.ApplySession(s)
		}
	}
	return agg
}
