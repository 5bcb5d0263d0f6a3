package http

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mathrunner-hub/mathrunner-stats-hub/config"
	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/application/command"
	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/shared"
	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/stats"
)

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST/RESPONSE SHAPES
// ══════════════════════════════════════════════════════════════════════════════

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type logoutRequest struct {
	UserID string `json:"userId"`
}

type userResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type chatRequest struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Message  string `json:"message"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

// ══════════════════════════════════════════════════════════════════════════════
// AUTH
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, s.logger, err)
		return
	}
	user, err := s.register.Handle(r.Context(), command.RegisterUserCommand{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, userResponse{ID: user.ID, Username: user.Username, Email: user.Email})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, s.logger, err)
		return
	}
	user, err := s.sessions.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, userResponse{ID: user.ID, Username: user.Username, Email: user.Email})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, s.logger, err)
		return
	}
	if req.UserID == "" {
		respondError(w, s.logger, shared.WrapError("http", "Logout", shared.ErrInvalidInput, "userId is required", nil))
		return
	}
	s.sessions.Logout(r.Context(), req.UserID)
	respondJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSIONS AND STATS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleIngestSession(w http.ResponseWriter, r *http.Request) {
	var session stats.GameSession
	if err := decodeBody(r, &session); err != nil {
		respondError(w, s.logger, err)
		return
	}
	res, err := s.ingest.Handle(r.Context(), command.IngestSessionCommand{Session: session})
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"gamesPlayed": res.Aggregate.GamesPlayed,
		"bestScore":   res.Aggregate.BestScore,
		"newBest":     res.NewBest,
		"metrics":     res.Metrics,
	})
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	snap, err := s.stats.Handle(r.Context(), userID)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func (s *Server) handleGetPeriodStats(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if !s.flags.IsEnabled(config.FeaturePeriodStats, userID) {
		respondError(w, s.logger, shared.WrapError("http", "Period", shared.ErrServiceUnavailable, "period stats are disabled", nil))
		return
	}

	frame := stats.TimeFrame(r.URL.Query().Get("frame"))
	switch frame {
	case stats.TimeFrameDay, stats.TimeFrameAll:
	case "":
		frame = stats.TimeFrameAll
	default:
		respondError(w, s.logger, shared.WrapError("http", "Period", shared.ErrInvalidInput, "frame must be day or all", nil))
		return
	}

	ps, err := s.stats.Period(r.Context(), userID, frame)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, ps)
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if !s.flags.IsEnabled(config.FeatureLeaderboard, "") {
		respondError(w, s.logger, shared.WrapError("http", "Leaderboard", shared.ErrServiceUnavailable, "leaderboard is disabled", nil))
		return
	}
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}
	entries, err := s.leaderboard.Handle(r.Context(), limit)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

func (s *Server) handleLeaderboardPosition(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	entry, ok, err := s.leaderboard.Position(r.Context(), userID)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	if !ok {
		respondError(w, s.logger, shared.WrapError("http", "Leaderboard", shared.ErrNotFound, "user is not ranked", nil))
		return
	}
	respondJSON(w, http.StatusOK, entry)
}

// ══════════════════════════════════════════════════════════════════════════════
// EXPORT / IMPORT
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	switch r.URL.Query().Get("format") {
	case "csv":
		if !s.flags.IsEnabled(config.FeatureExportCSV, userID) {
			respondError(w, s.logger, shared.WrapError("http", "Export", shared.ErrServiceUnavailable, "CSV export is disabled", nil))
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="sessions.csv"`)
		if err := s.export.ExportCSV(r.Context(), userID, w); err != nil {
			s.logger.Error("csv export failed", "user_id", userID, "error", err)
		}
	default:
		if !s.flags.IsEnabled(config.FeatureExportJSON, userID) {
			respondError(w, s.logger, shared.WrapError("http", "Export", shared.ErrServiceUnavailable, "JSON export is disabled", nil))
			return
		}
		doc, err := s.export.ExportJSON(r.Context(), userID)
		if err != nil {
			respondError(w, s.logger, err)
			return
		}
		respondJSON(w, http.StatusOK, doc)
	}
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	defer r.Body.Close()

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 8<<20))
	if err != nil {
		respondError(w, s.logger, shared.WrapError("http", "Import", shared.ErrInvalidInput, "body too large or unreadable", err))
		return
	}

	agg, err := s.importer.Handle(r.Context(), userID, raw)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"gamesPlayed": agg.GamesPlayed,
		"bestScore":   agg.BestScore,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// CHAT
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, s.logger, err)
		return
	}
	if req.UserID == "" {
		respondError(w, s.logger, shared.WrapError("http", "Chat", shared.ErrInvalidInput, "userId is required", nil))
		return
	}
	reply, err := s.chat.Send(r.Context(), req.UserID, req.Username, req.Message)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, chatResponse{Reply: reply})
}

func (s *Server) handleChatReset(w http.ResponseWriter, r *http.Request) {
	s.chat.Reset(chi.URLParam(r, "userID"))
	respondJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// ══════════════════════════════════════════════════════════════════════════════
// OPS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	for name, check := range s.health {
		if err := check(r.Context()); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "degraded",
				"failed": name,
			})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleFeatures(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.flags.All())
}
