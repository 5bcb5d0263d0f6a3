package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mathrunner-hub/mathrunner-stats-hub/config"
	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/application/command"
	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/application/query"
	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/application/service"
)

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// Deps bundles everything the API serves.
type Deps struct {
	Register    *command.RegisterUserHandler
	Ingest      *command.IngestSessionHandler
	Sessions    *service.SessionService
	Stats       *query.GetStatsHandler
	Leaderboard *query.GetLeaderboardHandler
	Export      *query.ExportHandler
	Importer    *query.ImportHandler
	Chat        *service.ChatService
	Flags       *config.FeatureFlags
	Hub         *Hub

	// Health checks by dependency name (postgres, redis).
	Health map[string]HealthCheck
}

// Server is the REST API plus the live feed.
type Server struct {
	config config.HTTPConfig
	logger *slog.Logger
	http   *http.Server

	register    *command.RegisterUserHandler
	ingest      *command.IngestSessionHandler
	sessions    *service.SessionService
	stats       *query.GetStatsHandler
	leaderboard *query.GetLeaderboardHandler
	export      *query.ExportHandler
	importer    *query.ImportHandler
	chat        *service.ChatService
	flags       *config.FeatureFlags
	hub         *Hub
	health      map[string]HealthCheck
}

// NewServer wires the router.
func NewServer(cfg config.HTTPConfig, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		config:      cfg,
		logger:      logger,
		register:    deps.Register,
		ingest:      deps.Ingest,
		sessions:    deps.Sessions,
		stats:       deps.Stats,
		leaderboard: deps.Leaderboard,
		export:      deps.Export,
		importer:    deps.Importer,
		chat:        deps.Chat,
		flags:       deps.Flags,
		hub:         deps.Hub,
		health:      deps.Health,
	}

	s.http = &http.Server{
		Addr:         cfg.Address(),
		Handler:      s.routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if s.config.EnableCORS {
		r.Use(corsMiddleware(s.config.AllowedOrigins))
	}
	r.Use(metricsMiddleware)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", s.handleRegister)
			r.Post("/login", s.handleLogin)
			r.Post("/logout", s.handleLogout)
		})

		r.Post("/sessions", s.handleIngestSession)

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Get("/stats", s.handleGetStats)
			r.Get("/stats/period", s.handleGetPeriodStats)
			r.Get("/export", s.handleExport)
			r.Post("/import", s.handleImport)
		})

		r.Get("/leaderboard", s.handleLeaderboard)
		r.Get("/leaderboard/{userID}", s.handleLeaderboardPosition)

		r.Post("/chat", s.handleChat)
		r.Delete("/chat/{userID}", s.handleChatReset)

		r.Get("/features", s.handleFeatures)

		if s.hub != nil {
			r.Get("/live", s.handleLive)
		}
	})

	return r
}

// handleLive hands the connection to the websocket hub, gated by the live
// feed flag.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if !s.flags.IsEnabled(config.FeatureLiveFeed, userID) {
		http.Error(w, "live feed is disabled", http.StatusServiceUnavailable)
		return
	}
	s.hub.ServeHTTP(w, r)
}

// Start blocks serving requests until Shutdown or a listener error.
func (s *Server) Start() error {
	s.logger.Info("http server listening", slog.String("addr", s.config.Address()))
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and closes the live feed.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.hub != nil {
		s.hub.Close()
	}
	return s.http.Shutdown(ctx)
}
