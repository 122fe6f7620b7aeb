// Package server is the composition root: it opens the backend, builds the
// services, controllers and handlers, mounts the routes and runs the HTTP
// server until a shutdown signal arrives.
//
// DEPENDENCY INJECTION FLOW:
//
//	config.Config → sqlite.DB (+ realtime.Broker) → services → controllers → handlers → chi routes
//
// Each layer only receives what it needs: services get repository
// interfaces, handlers get small service interfaces.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/mentorflow/internal/auth"
	"github.com/sakif/mentorflow/internal/config"
	"github.com/sakif/mentorflow/internal/controller"
	"github.com/sakif/mentorflow/internal/guard"
	"github.com/sakif/mentorflow/internal/handler"
	"github.com/sakif/mentorflow/internal/lockout"
	"github.com/sakif/mentorflow/internal/metrics"
	"github.com/sakif/mentorflow/internal/middleware"
	"github.com/sakif/mentorflow/internal/model"
	"github.com/sakif/mentorflow/internal/realtime"
	sqliteRepo "github.com/sakif/mentorflow/internal/repository/sqlite"
	"github.com/sakif/mentorflow/internal/service"
)

const shutdownTimeout = 30 * time.Second

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the database and the change-feed broker. Both are closed
// on shutdown, after in-flight requests have drained.
type Server struct {
	router  *chi.Mux
	config  *config.Config
	logger  *slog.Logger
	db      *sqliteRepo.DB
	broker  *realtime.Broker
	metrics *metrics.Metrics
	limiter *middleware.RateLimiter

	authSub *service.Subscription

	// base is the parent of every request context; cancelling it ends the
	// long-lived WebSocket streams, which http.Server.Shutdown does not track.
	base       context.Context
	cancelBase context.CancelFunc
}

// Option customises a Server, mostly for tests.
type Option func(*options)

type options struct {
	passwords *auth.PasswordService
}

// WithPasswordService swaps the bcrypt service (tests use a low cost).
func WithPasswordService(p *auth.PasswordService) Option {
	return func(o *options) { o.passwords = p }
}

// New wires every dependency.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Server, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.passwords == nil {
		o.passwords = auth.NewPasswordService()
	}

	broker := realtime.NewBroker(logger)
	db, err := sqliteRepo.New(cfg.BackendURL, sqliteRepo.WithPublisher(broker))
	if err != nil {
		broker.Close()
		return nil, fmt.Errorf("opening backend: %w", err)
	}

	base, cancel := context.WithCancel(context.Background())
	s := &Server{
		router:     chi.NewRouter(),
		config:     cfg,
		logger:     logger,
		db:         db,
		broker:     broker,
		metrics:    metrics.New(),
		limiter:    middleware.NewRateLimiter(cfg.LoginRatePerMinute),
		base:       base,
		cancelBase: cancel,
	}

	if err := s.setupRoutes(o); err != nil {
		s.close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// Handler exposes the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// setupRoutes builds the services and mounts every route.
//
// ROUTE STRUCTURE:
//
//	GET  /healthz, /metrics
//	/auth/*          sign-up, login (rate limited), logout, GitHub OAuth
//	/api/session     current session (optional auth)
//	/api/*           signed-in routes
//	/api/dashboard   + complete profile
//	/api/admin/*     + admin role
//
// MIDDLEWARE ORDER:
// RequestID → RealIP → Logger → Recoverer → Metrics → CORS, then the apikey
// check on everything except health, metrics and the OAuth redirects.
func (s *Server) setupRoutes(o options) error {
	cfg := s.config

	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.SessionTTL)
	if err != nil {
		return err
	}

	// === SERVICES ===
	policy := lockout.NewPolicy(s.db.LoginAttempts())
	authService := service.NewAuthService(s.db, tokens, o.passwords, policy, s.metrics, s.logger)
	profileService := service.NewProfileService(s.db, s.logger)
	taskService := service.NewTaskService(s.db, s.db, s.db, s.metrics, s.logger)
	notificationService := service.NewNotificationService(s.db, s.db, s.metrics, s.logger)
	leaderboardService := service.NewLeaderboardService(s.db, s.db, s.logger)
	dashboardService := service.NewDashboardService(s.db, s.db, s.db, s.logger)

	s.authSub = authService.SubscribeAuthStateChanges(func(event service.AuthEvent, userID string, _ *model.Session) {
		s.logger.Info("auth state changed", slog.String("event", string(event)), slog.String("userID", userID))
	})

	// === CONTROLLERS ===
	boards, err := controller.NewRegistry(cfg.BoardCacheSize, taskService, cfg.ProofEmail, s.logger)
	if err != nil {
		return err
	}

	// === HANDLERS ===
	var github handler.GitHubFlow
	if cfg.GitHubEnabled() {
		github = auth.NewGitHubProvider(cfg.GitHubClientID, cfg.GitHubClientSecret, cfg.GitHubCallbackURL)
	} else {
		s.logger.Info("GitHub sign-in disabled (GITHUB_CLIENT_ID not set)")
	}
	authHandler := handler.NewAuthHandler(authService, github, boards, tokens.TTL(), cfg.SecureCookies, s.logger)
	profileHandler := handler.NewProfileHandler(profileService, dashboardService, s.logger)
	taskHandler := handler.NewTaskHandler(boards, s.logger)
	adminHandler := handler.NewAdminHandler(taskService, notificationService, s.logger)
	notificationHandler := handler.NewNotificationHandler(notificationService, s.logger)
	realtimeHandler := handler.NewRealtimeHandler(s.broker, leaderboardService,
		realtime.Upgrader(cfg.AllowedOrigins), cfg.LeaderboardRefresh, s.metrics, s.logger)

	// === GLOBAL MIDDLEWARE ===
	r := s.router
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Metrics(s.metrics))
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	r.Get("/healthz", handler.HandleHealth(s.db))
	r.Handle("/metrics", s.metrics.Handler())

	// OAuth redirects come from the browser, which carries no apikey.
	r.Get("/auth/github/login", authHandler.HandleGitHubLogin)
	r.Get("/auth/github/callback", authHandler.HandleGitHubCallback)

	r.Group(func(r chi.Router) {
		r.Use(middleware.APIKey(cfg.BackendAnonKey))

		r.Route("/auth", func(r chi.Router) {
			r.With(s.limiter.Middleware).Post("/signup", authHandler.HandleSignUp)
			r.With(s.limiter.Middleware).Post("/login", authHandler.HandleLogin)
			r.With(auth.OptionalAuth(tokens)).Post("/logout", authHandler.HandleLogout)
		})

		r.With(auth.OptionalAuth(tokens)).Get("/api/session", authHandler.HandleSession)

		r.Route("/api", func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens))

			r.Patch("/session/metadata", authHandler.HandleUpdateMetadata)
			r.Get("/profile", profileHandler.HandleGet)
			r.Put("/profile", profileHandler.HandleUpdate)

			r.With(guard.Require(profileService, "", s.logger)).Get("/dashboard", profileHandler.HandleDashboard)

			r.Get("/tasks", taskHandler.HandleList)
			r.Post("/tasks/{id}/select", taskHandler.HandleSelect)
			r.Delete("/tasks/selected", taskHandler.HandleClose)
			r.Post("/tasks/advance", taskHandler.HandleAdvance)
			r.Post("/tasks/confirm", taskHandler.HandleConfirm)
			r.Post("/tasks/retry", taskHandler.HandleRetry)

			r.Get("/leaderboard", realtimeHandler.HandleLeaderboard)
			r.Get("/leaderboard/stream", realtimeHandler.HandleLeaderboardStream)
			r.Get("/realtime", realtimeHandler.HandleStream)

			r.Get("/notifications", notificationHandler.HandleList)
			r.Get("/notifications/unread", notificationHandler.HandleUnread)
			r.Post("/notifications/read-all", notificationHandler.HandleMarkAllRead)
			r.Post("/notifications/{id}/read", notificationHandler.HandleMarkRead)

			r.Route("/admin", func(r chi.Router) {
				r.Use(guard.Require(profileService, model.RoleAdmin, s.logger))

				r.Get("/tasks", adminHandler.HandleListTemplates)
				r.Post("/tasks", adminHandler.HandleCreateTemplate)
				r.Put("/tasks/{id}", adminHandler.HandleUpdateTemplate)
				r.Delete("/tasks/{id}", adminHandler.HandleDeleteTemplate)
				r.Get("/reviews", adminHandler.HandlePending)
				r.Post("/reviews/{id}/approve", adminHandler.HandleApprove)
				r.Post("/reviews/{id}/reject", adminHandler.HandleReject)
				r.Post("/announcements", adminHandler.HandleAnnounce)
				r.Get("/realtime", realtimeHandler.HandleAdminStream)
			})
		})
	})

	return nil
}

// Start runs the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting connections and cancel the base context (ends streams)
//  2. Wait for in-flight requests to finish (30s timeout)
//  3. Close the broker and the database
func (s *Server) Start() error {
	defer s.close()

	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", s.config.Port),
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: it would cut WebSocket streams. Handlers bound
		// their own work with the request context.
		IdleTimeout: 60 * time.Second,
		BaseContext: func(net.Listener) context.Context { return s.base },
	}

	go s.sweepLimiter()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("backend", s.config.BackendURL),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		s.cancelBase()

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

// sweepLimiter drops idle rate-limit entries once a minute.
func (s *Server) sweepLimiter() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-s.base.Done():
			return
		case <-ticker.C:
			if n := s.limiter.Sweep(); n > 0 {
				s.logger.Debug("rate limiter swept", slog.Int("removed", n))
			}
		}
	}
}

// Close releases the server's resources without serving. Start calls it on
// the way out; tests call it directly.
func (s *Server) Close() error {
	return s.close()
}

func (s *Server) close() error {
	s.cancelBase()
	if s.authSub != nil {
		s.authSub.Unsubscribe()
	}
	s.broker.Close()
	return s.db.Close()
}
