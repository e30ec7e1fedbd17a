// Package web serves the feed control API.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/justestif/go-reels-feed/internal/metrics"
)

// DefaultAddr is the default listen address.
const DefaultAddr = "127.0.0.1:8080"

// ServerConfig holds server configuration.
type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	RequestsPerMin  int // per client IP on /api; 0 disables limiting
}

// Server is the HTTP server for the control API.
type Server struct {
	router          chi.Router
	server          *http.Server
	handlers        *Handlers
	logger          zerolog.Logger
	shutdownTimeout time.Duration
}

// NewServer creates a server routing to h.
func NewServer(cfg ServerConfig, h *Handlers, logger zerolog.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	s := &Server{
		router:          chi.NewRouter(),
		handlers:        h,
		logger:          logger,
		shutdownTimeout: cfg.ShutdownTimeout,
	}
	s.setupMiddleware()
	s.setupRoutes(cfg.RequestsPerMin)

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
}

func (s *Server) setupRoutes(requestsPerMin int) {
	s.router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	})
	s.router.Handle("/metrics", metrics.Handler())

	s.router.Route("/api", func(r chi.Router) {
		if requestsPerMin > 0 {
			r.Use(rateLimit(requestsPerMin, time.Minute))
		}

		r.Get("/feed", s.handlers.Feed)
		r.Post("/feed/refresh", s.handlers.Refresh)
		r.Post("/feed/more", s.handlers.LoadMore)
		r.Put("/feed/index", s.handlers.SetIndex)
		r.Post("/feed/like", s.handlers.ToggleLike)
		r.Post("/feed/discover", s.handlers.Discover)
		r.Post("/feed/visibility", s.handlers.SetVisibility)

		r.Get("/vault", s.handlers.Vault)
		r.Post("/vault/download", s.handlers.DownloadVault)

		r.Post("/playback/{action}", s.handlers.Playback)
		r.Put("/playback/seek", s.handlers.Seek)

		r.Get("/search", s.handlers.Search)

		r.Get("/preferences", s.handlers.Preferences)
		r.Put("/preferences/languages", s.handlers.SetLanguages)
	})
}

// Handler returns the routed handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until the server is shut down.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("starting server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Run serves until ctx is done or an interrupt arrives, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info().Msg("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.logger.Info().Msg("server stopped")
	return nil
}
