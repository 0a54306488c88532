// Package api exposes reminders and key usage over HTTP.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Config holds the API server configuration.
type Config struct {
	ListenAddr string
	Token      string // optional bearer token for /api routes
	AutoRotate bool
	ReportPath string // usage report file rewritten whenever the report is read
}

// Server represents the API HTTP server.
type Server struct {
	config    Config
	reminders Reminders
	ledger    Ledger
	server    *http.Server
	router    *mux.Router
	listener  net.Listener // Optional pre-created listener (for systemd socket activation)
	logger    zerolog.Logger
}

// NewServer creates a new API server.
func NewServer(cfg Config, reminders Reminders, l Ledger, logger zerolog.Logger) *Server {
	router := mux.NewRouter()

	s := &Server{
		config:    cfg,
		reminders: reminders,
		ledger:    l,
		router:    router,
		logger:    logger.With().Str("component", "api").Logger(),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Use(LoggingMiddleware(s.logger))

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	apiRouter := s.router.PathPrefix("/api").Subrouter()
	if s.config.Token != "" {
		apiRouter.Use(TokenMiddleware(s.config.Token))
	}

	reminderHandler := NewReminderHandler(s.reminders, s.logger)
	apiRouter.HandleFunc("/reminders", reminderHandler.List).Methods("GET")
	apiRouter.HandleFunc("/reminders", reminderHandler.Create).Methods("POST")
	apiRouter.HandleFunc("/reminders/command", reminderHandler.Command).Methods("POST")
	apiRouter.HandleFunc("/reminders/fired", reminderHandler.Fired).Methods("GET")
	apiRouter.HandleFunc("/reminders/{id}", reminderHandler.Delete).Methods("DELETE")

	usageHandler := NewUsageHandler(s.ledger, s.config.AutoRotate, s.config.ReportPath, s.logger)
	apiRouter.HandleFunc("/usage", usageHandler.Get).Methods("GET")
	apiRouter.HandleFunc("/usage", usageHandler.Record).Methods("POST")
	apiRouter.HandleFunc("/usage/synthesis", usageHandler.Synthesis).Methods("POST")
	apiRouter.HandleFunc("/usage/query", usageHandler.Query).Methods("POST")

	apiRouter.HandleFunc("/keys/current", usageHandler.CurrentKey).Methods("GET")
	apiRouter.HandleFunc("/keys/rotate", usageHandler.Rotate).Methods("POST")
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the API server.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.config.ListenAddr).Msg("Starting API server")

	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated API listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("API server error")
		}
	}()

	return nil
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping API server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}

	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:           "ok",
		PendingReminders: len(s.reminders.Pending()),
		ActiveKey:        s.ledger.CurrentKey().Name,
	})
}
