package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/goodtune/worklog/internal/timespan"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Config holds the API server configuration.
type Config struct {
	ListenAddr     string
	AllowedOrigins []string
}

// Server represents the JSON API server.
type Server struct {
	config   Config
	ledger   *timespan.Ledger
	server   *http.Server
	router   *mux.Router
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
	logger   zerolog.Logger
}

// NewServer creates a new API server.
func NewServer(cfg Config, ledger *timespan.Ledger, logger zerolog.Logger) *Server {
	s := &Server{
		config: cfg,
		ledger: ledger,
		router: mux.NewRouter(),
		logger: logger.With().Str("component", "api").Logger(),
	}

	s.setupRoutes()

	var handler http.Handler = s.router
	if len(cfg.AllowedOrigins) > 0 {
		// Wraps the router so preflight requests never reach route matching.
		handler = CORSMiddleware(cfg.AllowedOrigins)(handler)
	}

	s.server = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Use(LoggingMiddleware(s.logger))

	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")

	v1 := s.router.PathPrefix("/api/v1").Subrouter()

	spans := NewTimeSpanHandler(s.ledger, s.logger)
	v1.HandleFunc("/timespans/active", spans.Active).Methods("GET")
	v1.HandleFunc("/timespans/start", spans.Start).Methods("POST")
	v1.HandleFunc("/timespans/{id:[0-9]+}/pause", spans.Pause).Methods("POST")
	v1.HandleFunc("/timespans/{id:[0-9]+}/stop", spans.Stop).Methods("POST")
	v1.HandleFunc("/timespans/{id:[0-9]+}/adjust", spans.Adjust).Methods("POST")
	v1.HandleFunc("/timespans/{id:[0-9]+}", spans.Update).Methods("PUT")
	v1.HandleFunc("/timespans/{id:[0-9]+}", spans.Delete).Methods("DELETE")

	logs := NewLogHandler(s.ledger, s.logger)
	v1.HandleFunc("/logs", logs.List).Methods("GET")
	v1.HandleFunc("/logs", logs.Create).Methods("POST")
	v1.HandleFunc("/logs/uuid/{uuid}", logs.GetByUUID).Methods("GET")
	v1.HandleFunc("/logs/{id:[0-9]+}", logs.Get).Methods("GET")
	v1.HandleFunc("/logs/{id:[0-9]+}", logs.Update).Methods("PUT")
	v1.HandleFunc("/logs/{id:[0-9]+}", logs.Delete).Methods("DELETE")
	v1.HandleFunc("/logs/{id:[0-9]+}/additional-hours", logs.SetAdditionalHours).Methods("PUT")
	v1.HandleFunc("/logs/{id:[0-9]+}/timespans", logs.Spans).Methods("GET")
	v1.HandleFunc("/logs/{id:[0-9]+}/timespans", logs.CreateSpan).Methods("POST")
	v1.HandleFunc("/logs/{id:[0-9]+}/resume", logs.Resume).Methods("POST")
	v1.HandleFunc("/stats", logs.Stats).Methods("GET")
}

// Handler returns the server's root handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start binds the listen address and serves in the background.
// A bind failure is returned to the caller.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.config.ListenAddr).Msg("Starting API server")

	ln := s.listener
	if ln != nil {
		s.logger.Debug().Msg("Using systemd socket-activated API listener")
	} else {
		var err error
		ln, err = net.Listen("tcp", s.config.ListenAddr)
		if err != nil {
			return fmt.Errorf("api server listen on %s: %w", s.config.ListenAddr, err)
		}
		s.listener = ln
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("API server error")
		}
	}()

	return nil
}

// Addr returns the bound address once Start has succeeded.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
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
	status := map[string]interface{}{"status": "ok"}

	active, err := s.ledger.ActiveSpan(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Health check failed to read storage")
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"status": "unavailable"})
		return
	}
	status["tracking"] = active != nil

	writeJSON(w, http.StatusOK, status)
}
