// Package portal serves the voice assistant to browsers over a websocket.
// Each connection runs its own dialogue session, with the browser acting as
// both the speech synthesizer and the speech recognizer.
package portal

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/normanking/procurevoice/internal/archive"
	"github.com/normanking/procurevoice/internal/config"
	"github.com/normanking/procurevoice/internal/dialogue"
	"github.com/normanking/procurevoice/internal/lang"
	"github.com/normanking/procurevoice/internal/metrics"
	"github.com/normanking/procurevoice/internal/stt"
	"github.com/normanking/procurevoice/internal/training"
	"github.com/normanking/procurevoice/internal/tts"
)

// Options configures a Server.
type Options struct {
	Server config.ServerConfig
	Speech tts.Config
	Filter *stt.Filter

	// Resolver is shared by all sessions and must be safe for concurrent use.
	Resolver        dialogue.Resolver
	Training        training.Source
	TrainingTimeout time.Duration

	// Archive is optional.
	Archive *archive.Store

	Lang  lang.Tag
	Sound bool
}

// Server is the portal HTTP server.
type Server struct {
	opts     Options
	router   *mux.Router
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	mu       sync.RWMutex
	sessions map[*session]struct{}
}

// New creates a portal server.
func New(opts Options, logger zerolog.Logger) *Server {
	if opts.Lang == "" {
		opts.Lang = lang.Default
	}
	if opts.Training != nil {
		opts.Training = training.Shared(opts.Training)
	}

	s := &Server{
		opts:     opts,
		logger:   logger.With().Str("component", "portal").Logger(),
		sessions: make(map[*session]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(opts.Server.AllowedOrigins),
	}

	r := mux.NewRouter()
	r.Use(s.instrument)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/sessions", s.handleSessions).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/turns", s.handleSessionTurns).Methods(http.MethodGet)

	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.opts.Server
	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info().Str("addr", cfg.Addr).Msg("Starting portal server")

	errChan := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("portal server: %w", err)
	case <-ctx.Done():
		timeout := cfg.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		s.logger.Info().Msg("Shutting down portal server")
		s.closeSessions()
		return httpServer.Shutdown(shutdownCtx)
	}
}

// Sessions returns the number of connected sessions.
func (s *Server) Sessions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *Server) track(sess *session) {
	s.mu.Lock()
	s.sessions[sess] = struct{}{}
	s.mu.Unlock()
	metrics.ActiveSessions.Inc()
}

func (s *Server) untrack(sess *session) {
	s.mu.Lock()
	delete(s.sessions, sess)
	s.mu.Unlock()
	metrics.ActiveSessions.Dec()
}

func (s *Server) closeSessions() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for sess := range s.sessions {
		sess.close()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.Sessions(),
		"archive":  s.opts.Archive != nil,
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if s.opts.Archive == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "archive disabled"})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	sessions, err := s.opts.Archive.Sessions(r.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list sessions")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list sessions"})
		return
	}
	if sessions == nil {
		sessions = []archive.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleSessionTurns(w http.ResponseWriter, r *http.Request) {
	if s.opts.Archive == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "archive disabled"})
		return
	}
	id := mux.Vars(r)["id"]
	turns, err := s.opts.Archive.SessionTurns(r.Context(), id)
	if err != nil {
		s.logger.Error().Err(err).Str("session", id).Msg("Failed to load turns")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load turns"})
		return
	}
	if len(turns) == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}
	writeJSON(w, http.StatusOK, turns)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		// gorilla's default same-origin check
		return nil
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

// statusRecorder captures the response status for metrics and logs.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tmpl
			}
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		metrics.RequestCount.WithLabelValues(r.Method, endpoint, strconv.Itoa(rec.status)).Inc()
		if endpoint != "/ws" {
			metrics.RequestDuration.WithLabelValues(r.Method, endpoint).Observe(elapsed.Seconds())
		}
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", elapsed).
			Msg("HTTP request")
	})
}
