// Package server provides the optional preview server: health, run history,
// a live MJPEG preview of annotated frames and websocket progress.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/ayusman/posetrace/internal/logger"
	"github.com/ayusman/posetrace/internal/store"
	"github.com/gorilla/mux"
)

// DefaultRunLimit is the number of runs returned by /api/runs without ?limit.
const DefaultRunLimit = 20

// Config holds the server configuration. Routes for nil dependencies are
// not registered.
type Config struct {
	Store *store.Store
	Hub   *Hub
}

// Server represents the HTTP server for posetrace.
type Server struct {
	config Config
	router *mux.Router
	start  time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		router: mux.NewRouter(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	if s.config.Store != nil {
		api.HandleFunc("/runs", s.handleListRuns).Methods(http.MethodGet)
		api.HandleFunc("/runs/{id}", s.handleGetRun).Methods(http.MethodGet)
	}

	if s.config.Hub != nil {
		api.Handle("/preview", NewStreamHandler(s.config.Hub)).Methods(http.MethodGet)
		api.Handle("/progress", NewProgressHandler(s.config.Hub)).Methods(http.MethodGet)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithComponent("server").Debug().Err(err).Msg("encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	}
	if s.config.Hub != nil {
		response["preview_clients"] = s.config.Hub.Clients()
	}
	writeJSON(w, http.StatusOK, response)
}

// handleListRuns handles GET /api/runs?limit=N.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := DefaultRunLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	runs, err := s.config.Store.Runs().List(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []*store.Run{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// handleGetRun handles GET /api/runs/{id}.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	run, err := s.config.Store.Runs().Get(id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	failures, err := s.config.Store.Runs().Failures(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if failures == nil {
		failures = []store.FrameFailure{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"run":      run,
		"failures": failures,
	})
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		// Streaming handlers end when their request context does.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithComponent("server").Info().Str("addr", addr).Msg("preview server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
