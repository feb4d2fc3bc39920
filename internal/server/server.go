// Package server exposes the gateway's HTTP surface: session lifecycle
// endpoints, the chat endpoint, and health/diagnostics.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/sherajdev/chattwelve/internal/cache"
	"github.com/sherajdev/chattwelve/internal/config"
	"github.com/sherajdev/chattwelve/internal/events"
	"github.com/sherajdev/chattwelve/internal/orchestrator"
	"github.com/sherajdev/chattwelve/internal/session"
	"github.com/sherajdev/chattwelve/internal/store"
)

// Server is the gateway's HTTP listener.
type Server struct {
	cfg          *config.Config
	store        store.Store
	gate         *session.Gate
	orchestrator *orchestrator.Orchestrator
	cache        *cache.Cache
	bus          *events.Bus
	logHandler   *events.LogHandler
	httpServer   *http.Server
	startTime    time.Time
}

func New(cfg *config.Config, s store.Store, gate *session.Gate, orch *orchestrator.Orchestrator, c *cache.Cache, bus *events.Bus, logHandler *events.LogHandler) *Server {
	srv := &Server{
		cfg:          cfg,
		store:        s,
		gate:         gate,
		orchestrator: orch,
		cache:        c,
		bus:          bus,
		logHandler:   logHandler,
		startTime:    time.Now(),
	}

	mux := http.NewServeMux()
	srv.registerRoutes(mux)

	srv.httpServer = &http.Server{
		Addr:           fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:        requestLogger(mux),
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   cfg.UpstreamTimeout + 30*time.Second,
		MaxHeaderBytes: 1 << 20,
	}
	return srv
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/sessions", s.handleCreateSession)
	mux.HandleFunc("DELETE /v1/sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("POST /v1/chat", s.handleChat)
	mux.HandleFunc("GET /v1/cache/stats", s.handleCacheStats)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /v1/admin/events", s.handleEvents)
}

type createSessionRequest struct {
	UserID   string            `json:"user_id,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type sessionResponse struct {
	ID        string `json:"id"`
	CreatedAt string `json:"created_at"`
	ExpiresAt string `json:"expires_at"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	sess, err := s.gate.Create(r.Context(), req.UserID, req.Metadata)
	if err != nil {
		slog.Error("create session failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "could not create session")
		return
	}

	writeJSON(w, http.StatusCreated, sessionResponse{
		ID:        sess.ID,
		CreatedAt: sess.CreatedAt.Format(time.RFC3339),
		ExpiresAt: s.gate.ExpiresAt(sess).Format(time.RFC3339),
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	deleted, err := s.gate.Delete(r.Context(), id)
	if err != nil {
		slog.Error("delete session failed", "session_id", id, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "could not delete session")
		return
	}
	if !deleted {
		writeJSONError(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.SessionID == "" || req.Query == "" {
		writeJSONError(w, http.StatusBadRequest, "session_id and query are required")
		return
	}
	if !session.ValidID(req.SessionID) {
		writeJSONError(w, http.StatusBadRequest, "malformed session_id")
		return
	}
	if len(req.Query) > s.cfg.MaxQueryLength {
		writeJSONError(w, http.StatusBadRequest, "query exceeds MAX_QUERY_LENGTH")
		return
	}

	resp, errEnv := s.orchestrator.ProcessChat(r.Context(), req.SessionID, req.Query)
	if errEnv != nil {
		writeJSON(w, statusForError(errEnv.Error.Code), errEnv)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func statusForError(code string) int {
	switch code {
	case "SESSION_NOT_FOUND":
		return http.StatusNotFound
	case "SESSION_EXPIRED":
		return http.StatusGone
	case "RATE_LIMITED":
		return http.StatusTooManyRequests
	case "NO_SYMBOL", "NO_INDICATOR", "MISSING_CURRENCIES", "PROCESSING_ERROR":
		return http.StatusBadRequest
	case "MCP_ERROR":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.cache.Stats(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "could not read cache stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "store": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requireAdmin gates the diagnostics endpoints behind a single shared-secret
// token, since this gateway has no per-user accounts to carry admin flags.
func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	if s.cfg.AdminToken == "" {
		writeJSONError(w, http.StatusForbidden, "admin diagnostics disabled: ADMIN_TOKEN not configured")
		return false
	}
	want := "Bearer " + s.cfg.AdminToken
	got := r.Header.Get("Authorization")
	if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
		writeJSONError(w, http.StatusForbidden, "admin access required")
		return false
	}
	return true
}

// handleEvents streams the event bus and the log ring buffer as
// Server-Sent Events: a catch-up burst of recent entries, then live ones as
// they're published.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	eventID, eventCh, recentEvents := s.bus.Subscribe()
	defer s.bus.Unsubscribe(eventID)
	for _, e := range recentEvents {
		data, _ := json.Marshal(e)
		fmt.Fprintf(w, "event: event\ndata: %s\n\n", data)
	}

	logID, logCh, recentLogs := s.logHandler.Subscribe()
	defer s.logHandler.Unsubscribe(logID)
	for _, l := range recentLogs {
		data, _ := json.Marshal(l)
		fmt.Fprintf(w, "event: log\ndata: %s\n\n", data)
	}
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-eventCh:
			if !ok {
				return
			}
			data, _ := json.Marshal(e)
			fmt.Fprintf(w, "event: event\ndata: %s\n\n", data)
			flusher.Flush()
		case l, ok := <-logCh:
			if !ok {
				return
			}
			data, _ := json.Marshal(l)
			fmt.Fprintf(w, "event: log\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}

// Run starts the server and blocks until shutdown.
func (s *Server) Run() error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", s.httpServer.Addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case sig := <-sigCh:
		slog.Info("shutdown signal received", "signal", sig)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slog.Debug("request", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr)
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				slog.Error("handler panic", "panic", rec, "stack", string(debug.Stack()))
				writeJSON(w, http.StatusInternalServerError, map[string]any{
					"answer": "Something went wrong on our end.",
					"error":  map[string]string{"code": "INTERNAL_ERROR", "message": "internal error"},
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
