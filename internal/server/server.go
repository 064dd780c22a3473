// Package server exposes agent runs over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/v0xg/pagepilot/internal/dispatch"
)

const (
	maxBodyBytes           = 1 << 20
	defaultShutdownTimeout = 30 * time.Second
)

// Dispatcher starts runs in the background.
type Dispatcher interface {
	Dispatch(task dispatch.Task) (string, error)
}

// Options configures the server.
type Options struct {
	// DefaultAPIKey is used when a request brings no key of its own.
	DefaultAPIKey   string
	ShutdownTimeout time.Duration
}

// Server is the HTTP front end.
type Server struct {
	dispatcher Dispatcher
	opts       Options
	logger     *zap.Logger
}

// New creates a Server.
func New(d Dispatcher, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = defaultShutdownTimeout
	}
	return &Server{dispatcher: d, opts: opts, logger: logger.Named("server")}
}

// Routes returns the HTTP handler.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/startapi", s.handleStart)

	return mux
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is canceled. In-flight requests get
// ShutdownTimeout to complete.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- httpServer.Serve(ln)
	}()
	s.logger.Info("Listening", zap.String("addr", ln.Addr().String()))

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type startRequest struct {
	Task   string `json:"task"`
	APIKey string `json:"apikey"`
}

type startResponse struct {
	Message string `json:"message"`
	RunID   string `json:"run_id"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
		return
	}

	var req startRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	req.Task = strings.TrimSpace(req.Task)
	if req.Task == "" {
		writeError(w, http.StatusBadRequest, "missing_task", "task is required")
		return
	}
	credential := req.APIKey
	if credential == "" {
		credential = s.opts.DefaultAPIKey
	}
	if credential == "" {
		writeError(w, http.StatusBadRequest, "missing_apikey", "apikey is required")
		return
	}

	runID, err := s.dispatcher.Dispatch(dispatch.Task{Goal: req.Task, Credential: credential})
	switch {
	case err == nil:
	case errors.Is(err, dispatch.ErrBusy):
		writeError(w, http.StatusServiceUnavailable, "busy", err.Error())
		return
	case errors.Is(err, dispatch.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "shutting_down", err.Error())
		return
	default:
		s.logger.Error("Could not start run", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "dispatch_failed", err.Error())
		return
	}

	s.logger.Info("Agent started", zap.String("run_id", runID))
	writeJSON(w, http.StatusOK, startResponse{Message: "Agent started.", RunID: runID})
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}
