// Package server exposes the advice pipeline over HTTP and a websocket
// progress stream.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"aramcoach/internal/advice"
	"aramcoach/internal/facts"
	"aramcoach/internal/pipeline"
	"aramcoach/internal/strategy"
	"aramcoach/internal/threat"
)

const maxBodyBytes = 1 << 20

// PatchLister enumerates the patches a store can serve
type PatchLister interface {
	Patches() ([]string, error)
}

// Server routes advice requests to a pipeline controller
type Server struct {
	ctrl     *pipeline.Controller
	store    facts.Store
	patches  PatchLister
	logger   *zap.Logger
	upgrader websocket.Upgrader
	mux      *http.ServeMux
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l.Named("server") }
}

// WithPatchLister enables GET /api/patches
func WithPatchLister(l PatchLister) Option {
	return func(s *Server) { s.patches = l }
}

// New creates a server. store is used for patch lookups outside a run.
func New(ctrl *pipeline.Controller, store facts.Store, opts ...Option) *Server {
	s := &Server{
		ctrl:   ctrl,
		store:  store,
		logger: zap.NewNop(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		mux: http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mux.HandleFunc("POST /pre_game_advice", s.handlePreGame)
	s.mux.HandleFunc("POST /ingame_qa", s.handleInGame)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /api/patches", s.handlePatches)
	s.mux.HandleFunc("GET /api/patches/{patch}", s.handlePatch)
	s.mux.HandleFunc("GET /ws/advice", s.handleWebSocket)
	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is done, then shuts down within
// shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// ErrorBody is the payload of every non-2xx response
type ErrorBody struct {
	Error   string               `json:"error"`
	Message string               `json:"message,omitempty"`
	Patch   string               `json:"patch,omitempty"`
	Verify  *advice.VerifyResult `json:"verify,omitempty"`
}

// Classify maps a run outcome to an HTTP status and error body. A nil error
// with a failed verification is reported as verification_failed.
func Classify(st *pipeline.State, err error) (int, ErrorBody) {
	var patch string
	if st != nil {
		patch = st.Patch
	}

	switch {
	case err == nil && st != nil && !st.Succeeded():
		return http.StatusUnprocessableEntity, ErrorBody{Error: "verification_failed", Verify: st.Verify}
	case errors.Is(err, pipeline.ErrInvalidRequest):
		return http.StatusBadRequest, ErrorBody{Error: "invalid_request", Message: err.Error()}
	case errors.Is(err, facts.ErrPatchNotFound):
		return http.StatusNotFound, ErrorBody{Error: "patch_not_found", Patch: patch}
	case errors.Is(err, strategy.ErrStrategyGenerationFailed):
		return http.StatusBadGateway, ErrorBody{Error: "strategy_generation_failed", Message: err.Error()}
	case errors.Is(err, threat.ErrThreatIncomplete):
		return http.StatusBadGateway, ErrorBody{Error: "threat_incomplete", Message: err.Error()}
	}
	msg := "unknown failure"
	if err != nil {
		msg = err.Error()
	}
	return http.StatusInternalServerError, ErrorBody{Error: "internal", Message: msg}
}

func (s *Server) handlePreGame(w http.ResponseWriter, r *http.Request) {
	var req pipeline.PreGameRequest
	if !s.decode(w, r, &req) {
		return
	}
	st, err := s.ctrl.PreGame(r.Context(), req, nil)
	s.respond(w, st, err)
}

func (s *Server) handleInGame(w http.ResponseWriter, r *http.Request) {
	var req pipeline.InGameRequest
	if !s.decode(w, r, &req) {
		return
	}
	st, err := s.ctrl.InGame(r.Context(), req, nil)
	s.respond(w, st, err)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorBody{Error: "invalid_request", Message: "malformed JSON body: " + err.Error()})
		return false
	}
	return true
}

func (s *Server) respond(w http.ResponseWriter, st *pipeline.State, err error) {
	if st != nil {
		w.Header().Set("X-Run-ID", st.RunID)
	}
	if err == nil && st != nil && st.Succeeded() {
		writeJSON(w, http.StatusOK, st.Final)
		return
	}

	status, body := Classify(st, err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("advice request failed", zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, body)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePatches(w http.ResponseWriter, r *http.Request) {
	if s.patches == nil {
		writeJSON(w, http.StatusNotImplemented, ErrorBody{Error: "not_supported", Message: "patch listing is not available for this store"})
		return
	}
	patches, err := s.patches.Patches()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorBody{Error: "internal", Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"patches": patches})
}

// PatchSummary describes the facts held for one patch
type PatchSummary struct {
	Patch     string `json:"patch"`
	Items     int    `json:"items"`
	Champions int    `json:"champions"`
	Runes     int    `json:"runes"`
	Guides    int    `json:"guides"`
}

func (s *Server) handlePatch(w http.ResponseWriter, r *http.Request) {
	patch := r.PathValue("patch")
	pf, err := s.store.Load(r.Context(), patch)
	if errors.Is(err, facts.ErrPatchNotFound) {
		writeJSON(w, http.StatusNotFound, ErrorBody{Error: "patch_not_found", Patch: patch})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorBody{Error: "internal", Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, PatchSummary{
		Patch:     pf.Patch,
		Items:     len(pf.Items),
		Champions: len(pf.Champions),
		Runes:     len(pf.Runes),
		Guides:    len(pf.GuideDocs),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
