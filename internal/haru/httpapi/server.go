// Package httpapi exposes the diary service over HTTP. Request identity
// arrives in the X-User-ID header, set by the authenticating proxy in
// front of this service; the handlers trust it.
package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/haru-ai/haru/common/trace"
	"github.com/haru-ai/haru/common/version"
	"github.com/haru-ai/haru/internal/haru/app"
	"github.com/haru-ai/haru/internal/haru/observability"
)

// Server is the HTTP front of the diary service.
type Server struct {
	addr      string
	app       *app.App
	startedAt time.Time
	server    *http.Server
	mux       *http.ServeMux
}

// NewServer creates and configures the server (does not start it).
func NewServer(addr string, application *app.App) *Server {
	mux := http.NewServeMux()
	s := &Server{
		addr:      addr,
		app:       application,
		startedAt: time.Now(),
		mux:       mux,
	}

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /api/session/start", s.withUser(s.handleSessionStart))
	mux.HandleFunc("POST /api/session/{id}/message", s.withUser(s.handleSessionMessage))
	mux.HandleFunc("POST /api/session/{id}/end", s.withUser(s.handleSessionEnd))
	mux.HandleFunc("DELETE /api/session/{id}", s.withUser(s.handleSessionDiscard))

	mux.HandleFunc("GET /api/diaries", s.withUser(s.handleListEntries))
	mux.HandleFunc("GET /api/diaries/{id}", s.withUser(s.handleGetEntry))
	mux.HandleFunc("DELETE /api/diaries/{id}", s.withUser(s.handleDeleteEntry))
	mux.HandleFunc("PUT /api/diaries/{id}/summary", s.withUser(s.handleUpdateSummary))
	mux.HandleFunc("POST /api/diaries/{id}/images", s.withUser(s.handleGenerateImage))
	mux.HandleFunc("PUT /api/diaries/{id}/images/selected", s.withUser(s.handleSelectImage))
	mux.HandleFunc("POST /api/diaries/{id}/bgm", s.withUser(s.handleGenerateBGM))
	mux.HandleFunc("GET /api/diaries/{id}/media/{path}", s.withUser(s.handleMedia))

	mux.HandleFunc("GET /api/stats/emotions", s.withUser(s.handleStatsEmotions))
	mux.HandleFunc("GET /api/stats/best-media", s.withUser(s.handleStatsBestMedia))
	mux.HandleFunc("GET /api/stats/tags", s.withUser(s.handleStatsTags))

	return s
}

// ServeHTTP implements http.Handler so the server can be tested without a
// live network listener (e.g. with httptest.NewRecorder). Every request is
// tagged with a trace ID that propagates to downstream log lines.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := trace.WithTraceID(r.Context(), trace.GenerateID())
	r = r.WithContext(ctx)

	start := time.Now()
	s.mux.ServeHTTP(w, r)
	observability.WithTrace(ctx).Debug("request served",
		"method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
}

// Start begins listening in the background. Blocks until the listener is
// established so the caller knows the port is open before returning.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("httpapi: listen %s: %w", s.addr, err)
	}

	s.server = &http.Server{
		Handler:      s,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Minute, // generation endpoints are slow
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("http server listening", "addr", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("http server stopped", "err", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			slog.Warn("http server shutdown error", "err", err)
		}
	}()

	return nil
}

// Stop shuts down the HTTP server.
func (s *Server) Stop() {
	if s.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		slog.Warn("http server shutdown error", "err", err)
	}
}

// userHandler is a handler that additionally receives the verified caller.
type userHandler func(w http.ResponseWriter, r *http.Request, userID string)

// withUser extracts the caller identity and rejects anonymous requests.
func (s *Server) withUser(h userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing X-User-ID header"})
			return
		}
		h(w, r, userID)
	}
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Version: version.Version,
		Commit:  version.GitCommit,
	})
}
