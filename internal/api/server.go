// Package api is the HTTP control surface: read-only views of the bot state
// plus authenticated endpoints to patch parameters, pause, resume and force
// a tick.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"base-autobot/internal/bot"
	"base-autobot/internal/metrics"

	"go.uber.org/zap"
)

// Server wraps the control API.
type Server struct {
	httpServer *http.Server
	bot        *bot.Bot
	adminToken string
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewServer creates a server bound to addr. An empty adminToken leaves the
// mutating endpoints open.
func NewServer(addr string, b *bot.Bot, adminToken string, m *metrics.Metrics, logger *zap.Logger) *Server {
	s := &Server{
		bot:        b,
		adminToken: adminToken,
		metrics:    m,
		logger:     logger,
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleSummary)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("GET /config", s.handleGetConfig)
	mux.HandleFunc("POST /config", s.requireAuth(s.handlePatchConfig))
	mux.HandleFunc("/state", s.handleState)
	mux.HandleFunc("GET /portfolio", s.handleGetPortfolio)
	mux.HandleFunc("POST /portfolio", s.requireAuth(s.handlePatchPortfolio))
	mux.HandleFunc("POST /pause", s.requireAuth(s.handlePause(true)))
	mux.HandleFunc("POST /resume", s.requireAuth(s.handlePause(false)))
	mux.HandleFunc("POST /run-once", s.requireAuth(s.handleRunOnce))
	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.HandleFunc("/", s.handleNotFound)
	return mux
}

// Start begins serving HTTP requests in the background.
func (s *Server) Start(_ context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	s.logger.Sugar().Infof("control api listening on %s", s.httpServer.Addr)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("control api stopped", zap.Error(err))
		}
	}()
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("write response", zap.Error(err))
	}
}

// requireAuth accepts "Bearer <token>" or the bare token in either the
// Authorization or x-admin-token header.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.adminToken == "" {
			next(w, r)
			return
		}
		header := r.Header.Get("Authorization")
		if header == "" {
			header = r.Header.Get("x-admin-token")
		}
		token := header
		if strings.HasPrefix(header, "Bearer ") {
			token = strings.TrimPrefix(header, "Bearer ")
		}
		if header == "" || token != s.adminToken {
			s.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next(w, r)
	}
}

// decodeBody returns nil when the request is not JSON.
func decodeBody(r *http.Request) (map[string]any, error) {
	if !strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		return nil, nil
	}
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return nil, err
	}
	return payload, nil
}
