package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// Server exposes a recorder's /metrics endpoint over HTTP.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the logger for server lifecycle messages.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a metrics server listening on addr.
func NewServer(addr string, recorder *Recorder, opts ...ServerOption) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", recorder.Handler())

	s := &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start serves until ctx is cancelled, then shuts down gracefully. The listen
// loop runs in a goroutine; Start returns immediately.
func (s *Server) Start(ctx context.Context) {
	s.logger.Info("Starting metrics server", "addr", s.srv.Addr)

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Metrics server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		// Parent context is cancelled; shutdown needs a fresh one.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Metrics server shutdown failed", "error", err)
		}
	}()
}
