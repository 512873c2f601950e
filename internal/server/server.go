// Package server exposes the job control surface over HTTP: job listing
// and status, pause/resume/cancel requests, and a Server-Sent-Events
// stream of live job progress.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/coppermind/ingrain/pkg/registry"
	"github.com/coppermind/ingrain/pkg/signal"
)

// Config configures the HTTP server.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Server is the control-surface HTTP server.
type Server struct {
	cfg      Config
	signals  signal.Store
	registry *registry.Registry
	hub      *StreamHub
	logger   *zap.Logger

	httpServer *http.Server
}

// New assembles the server. The hub may be shared with a runner host so
// jobs started elsewhere in the process stream through /events.
func New(cfg Config, signals signal.Store, hub *StreamHub, logger *zap.Logger) *Server {
	if hub == nil {
		hub = NewStreamHub()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:      cfg,
		signals:  signals,
		registry: registry.New(signals),
		hub:      hub,
		logger:   logger,
	}
	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Hub returns the live-stream hub for wiring runners.
func (s *Server) Hub() *StreamHub {
	return s.hub
}

// Handler builds the route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)

	r.Route("/api/jobs", func(r chi.Router) {
		r.Get("/", s.handleListJobs)
		r.Route("/{jobID}", func(r chi.Router) {
			r.Get("/", s.handleGetJob)
			r.Post("/pause", s.handleAction(signal.ActionPause))
			r.Post("/resume", s.handleAction(signal.ActionResume))
			r.Post("/cancel", s.handleAction(signal.ActionCancel))
			r.Get("/events", s.handleEvents)
		})
	})

	return r
}

// ListenAndServe runs the server until the context is cancelled, then
// shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.cfg.Addr))
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
