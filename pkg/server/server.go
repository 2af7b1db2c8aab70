// Package server exposes the pipeline over HTTP: an aggregate endpoint that
// answers once, a streaming endpoint that sends NDJSON events, lookup of
// finished runs, and a health check.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/ravi-parthasarathy/codecrew/pkg/store"
	"github.com/ravi-parthasarathy/codecrew/pkg/stream"
)

const (
	shutdownTimeout = 15 * time.Second
	saveTimeout     = 5 * time.Second
	healthTimeout   = 2 * time.Second
)

// Options configure a Server.
type Options struct {
	Addr   string
	Stream stream.Options
	// Store keeps finished runs for GET /api/runs/{id}. Nil disables both
	// saving and the lookup route.
	Store store.Store
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Server serves pipeline runs. Each request gets its own run; the runner is
// shared.
type Server struct {
	runner     stream.Runner
	streamOpts stream.Options
	store      store.Store
	logger     *slog.Logger
	router     *mux.Router
	httpServer *http.Server
}

// New returns a Server running requests on runner.
func New(runner stream.Runner, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		runner:     runner,
		streamOpts: opts.Stream,
		store:      opts.Store,
		logger:     logger,
	}
	s.router = s.routes()
	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()
	router.Use(logRequests(s.logger))

	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/run", s.handleRun).Methods(http.MethodPost)
	api.HandleFunc("/run/stream", s.handleRunStream).Methods(http.MethodPost)
	if s.store != nil {
		api.HandleFunc("/runs/{id}", s.handleGetRun).Methods(http.MethodGet)
	}
	return router
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves until ctx is done, then shuts down gracefully. Runs
// in flight see their request context canceled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.httpServer.BaseContext = func(net.Listener) context.Context { return ctx }
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.httpServer.Addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
