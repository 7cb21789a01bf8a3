// Package server provides the HTTP server and handlers.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bryan-buckman/unitview/internal/cms"
	"github.com/bryan-buckman/unitview/internal/database"
	"github.com/bryan-buckman/unitview/internal/doorway"
	"github.com/bryan-buckman/unitview/internal/format"
	"github.com/bryan-buckman/unitview/internal/session"
	"github.com/bryan-buckman/unitview/internal/tracking"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// PageSource yields the upstream HTML of a page path.
type PageSource interface {
	Get(ctx context.Context, path string) (string, error)
}

// Options are the collaborators of a Server. Pages and Sessions are required.
type Options struct {
	Pages    PageSource
	Sessions session.Backend
	Tracker  tracking.Tracker
	Doorway  doorway.Registry
	Dates    *format.Parser

	// DB enables the settings endpoints. Optional.
	DB database.Store
	// Warmer enables POST /api/warm. Optional.
	Warmer *cms.Warmer
	// Poller is started with the server and stopped on shutdown. Optional.
	Poller *cms.Poller

	DocsDir       string
	FilterTimeout time.Duration
	Logger        *zap.Logger
	Now           func() time.Time
}

// Server is the main HTTP server.
type Server struct {
	opts   Options
	log    *zap.Logger
	router chi.Router
}

// New creates a new server.
func New(opts Options) (*Server, error) {
	if opts.Pages == nil {
		return nil, errors.New("server: page source is required")
	}
	if opts.Sessions == nil {
		return nil, errors.New("server: session backend is required")
	}
	if opts.Tracker == nil {
		opts.Tracker = tracking.Nop{}
	}
	if opts.Dates == nil {
		opts.Dates = format.NewParser(nil)
	}
	if opts.FilterTimeout <= 0 {
		opts.FilterTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Server{opts: opts, log: opts.Logger}
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/docs", s.handleDocs)

	// API.
	r.Route("/api", func(r chi.Router) {
		r.Post("/filter", s.handleFilter)
		r.Post("/sort", s.handleSort)
		r.Post("/favorite", s.handleFavorite)
		r.Post("/visit", s.handleVisit)
		r.Post("/scroll", s.handleScroll)
		r.Post("/resize", s.handleResize)
		r.Post("/doorway/{action}", s.handleDoorway)
		r.Get("/items", s.handleItems)
		r.Post("/warm", s.handleWarm)
		r.Get("/settings", s.handleGetSettings)
		r.Post("/settings", s.handleSaveSettings)
	})

	// Pages.
	r.Get("/*", s.handlePage)

	s.router = r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ShutdownHook runs after a termination signal, before the HTTP server
// shuts down. Errors are logged and shutdown continues.
type ShutdownHook func(ctx context.Context) error

// Run serves on addr until ctx is cancelled, then runs the hooks and shuts
// down gracefully within shutdownTimeout.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration, hooks ...ShutdownHook) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if s.opts.Poller != nil {
		s.opts.Poller.Start()
		hooks = append([]ShutdownHook{func(context.Context) error {
			s.opts.Poller.Stop()
			return nil
		}}, hooks...)
	}
	hooks = append(hooks, func(context.Context) error { return s.opts.Tracker.Close() })

	errc := make(chan error, 1)
	go func() {
		s.log.Info("server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	s.log.Info("shutdown signal received")

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for i, h := range hooks {
		if err := h(sctx); err != nil {
			s.log.Warn("shutdown hook failed", zap.Int("hook", i), zap.Error(err))
		}
	}
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	s.log.Info("shutdown complete")
	return nil
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
