// Package server exposes exports and metadata lookup over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/kikiluvv/retroclip/internal/export"
	"github.com/kikiluvv/retroclip/internal/overlay"
	"github.com/kikiluvv/retroclip/internal/state"
)

// DefaultShutdownTimeout bounds graceful shutdown.
const DefaultShutdownTimeout = 10 * time.Second

// Media is an opened upload.
type Media interface {
	export.Source
	Close() error
}

// Deps are the collaborators used for every export.
type Deps struct {
	// Open opens an uploaded file for export.
	Open func(ctx context.Context, path string) (Media, error)
	// Export carries the prober, sink factory and transcoder. Downloader
	// and OnProgress are set per job.
	Export export.Deps
}

// Options configures a Server.
type Options struct {
	UploadDir       string
	MaxUploadBytes  int64
	ShutdownTimeout time.Duration
	Export          export.Options
	// EditorDefaults prepares the editor of each export before form values
	// are applied.
	EditorDefaults func(*state.Editor) error
}

// Server runs exports in the background and serves their results.
type Server struct {
	logger    zerolog.Logger
	deps      Deps
	opts      Options
	metrics   *Metrics
	jobs      *jobStore
	positions *overlay.Registry

	base context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup
}

// New creates a server. Call Close to cancel running exports.
func New(logger zerolog.Logger, deps Deps, opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 512 << 20
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = DefaultShutdownTimeout
	}
	base, stop := context.WithCancel(context.Background())
	return &Server{
		logger:    logger.With().Str("component", "server").Logger(),
		deps:      deps,
		opts:      opts,
		metrics:   NewMetrics(),
		jobs:      newJobStore(),
		positions: overlay.NewRegistry(),
		base:      base,
		stop:      stop,
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/presets", s.handlePresets)
		r.Post("/metadata", s.handleMetadata)
		r.Route("/exports", func(r chi.Router) {
			r.Post("/", s.handleCreateExport)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetExport)
				r.Delete("/", s.handleCancelExport)
				r.Get("/download", s.handleDownload)
			})
		})
	})
	return r
}

// ListenAndServe serves addr until ctx is done, then shuts down gracefully
// and cancels running exports.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.logger.Info().Str("addr", addr).Msg("Server starting")

	select {
	case err := <-errCh:
		s.Close()
		if err != nil {
			return fmt.Errorf("serve %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info().Msg("Shutdown signal received, draining connections")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	s.Close()
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info().Msg("Server stopped")
	return nil
}

// Close cancels running exports and waits for them to return.
func (s *Server) Close() {
	s.stop()
	s.wg.Wait()
}
