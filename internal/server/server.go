// Package server provides the HTTP surface of the validation service.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/admit/internal/dispatch"
	"github.com/roach88/admit/internal/metrics"
	"github.com/roach88/admit/internal/store"
)

// Config holds the dependencies and options of a Server.
type Config struct {
	Dispatcher *dispatch.Dispatcher
	Apps       *AppSet

	// Store serves verdict lookups and readiness. Optional.
	Store *store.Store

	// Metrics enables request metrics. MetricsHandler, when set, is
	// mounted at MetricsPath; otherwise the default promhttp handler is.
	Metrics        *metrics.Collector
	MetricsHandler http.Handler
	MetricsPath    string

	// Strict rejects NotImplemented verdicts.
	Strict bool

	RequestTimeout time.Duration
	MaxBodyBytes   int64

	// BatchLimit bounds concurrent dispatches of one batch request.
	BatchLimit int
}

// Server handles validation requests.
type Server struct {
	cfg Config
}

// New creates a Server.
func New(cfg Config) *Server {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.BatchLimit == 0 {
		cfg.BatchLimit = 8
	}
	return &Server{cfg: cfg}
}

// Router builds the HTTP router.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.cfg.RequestTimeout))

	if s.cfg.Metrics != nil {
		r.Use(metricsMiddleware(s.cfg.Metrics, s.cfg.MetricsPath))
	}

	r.Get("/health", s.liveness)
	r.Get("/health/live", s.liveness)
	r.Get("/health/ready", s.readiness)

	if s.cfg.MetricsHandler != nil {
		r.Handle(s.cfg.MetricsPath, s.cfg.MetricsHandler)
	} else if s.cfg.Metrics != nil {
		r.Handle(s.cfg.MetricsPath, promhttp.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/apps", s.listApps)
		r.Post("/apps/{app}/validate", s.validate)
		r.Post("/apps/{app}/validate/batch", s.validateBatch)
		if s.cfg.Store != nil {
			r.Get("/verdicts/{token}", s.verdictByToken)
		}
	})

	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string, readTimeout, writeTimeout time.Duration) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}
