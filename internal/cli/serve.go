package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/roach88/admit/internal/config"
	"github.com/roach88/admit/internal/dispatch"
	"github.com/roach88/admit/internal/metrics"
	"github.com/roach88/admit/internal/registry"
	"github.com/roach88/admit/internal/sandbox"
	"github.com/roach88/admit/internal/server"
	"github.com/roach88/admit/internal/store"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	ConfigPath string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP validation service",
		Long: `Serve validation requests over HTTP.

Applications come from the manifest directories listed under "apps" (watched
for changes when "watch: true") and from every application imported into
"store.path". The service runs until interrupted.

Endpoints:
  GET  /health, /health/live, /health/ready
  GET  /v1/apps
  POST /v1/apps/{app}/validate
  POST /v1/apps/{app}/validate/batch
  GET  /v1/verdicts/{token}          (with a store)
  GET  /metrics                      (when metrics are enabled)

Environment overrides: ADMIT_SERVER_HOST, ADMIT_SERVER_PORT, ADMIT_STORE_PATH,
ADMIT_ENGINE_TIMEOUT, ADMIT_POLICY_STRICT, ADMIT_LOG_LEVEL.

Examples:
  admit serve --config ./admit.yaml
  ADMIT_SERVER_PORT=9090 admit serve --config ./admit.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "admit.yaml", "path to configuration file")

	return cmd
}

func runServe(ctx context.Context, opts *ServeOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := opts.formatter(cmd)

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "failed to load configuration", err)
	}
	logger := cfg.Logging.NewLogger(cmd.ErrOrStderr())
	slog.SetDefault(logger)

	svc, err := newService(ctx, cfg, logger)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeServe, "failed to start service", err)
	}
	defer svc.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("serving", "addr", cfg.Server.Addr(), "apps", len(cfg.Apps),
		"store", cfg.Store.Path, "metrics", cfg.Metrics.Enabled)
	if err := svc.server.ListenAndServe(ctx, cfg.Server.Addr(), cfg.Server.ReadTimeout, cfg.Server.WriteTimeout); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeServe, "server error", err)
	}
	logger.Info("server stopped")
	return nil
}

// service is the wired validation service.
type service struct {
	server  *server.Server
	store   *store.Store
	holders []*registry.Holder
	metrics *metrics.Collector
}

// newService wires the store, registries, dispatcher and HTTP server
// described by cfg.
func newService(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *service, err error) {
	svc := &service{}
	defer func() {
		if err != nil {
			svc.Close()
		}
	}()

	if cfg.Store.Path != "" {
		if svc.store, err = store.Open(cfg.Store.Path); err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
	}

	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		svc.metrics = metrics.NewWithRegistry(reg)
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
	}

	apps := server.NewAppSet(svc.store)
	for _, ac := range cfg.Apps {
		h, err := registry.NewHolder(ac.Manifests)
		if err != nil {
			return nil, err
		}
		svc.holders = append(svc.holders, h)
		if svc.metrics != nil {
			h.OnReload(svc.metrics.RecordReload)
		}
		if ac.Watch {
			if err := h.Watch(); err != nil {
				return nil, err
			}
		}
		if err := apps.AddHolder(h); err != nil {
			return nil, err
		}
		logger.Info("serving application", "app", h.Current().Name(), "manifests", ac.Manifests, "watch", ac.Watch)
	}

	d, err := svc.dispatcher(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	svc.server = server.New(server.Config{
		Dispatcher:     d,
		Apps:           apps,
		Store:          svc.store,
		Metrics:        svc.metrics,
		MetricsHandler: metricsHandler,
		MetricsPath:    cfg.Metrics.Path,
		Strict:         cfg.Policy.Strict,
		RequestTimeout: cfg.Server.RequestTimeout,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
	})
	return svc, nil
}

func (s *service) dispatcher(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*dispatch.Dispatcher, error) {
	observers := dispatch.MultiObserver{dispatch.SlogObserver{Logger: logger}}
	var opts []dispatch.Option

	if s.metrics != nil {
		observers = append(observers, s.metrics)
	}
	if s.store != nil {
		last, err := s.store.LastSeq(ctx)
		if err != nil {
			return nil, err
		}
		opts = append(opts, dispatch.WithClock(dispatch.NewClockAt(last)))
		if cfg.Store.RecordVerdicts {
			observers = append(observers, store.NewVerdictRecorder(s.store))
		}
	}
	opts = append(opts, dispatch.WithObserver(observers))

	engine := sandbox.New(
		sandbox.WithTimeout(cfg.Engine.Timeout),
		sandbox.WithSlots(cfg.Engine.Slots),
	)
	return dispatch.New(engine, opts...), nil
}

// Close stops the watchers and closes the store.
func (s *service) Close() {
	for _, h := range s.holders {
		h.Stop()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			slog.Warn("close store", "error", err)
		}
	}
}
