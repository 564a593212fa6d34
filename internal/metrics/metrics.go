// Package metrics provides Prometheus metrics collection for admit.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/admit/internal/dispatch"
	"github.com/roach88/admit/internal/sandbox"
)

const namespace = "admit"

// Collector holds all Prometheus metrics for admit. It implements
// dispatch.Observer.
type Collector struct {
	// Dispatch metrics
	Verdicts *prometheus.CounterVec
	Stages   *prometheus.CounterVec
	Aborts   *prometheus.CounterVec

	// Engine metrics
	EngineDuration *prometheus.HistogramVec
	EngineFailures *prometheus.CounterVec

	// HTTP metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Registry metrics
	RegistryReloads      prometheus.Counter
	RegistryReloadErrors prometheus.Counter
	RegistryLastReload   prometheus.Gauge
}

// New creates a collector registered with the default registry.
func New() *Collector {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a collector with a custom registry.
// Useful for testing to avoid global state.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		Verdicts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "verdicts_total",
				Help:      "Total number of dispatch verdicts by outcome",
			},
			[]string{"app", "outcome"},
		),
		Stages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_stages_total",
				Help:      "Total number of dispatch pipeline stages reached",
			},
			[]string{"stage"},
		),
		Aborts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_aborts_total",
				Help:      "Total number of dispatches that returned an error",
			},
			[]string{"code"},
		),
		EngineDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "engine_duration_seconds",
				Help:      "Validation module execution time in seconds",
				Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 5},
			},
			[]string{"app", "module"},
		),
		EngineFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "engine_failures_total",
				Help:      "Total number of validation modules that could not be run",
			},
			[]string{"code"},
		),
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "route"},
		),
		RequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Number of HTTP requests currently being processed",
			},
		),
		RegistryReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "registry_reloads_total",
				Help:      "Total number of successful manifest reloads",
			},
		),
		RegistryReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "registry_reload_errors_total",
				Help:      "Total number of failed manifest reloads",
			},
		),
		RegistryLastReload: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "registry_last_reload_timestamp",
				Help:      "Unix timestamp of last successful manifest reload",
			},
		),
	}
}

// Observe implements dispatch.Observer.
func (c *Collector) Observe(_ context.Context, ev dispatch.Event) {
	c.Stages.WithLabelValues(string(ev.Stage)).Inc()

	switch ev.Stage {
	case dispatch.StageInvoked:
		c.EngineDuration.WithLabelValues(ev.App, ev.Module.Module).Observe(ev.Duration.Seconds())
		if ev.Err != nil {
			c.EngineFailures.WithLabelValues(failureCode(ev.Err)).Inc()
		}
	case dispatch.StageInterpreted:
		c.Verdicts.WithLabelValues(ev.App, string(ev.Outcome)).Inc()
	case dispatch.StageAborted:
		c.Aborts.WithLabelValues(abortCode(ev.Err)).Inc()
	}
}

// RecordReload records the result of a registry reload.
func (c *Collector) RecordReload(err error) {
	if err != nil {
		c.RegistryReloadErrors.Inc()
		return
	}
	c.RegistryReloads.Inc()
	c.RegistryLastReload.Set(float64(time.Now().Unix()))
}

func failureCode(err error) string {
	var f *sandbox.Failure
	if errors.As(err, &f) {
		return string(f.Code)
	}
	return "unknown"
}

func abortCode(err error) string {
	var de *dispatch.Error
	if errors.As(err, &de) {
		return string(de.Code)
	}
	return "unknown"
}
