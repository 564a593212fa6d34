package metrics_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/admit/internal/dispatch"
	"github.com/roach88/admit/internal/ir"
	"github.com/roach88/admit/internal/metrics"
	"github.com/roach88/admit/internal/sandbox"
)

var _ dispatch.Observer = (*metrics.Collector)(nil)

func TestNewWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)
	require.NotNil(t, m)

	assert.NotNil(t, m.Verdicts)
	assert.NotNil(t, m.EngineDuration)
	assert.NotNil(t, m.RequestsTotal)
	assert.NotNil(t, m.RegistryReloads)
}

func TestObserveVerdictsAndStages(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	ctx := context.Background()

	m.Observe(ctx, dispatch.Event{Stage: dispatch.StageClassified, App: "blog"})
	m.Observe(ctx, dispatch.Event{Stage: dispatch.StageInterpreted, App: "blog", Outcome: ir.OutcomeFail})
	m.Observe(ctx, dispatch.Event{Stage: dispatch.StageInterpreted, App: "blog", Outcome: ir.OutcomeFail})
	m.Observe(ctx, dispatch.Event{Stage: dispatch.StageInterpreted, App: "blog", Outcome: ir.OutcomePass})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Verdicts.WithLabelValues("blog", "fail")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Verdicts.WithLabelValues("blog", "pass")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Stages.WithLabelValues("classified")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Stages.WithLabelValues("interpreted")))
}

func TestObserveEngineFailures(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	ctx := context.Background()

	failure := &sandbox.Failure{Code: sandbox.CodeTimeout}
	m.Observe(ctx, dispatch.Event{
		Stage:    dispatch.StageInvoked,
		App:      "blog",
		Module:   ir.ModuleIdentity{App: "blog", Module: "posts"},
		Duration: 5 * time.Millisecond,
		Err:      failure,
	})
	m.Observe(ctx, dispatch.Event{Stage: dispatch.StageInvoked, Err: errors.New("opaque")})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.EngineFailures.WithLabelValues("TIMEOUT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EngineFailures.WithLabelValues("unknown")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.EngineDuration))
}

func TestObserveAborts(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	m.Observe(context.Background(), dispatch.Event{
		Stage: dispatch.StageAborted,
		Err:   &dispatch.Error{Code: dispatch.ErrCodeMalformedEntry},
	})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Aborts.WithLabelValues("MALFORMED_ENTRY")))
}

func TestRecordReload(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	m.RecordReload(nil)
	m.RecordReload(errors.New("bad manifest"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RegistryReloads))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RegistryReloadErrors))
	assert.Greater(t, testutil.ToFloat64(m.RegistryLastReload), 0.0)
}
