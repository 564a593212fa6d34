package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/admit/internal/ir"
)

// Stage names a point of the dispatch pipeline.
type Stage string

const (
	StageClassified  Stage = "classified"
	StageResolved    Stage = "resolved"
	StageInvoked     Stage = "invoked"
	StageInterpreted Stage = "interpreted"
	StageAborted     Stage = "aborted"
)

// Event is one observation of a dispatch in progress. Fields not yet known
// at a stage are zero.
type Event struct {
	Seq          int64
	Token        string
	Stage        Stage
	App          string
	EntryType    string
	EntryAddress string
	Module       ir.ModuleIdentity
	Function     string
	InvocationID string

	// Outcome and Reason are set on StageInterpreted.
	Outcome ir.Outcome
	Reason  string

	// Duration is the engine time, set on StageInvoked.
	Duration time.Duration

	// Err is the engine failure on StageInvoked, or the dispatch error on
	// StageAborted.
	Err error
}

// Observer receives dispatch events. Observe is called synchronously on the
// dispatching goroutine and must be safe for concurrent use when the
// dispatcher is shared.
type Observer interface {
	Observe(ctx context.Context, ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev Event)

// Observe implements Observer.
func (f ObserverFunc) Observe(ctx context.Context, ev Event) {
	f(ctx, ev)
}

// NopObserver discards events.
type NopObserver struct{}

// Observe implements Observer.
func (NopObserver) Observe(context.Context, Event) {}

// MultiObserver fans events out in order.
type MultiObserver []Observer

// Observe implements Observer.
func (m MultiObserver) Observe(ctx context.Context, ev Event) {
	for _, o := range m {
		if o != nil {
			o.Observe(ctx, ev)
		}
	}
}

// SlogObserver logs events with structured attributes. Stages are logged at
// debug level, verdicts at info, aborts at warn.
type SlogObserver struct {
	Logger *slog.Logger // nil uses slog.Default()
}

// Observe implements Observer.
func (o SlogObserver) Observe(ctx context.Context, ev Event) {
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}

	attrs := []any{
		"seq", ev.Seq,
		"token", ev.Token,
		"stage", string(ev.Stage),
		"app", ev.App,
		"entry_type", ev.EntryType,
	}
	if ev.Module != (ir.ModuleIdentity{}) {
		attrs = append(attrs, "module", ev.Module.String())
	}
	if ev.Function != "" {
		attrs = append(attrs, "function", ev.Function)
	}

	switch ev.Stage {
	case StageInterpreted:
		attrs = append(attrs, "outcome", string(ev.Outcome))
		if ev.Reason != "" {
			attrs = append(attrs, "reason", ev.Reason)
		}
		logger.InfoContext(ctx, "dispatch verdict", attrs...)
	case StageAborted:
		logger.WarnContext(ctx, "dispatch aborted", append(attrs, "error", ev.Err)...)
	case StageInvoked:
		attrs = append(attrs, "duration", ev.Duration)
		if ev.Err != nil {
			attrs = append(attrs, "error", ev.Err)
		}
		logger.DebugContext(ctx, "dispatch stage", attrs...)
	default:
		logger.DebugContext(ctx, "dispatch stage", attrs...)
	}
}
