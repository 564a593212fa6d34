package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/roach88/admit/internal/ir"
)

// Request is one entry submitted for validation.
type Request struct {
	Entry ir.Entry
	Type  ir.EntryType
	Data  ir.ValidationData

	// Token correlates the dispatch's events and stored verdict. Empty means
	// the dispatcher generates one.
	Token string
}

// Verdict is the full outcome of one dispatch. Module, Function and
// InvocationID are zero when the pipeline stopped before building a call.
type Verdict struct {
	Token        string
	App          string
	EntryType    string
	EntryAddress string
	Module       ir.ModuleIdentity
	Function     string
	InvocationID string
	Result       ir.CallbackResult
}

// Dispatcher runs the validation pipeline. It holds no registry and no
// per-call state; it is safe for concurrent use when its engine and
// observer are.
type Dispatcher struct {
	engine   ExecutionEngine
	observer Observer
	clock    SeqClock
	tokens   TokenGenerator
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithObserver sets the observer receiving stage events.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) {
		if o != nil {
			d.observer = o
		}
	}
}

// WithClock sets the clock stamping event seq numbers.
func WithClock(c SeqClock) Option {
	return func(d *Dispatcher) {
		if c != nil {
			d.clock = c
		}
	}
}

// WithTokenGenerator sets the generator for dispatch tokens.
func WithTokenGenerator(g TokenGenerator) Option {
	return func(d *Dispatcher) {
		if g != nil {
			d.tokens = g
		}
	}
}

// WithSerializedEngine serializes access to the engine, for engines that
// are not safe for concurrent use.
func WithSerializedEngine() Option {
	return func(d *Dispatcher) {
		if d.engine != nil {
			d.engine = Serialized(d.engine)
		}
	}
}

// New creates a Dispatcher around an execution engine.
func New(engine ExecutionEngine, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		engine:   engine,
		observer: NopObserver{},
		clock:    NewClock(),
		tokens:   UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch validates one entry against the application behind reg and
// returns the verdict.
func (d *Dispatcher) Dispatch(ctx context.Context, reg Registry, req Request) (ir.CallbackResult, error) {
	v, err := d.Run(ctx, reg, req)
	if err != nil {
		return nil, err
	}
	return v.Result, nil
}

// Run is Dispatch returning the full Verdict.
func (d *Dispatcher) Run(ctx context.Context, reg Registry, req Request) (Verdict, error) {
	v := Verdict{
		Token:        req.Token,
		EntryAddress: ir.EntryAddress(req.Entry),
	}
	if v.Token == "" {
		v.Token = d.tokens.Generate()
	}
	if req.Type != nil {
		v.EntryType = req.Type.Tag()
	}

	if missingRegistry(reg) {
		return v, d.abort(ctx, &v, newError(ErrCodeMissingRegistry, "dispatch requires an application registry", nil))
	}
	v.App = reg.Name()
	if d.engine == nil {
		return v, d.abort(ctx, &v, newError(ErrCodeMissingEngine, "dispatcher has no execution engine", nil))
	}

	typeName, verdict := Classify(req.Type)
	d.emit(ctx, &v, StageClassified, nil)
	if verdict != nil {
		return d.finish(ctx, v, verdict), nil
	}

	code, ok, err := Resolve(ctx, reg, typeName)
	if err != nil {
		return v, d.abort(ctx, &v, err)
	}
	if !ok {
		d.emit(ctx, &v, StageResolved, nil)
		return d.finish(ctx, v, ir.NotImplemented{}), nil
	}
	v.Module = code.Module
	d.emit(ctx, &v, StageResolved, nil)

	call, err := BuildCall(code, typeName, req.Entry, req.Data)
	if err != nil {
		return v, d.abort(ctx, &v, err)
	}
	v.Function = call.Function
	if v.InvocationID, err = ir.InvocationID(call); err != nil {
		return v, d.abort(ctx, &v, newError(ErrCodeMalformedEntry, "invocation id", err))
	}

	start := time.Now()
	out, invokeErr := d.engine.Invoke(ctx, v.App, code, call)
	d.emit(ctx, &v, StageInvoked, func(ev *Event) {
		ev.Duration = time.Since(start)
		ev.Err = invokeErr
	})

	return d.finish(ctx, v, Interpret(out, invokeErr)), nil
}

func (d *Dispatcher) finish(ctx context.Context, v Verdict, result ir.CallbackResult) Verdict {
	v.Result = result
	d.emit(ctx, &v, StageInterpreted, func(ev *Event) {
		ev.Outcome = result.Outcome()
		ev.Reason = ir.Reason(result)
	})
	return v
}

func (d *Dispatcher) abort(ctx context.Context, v *Verdict, err error) error {
	var de *Error
	if errors.As(err, &de) {
		de.Token = v.Token
		de.EntryType = v.EntryType
	}
	d.emit(ctx, v, StageAborted, func(ev *Event) {
		ev.Err = err
	})
	return err
}

func (d *Dispatcher) emit(ctx context.Context, v *Verdict, stage Stage, fill func(*Event)) {
	ev := Event{
		Seq:          d.clock.Next(),
		Token:        v.Token,
		Stage:        stage,
		App:          v.App,
		EntryType:    v.EntryType,
		EntryAddress: v.EntryAddress,
		Module:       v.Module,
		Function:     v.Function,
		InvocationID: v.InvocationID,
	}
	if fill != nil {
		fill(&ev)
	}
	d.observer.Observe(ctx, ev)
}
