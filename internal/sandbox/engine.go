package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cuejson "cuelang.org/go/encoding/json"

	"github.com/roach88/admit/internal/ir"
)

// DefaultTimeout bounds a single module evaluation.
const DefaultTimeout = 5 * time.Second

// resultField is the field of a validation function holding its outcome.
const resultField = "result"

// Engine runs CUE validation modules.
//
// Thread-safety: Invoke is safe from any goroutine. Each call compiles the
// module in its own cue.Context.
type Engine struct {
	timeout time.Duration
	slots   chan struct{} // nil means unbounded
}

// Option configures an Engine.
type Option func(*Engine)

// WithTimeout sets the per-invocation time limit. Non-positive values keep
// the default.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithSlots bounds the number of concurrent evaluations. Callers beyond the
// limit wait for a free slot or for their context to end.
func WithSlots(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.slots = make(chan struct{}, n)
		}
	}
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Timeout returns the configured per-invocation time limit.
func (e *Engine) Timeout() time.Duration {
	return e.timeout
}

type evaluation struct {
	outcome ir.ExecutionOutcome
	err     error
}

// Invoke runs call.Function from code with call.Parameters.
//
// A nil error means the module ran to completion; the outcome carries its
// result text. Every other case returns a *Failure.
func (e *Engine) Invoke(ctx context.Context, app string, code ir.CodeArtifact, call ir.CallInvocation) (ir.ExecutionOutcome, error) {
	if code.Runtime != "" && code.Runtime != ir.RuntimeCUE {
		return ir.ExecutionOutcome{}, newFailure(CodeUnsupportedRuntime, call,
			fmt.Sprintf("runtime %q is not supported", code.Runtime), nil)
	}

	if err := e.acquire(ctx); err != nil {
		return ir.ExecutionOutcome{}, newFailure(CodeCancelled, call, "waiting for execution slot", err)
	}

	slog.Debug("evaluating module",
		"app", app,
		"module", call.Module.String(),
		"function", call.Function,
		"digest", code.Digest,
	)

	done := make(chan evaluation, 1)
	go func() {
		// The slot is held until evaluation really ends, even after a timeout.
		defer e.release()
		out, err := evaluate(code, call)
		done <- evaluation{outcome: out, err: err}
	}()

	timer := time.NewTimer(e.timeout)
	defer timer.Stop()

	select {
	case r := <-done:
		return r.outcome, r.err
	case <-timer.C:
		return ir.ExecutionOutcome{}, newFailure(CodeTimeout, call,
			fmt.Sprintf("evaluation exceeded %s", e.timeout), nil)
	case <-ctx.Done():
		return ir.ExecutionOutcome{}, newFailure(CodeCancelled, call, "evaluation abandoned", ctx.Err())
	}
}

func (e *Engine) acquire(ctx context.Context) error {
	if e.slots == nil {
		return ctx.Err()
	}
	select {
	case e.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) release() {
	if e.slots != nil {
		<-e.slots
	}
}

// evaluate compiles code and evaluates one function against the parameters.
func evaluate(code ir.CodeArtifact, call ir.CallInvocation) (out ir.ExecutionOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = ir.ExecutionOutcome{}
			err = newFailure(CodeTrap, call, fmt.Sprintf("evaluation panicked: %v", r), nil)
		}
	}()

	cctx := cuecontext.New()
	fn, ferr := lookupFunction(cctx, code, call)
	if ferr != nil {
		return ir.ExecutionOutcome{}, ferr
	}

	expr, err := cuejson.Extract(call.Function+".params.json", call.Parameters)
	if err != nil {
		return ir.ExecutionOutcome{}, newFailure(CodeMalformedParameters, call, "parameters are not a JSON document", err)
	}
	params := cctx.BuildExpr(expr)
	if params.Err() != nil {
		return ir.ExecutionOutcome{}, newFailure(CodeMalformedParameters, call, "parameters could not be built", params.Err())
	}

	unified := fn.Unify(params)
	if err := unified.Validate(); err != nil {
		// Conflicts between the entry/ctx and the module's constraints are
		// the module saying "invalid".
		return ir.ExecutionOutcome{Result: describeConflicts(call.Function, err)}, nil
	}
	// A declared entry/ctx field the parameters leave unset is a conflict too.
	for _, field := range []string{"entry", "ctx"} {
		v := unified.LookupPath(cue.ParsePath(field))
		if !v.Exists() {
			continue
		}
		if err := v.Validate(cue.Concrete(true)); err != nil {
			return ir.ExecutionOutcome{Result: describeConflicts(call.Function, err)}, nil
		}
	}

	res := unified.LookupPath(cue.ParsePath(resultField))
	if !res.Exists() {
		return ir.ExecutionOutcome{}, newFailure(CodeBadResult, call, "function has no result field", nil)
	}
	text, err := res.String()
	if err != nil {
		return ir.ExecutionOutcome{}, newFailure(CodeBadResult, call, "result is not a concrete string", err)
	}
	return ir.ExecutionOutcome{Result: text}, nil
}

func lookupFunction(cctx *cue.Context, code ir.CodeArtifact, call ir.CallInvocation) (cue.Value, error) {
	mod := cctx.CompileBytes(code.Code, cue.Filename(code.Module.String()+".cue"))
	if mod.Err() != nil {
		return cue.Value{}, newFailure(CodeMalformedCode, call, "module does not compile", mod.Err())
	}
	fn := mod.LookupPath(cue.MakePath(cue.Str(call.Function)))
	if !fn.Exists() {
		return cue.Value{}, newFailure(CodeMissingFunction, call, "function not defined by module", nil)
	}
	if fn.Err() != nil {
		return cue.Value{}, newFailure(CodeMalformedCode, call, "function does not evaluate", fn.Err())
	}
	return fn, nil
}

// describeConflicts renders unification errors as a stable, sorted list with
// paths relative to the function.
func describeConflicts(function string, err error) string {
	errs := cueerrors.Errors(cueerrors.Sanitize(cueerrors.Promote(err, "validate")))
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		format, args := e.Msg()
		msg := fmt.Sprintf(format, args...)
		path := e.Path()
		if len(path) > 0 && path[0] == function {
			path = path[1:]
		}
		if len(path) > 0 {
			msg = strings.Join(path, ".") + ": " + msg
		}
		msgs = append(msgs, msg)
	}
	if len(msgs) == 0 {
		return "module rejected the entry"
	}
	return strings.Join(msgs, "; ")
}

// CheckModule compiles code and reports the declared functions it does not
// define. Used by tooling to catch a module/manifest mismatch before any
// entry is dispatched.
func CheckModule(filename string, code []byte, functions []string) (missing []string, err error) {
	cctx := cuecontext.New()
	mod := cctx.CompileBytes(code, cue.Filename(filename))
	if mod.Err() != nil {
		return nil, mod.Err()
	}
	for _, fn := range functions {
		if !mod.LookupPath(cue.MakePath(cue.Str(fn))).Exists() {
			missing = append(missing, fn)
		}
	}
	return missing, nil
}
