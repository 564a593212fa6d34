package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/roach88/admit/internal/dispatch"
	"github.com/roach88/admit/internal/ir"
	"github.com/roach88/admit/internal/registry"
	"github.com/roach88/admit/internal/sandbox"
	"github.com/roach88/admit/internal/store"
	"github.com/roach88/admit/internal/testutil"
)

// Harness holds the per-run state of a scenario.
type Harness struct {
	registry   dispatch.Registry
	dispatcher *dispatch.Dispatcher
	trace      *traceRecorder
	strict     bool
}

// Run executes a scenario with a background context.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext executes a scenario and returns the result.
//
// Each run uses a fresh in-memory database and deterministic clock and
// tokens. The returned error reports setup problems (the manifest does not
// compile, the store cannot be opened); expectation and assertion failures
// are reported on the Result.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	reg, err := loadRegistry(scenario)
	if err != nil {
		return nil, err
	}

	var engineOpts []sandbox.Option
	if scenario.Timeout > 0 {
		engineOpts = append(engineOpts, sandbox.WithTimeout(scenario.Timeout))
	}

	prefix := scenario.Token
	if prefix == "" {
		prefix = scenario.Name
	}
	trace := &traceRecorder{}
	h := &Harness{
		registry: reg,
		trace:    trace,
		strict:   scenario.Strict,
		dispatcher: dispatch.New(sandbox.New(engineOpts...),
			dispatch.WithClock(testutil.NewDeterministicClock()),
			dispatch.WithTokenGenerator(testutil.NewCountingTokenGenerator(prefix)),
			dispatch.WithObserver(dispatch.MultiObserver{trace, store.NewVerdictRecorder(st)}),
		),
	}

	result := NewResult()
	for i, c := range scenario.Cases {
		if err := h.runCase(ctx, i, c, result); err != nil {
			return nil, err
		}
	}
	result.Trace = trace.snapshot()

	actx := &AssertionContext{Store: st, Ctx: ctx}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func loadRegistry(s *Scenario) (dispatch.Registry, error) {
	if s.Manifests != "" {
		res, err := registry.LoadDir(s.Manifests)
		if err != nil {
			return nil, fmt.Errorf("load manifests: %w", err)
		}
		return registry.NewStatic(res.Manifest), nil
	}
	m, err := registry.CompileSource(s.Name+".cue", []byte(s.Manifest), s.dir)
	if err != nil {
		return nil, fmt.Errorf("compile manifest: %w", err)
	}
	return registry.NewStatic(m), nil
}

// runCase dispatches one case and checks its expectation.
func (h *Harness) runCase(ctx context.Context, i int, c Case, result *Result) error {
	req, err := buildRequest(c)
	if err != nil {
		return fmt.Errorf("case %d (%s): %w", i, c.Name, err)
	}

	cr := CaseResult{Name: c.Name}
	v, err := h.dispatcher.Run(ctx, h.registry, req)
	cr.Token = v.Token
	if err != nil {
		cr.Error = errorCode(err)
	} else {
		cr.Outcome = string(v.Result.Outcome())
		cr.Reason = ir.Reason(v.Result)
		cr.Admitted = ir.Admits(v.Result, h.strict)
	}

	problems := checkExpect(c.Expect, cr, err)
	cr.Pass = len(problems) == 0
	result.Cases = append(result.Cases, cr)
	for _, p := range problems {
		result.AddError(fmt.Sprintf("case %q: %s", c.Name, p))
	}

	slog.Debug("scenario case",
		"case", c.Name,
		"token", cr.Token,
		"outcome", cr.Outcome,
		"error", cr.Error,
		"pass", cr.Pass,
	)
	return nil
}

func checkExpect(e Expect, cr CaseResult, err error) []string {
	var problems []string
	if e.Error != "" {
		if cr.Error != e.Error {
			got := cr.Error
			if got == "" {
				got = "verdict " + cr.Outcome
			}
			problems = append(problems, fmt.Sprintf("expected error %s, got %s", e.Error, got))
		}
		return problems
	}

	if err != nil {
		return append(problems, fmt.Sprintf("expected outcome %s, got error: %v", e.Outcome, err))
	}
	if cr.Outcome != e.Outcome {
		problems = append(problems, fmt.Sprintf("expected outcome %s, got %s", e.Outcome, cr.Outcome))
	}
	if e.Reason != nil && cr.Reason != *e.Reason {
		problems = append(problems, fmt.Sprintf("expected reason %q, got %q", *e.Reason, cr.Reason))
	}
	if e.ReasonContains != "" && !strings.Contains(cr.Reason, e.ReasonContains) {
		problems = append(problems, fmt.Sprintf("expected reason containing %q, got %q", e.ReasonContains, cr.Reason))
	}
	if e.Admitted != nil && cr.Admitted != *e.Admitted {
		problems = append(problems, fmt.Sprintf("expected admitted=%t, got %t", *e.Admitted, cr.Admitted))
	}
	return problems
}

// buildRequest converts a case to a dispatch request. Entry values are
// submitted as wire JSON with strings unchanged; raw content is submitted
// verbatim.
func buildRequest(c Case) (dispatch.Request, error) {
	req := dispatch.Request{Type: ir.ParseEntryType(c.Type)}

	if c.Content != nil {
		req.Entry = ir.NewEntry(*c.Content)
	} else {
		v, err := convertToIRValue(c.Entry)
		if err != nil {
			return req, fmt.Errorf("entry: %w", err)
		}
		content, err := ir.MarshalWire(v)
		if err != nil {
			return req, fmt.Errorf("entry: %w", err)
		}
		req.Entry = ir.Entry{Content: content}
	}

	if len(c.Ctx) > 0 {
		data, err := convertValidationData(c.Ctx)
		if err != nil {
			return req, fmt.Errorf("ctx: %w", err)
		}
		req.Data = data
	}
	return req, nil
}

// convertValidationData decodes a YAML ctx map into ValidationData, rejecting
// unknown fields.
func convertValidationData(m map[string]any) (ir.ValidationData, error) {
	var data ir.ValidationData
	v, err := convertToIRValue(m)
	if err != nil {
		return data, err
	}
	raw, err := ir.MarshalWire(v)
	if err != nil {
		return data, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&data); err != nil {
		return data, err
	}
	return data, nil
}

// convertToIRValue converts a YAML-decoded value to an IRValue.
func convertToIRValue(val any) (ir.IRValue, error) {
	switch v := val.(type) {
	case nil:
		return ir.IRNull{}, nil
	case string:
		return ir.IRString(v), nil
	case int:
		return ir.IRInt(int64(v)), nil
	case int64:
		return ir.IRInt(v), nil
	case uint64:
		return ir.IRNumber(strconv.FormatUint(v, 10)), nil
	case float64:
		if v == float64(int64(v)) {
			return ir.IRInt(int64(v)), nil
		}
		return ir.IRNumber(strconv.FormatFloat(v, 'g', -1, 64)), nil
	case bool:
		return ir.IRBool(v), nil
	case []any:
		arr := make(ir.IRArray, len(v))
		for i, elem := range v {
			irElem, err := convertToIRValue(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			arr[i] = irElem
		}
		return arr, nil
	case map[string]any:
		obj := make(ir.IRObject, len(v))
		for key, elem := range v {
			irElem, err := convertToIRValue(elem)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", key, err)
			}
			obj[key] = irElem
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type %T", val)
	}
}
