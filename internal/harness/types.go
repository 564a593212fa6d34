package harness

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/admit/internal/dispatch"
	"github.com/roach88/admit/internal/sandbox"
)

// TraceEvent is the deterministic projection of one dispatch event.
// Durations and content hashes are left out so traces are stable.
type TraceEvent struct {
	Seq       int64  `json:"seq"`
	Token     string `json:"token"`
	Stage     string `json:"stage"`
	EntryType string `json:"entry_type,omitempty"`
	Module    string `json:"module,omitempty"`
	Function  string `json:"function,omitempty"`
	Outcome   string `json:"outcome,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Error     string `json:"error,omitempty"` // dispatch or engine failure code
}

// fields returns the non-empty fields of the event by their JSON name, for
// subset matching.
func (e TraceEvent) fields() map[string]string {
	m := map[string]string{
		"token": e.Token,
		"stage": e.Stage,
	}
	for k, v := range map[string]string{
		"entry_type": e.EntryType,
		"module":     e.Module,
		"function":   e.Function,
		"outcome":    e.Outcome,
		"reason":     e.Reason,
		"error":      e.Error,
	} {
		if v != "" {
			m[k] = v
		}
	}
	return m
}

// CaseResult is the verdict (or dispatch error) of one case.
type CaseResult struct {
	Name     string `json:"name"`
	Token    string `json:"token"`
	Outcome  string `json:"outcome,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Admitted bool   `json:"admitted"`
	Error    string `json:"error,omitempty"`
	Pass     bool   `json:"pass"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every case matched its expectation and every
	// assertion held.
	Pass bool `json:"pass"`

	Cases []CaseResult `json:"cases"`

	// Trace holds every dispatch event in seq order.
	Trace []TraceEvent `json:"trace"`

	// Errors lists expectation and assertion failures.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a passing, empty result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Cases:  []CaseResult{},
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// TokenFor returns the token of the named case.
func (r *Result) TokenFor(caseName string) (string, bool) {
	for _, c := range r.Cases {
		if c.Name == caseName {
			return c.Token, true
		}
	}
	return "", false
}

// traceRecorder is a dispatch observer that collects TraceEvents.
type traceRecorder struct {
	mu     sync.Mutex
	events []TraceEvent
}

func (t *traceRecorder) Observe(_ context.Context, ev dispatch.Event) {
	te := TraceEvent{
		Seq:       ev.Seq,
		Token:     ev.Token,
		Stage:     string(ev.Stage),
		EntryType: ev.EntryType,
		Module:    ev.Module.Module,
		Function:  ev.Function,
		Outcome:   string(ev.Outcome),
		Reason:    ev.Reason,
	}
	if ev.Err != nil {
		te.Error = errorCode(ev.Err)
	}
	t.mu.Lock()
	t.events = append(t.events, te)
	t.mu.Unlock()
}

func (t *traceRecorder) snapshot() []TraceEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]TraceEvent(nil), t.events...)
}

// errorCode reduces an error to its stable code.
func errorCode(err error) string {
	var de *dispatch.Error
	if errors.As(err, &de) {
		return string(de.Code)
	}
	var f *sandbox.Failure
	if errors.As(err, &f) {
		return string(f.Code)
	}
	return "UNKNOWN"
}
