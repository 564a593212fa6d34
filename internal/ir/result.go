package ir

import (
	"encoding/json"
	"fmt"
)

// Outcome names a CallbackResult variant on the wire and in the store.
type Outcome string

const (
	OutcomePass           Outcome = "pass"
	OutcomeFail           Outcome = "fail"
	OutcomeNotImplemented Outcome = "not_implemented"
	OutcomeExecutionError Outcome = "execution_error"
)

// CallbackResult is the dispatcher's verdict, a closed sum type.
// Only Pass, Fail, NotImplemented and ExecutionError implement it.
type CallbackResult interface {
	callbackResult() // Sealed
	Outcome() Outcome
}

// Pass means the validation module reported no errors, or the entry is a
// system entry exempt from application validation.
type Pass struct{}

// Fail carries the module's human-readable validation failure reason.
type Fail struct {
	Reason string
}

// NotImplemented means no validation logic applies to the entry: system
// type, no owning module, or a module without code.
type NotImplemented struct{}

// ExecutionError means a validator exists but could not be run to
// completion (trap, resource limit, missing function, malformed code).
type ExecutionError struct {
	Cause string
}

func (Pass) callbackResult()           {}
func (Fail) callbackResult()           {}
func (NotImplemented) callbackResult() {}
func (ExecutionError) callbackResult() {}

func (Pass) Outcome() Outcome           { return OutcomePass }
func (Fail) Outcome() Outcome           { return OutcomeFail }
func (NotImplemented) Outcome() Outcome { return OutcomeNotImplemented }
func (ExecutionError) Outcome() Outcome { return OutcomeExecutionError }

// Reason returns the free-text part of a result, if any.
func Reason(r CallbackResult) string {
	switch v := r.(type) {
	case Fail:
		return v.Reason
	case ExecutionError:
		return v.Cause
	default:
		return ""
	}
}

// Admits reports whether a caller should accept an entry with this verdict.
// ExecutionError never admits. NotImplemented admits unless strict is set.
func Admits(r CallbackResult, strict bool) bool {
	switch r.(type) {
	case Pass:
		return true
	case NotImplemented:
		return !strict
	default:
		return false
	}
}

// FormatResult renders a result for humans, e.g. `fail: invalid title`.
func FormatResult(r CallbackResult) string {
	if reason := Reason(r); reason != "" {
		return fmt.Sprintf("%s: %s", r.Outcome(), reason)
	}
	return string(r.Outcome())
}

// ResultFromOutcome rebuilds a CallbackResult from its stored form.
func ResultFromOutcome(outcome Outcome, reason string) (CallbackResult, error) {
	switch outcome {
	case OutcomePass:
		return Pass{}, nil
	case OutcomeFail:
		return Fail{Reason: reason}, nil
	case OutcomeNotImplemented:
		return NotImplemented{}, nil
	case OutcomeExecutionError:
		return ExecutionError{Cause: reason}, nil
	default:
		return nil, fmt.Errorf("unknown outcome %q", outcome)
	}
}

// ResultJSON is the JSON form of a CallbackResult.
type ResultJSON struct {
	Outcome Outcome `json:"outcome"`
	Reason  string  `json:"reason,omitempty"`
}

// MarshalResult encodes a CallbackResult as ResultJSON.
func MarshalResult(r CallbackResult) ([]byte, error) {
	return json.Marshal(ResultJSON{Outcome: r.Outcome(), Reason: Reason(r)})
}
