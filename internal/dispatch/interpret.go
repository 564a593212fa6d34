package dispatch

import "github.com/roach88/admit/internal/ir"

// Interpret maps an engine outcome to a verdict.
//
// An engine failure is ExecutionError, never NotImplemented: a validator
// existed and could not be run, which must not read as "no rule applies".
func Interpret(out ir.ExecutionOutcome, err error) ir.CallbackResult {
	if err != nil {
		return ir.ExecutionError{Cause: err.Error()}
	}
	if out.Result == "" {
		return ir.Pass{}
	}
	return ir.Fail{Reason: out.Result}
}
