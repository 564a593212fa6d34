package sandbox

import (
	"errors"
	"fmt"

	"github.com/roach88/admit/internal/ir"
)

// FailureCode categorizes execution failures.
type FailureCode string

const (
	// CodeUnsupportedRuntime indicates the module targets a runtime the engine cannot run.
	CodeUnsupportedRuntime FailureCode = "UNSUPPORTED_RUNTIME"

	// CodeMalformedCode indicates the module code does not compile.
	CodeMalformedCode FailureCode = "MALFORMED_CODE"

	// CodeMissingFunction indicates the module has no such function.
	CodeMissingFunction FailureCode = "MISSING_FUNCTION"

	// CodeMalformedParameters indicates the parameter bytes are not a JSON document.
	CodeMalformedParameters FailureCode = "MALFORMED_PARAMETERS"

	// CodeBadResult indicates the function's result is absent, not a string, or not concrete.
	CodeBadResult FailureCode = "BAD_RESULT"

	// CodeTimeout indicates evaluation exceeded the engine's time limit.
	CodeTimeout FailureCode = "TIMEOUT"

	// CodeCancelled indicates the caller's context ended before evaluation finished.
	CodeCancelled FailureCode = "CANCELLED"

	// CodeTrap indicates evaluation aborted abnormally.
	CodeTrap FailureCode = "TRAP"
)

// Failure is returned when a module could not be run to completion.
type Failure struct {
	Code     FailureCode
	Module   ir.ModuleIdentity
	Function string
	Message  string
	Err      error
}

// Error implements the error interface.
func (f *Failure) Error() string {
	msg := fmt.Sprintf("%s: %s (module=%s, function=%s)", f.Code, f.Message, f.Module, f.Function)
	if f.Err != nil {
		return msg + ": " + f.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (f *Failure) Unwrap() error {
	return f.Err
}

// IsFailure reports whether err is an execution failure with the given code.
// Uses errors.As to handle wrapped errors.
func IsFailure(err error, code FailureCode) bool {
	var f *Failure
	if errors.As(err, &f) {
		return f.Code == code
	}
	return false
}

func newFailure(code FailureCode, call ir.CallInvocation, message string, err error) *Failure {
	return &Failure{
		Code:     code,
		Module:   call.Module,
		Function: call.Function,
		Message:  message,
		Err:      err,
	}
}
