package dispatch

import (
	"errors"
	"fmt"
)

// Error is returned by Dispatch when no verdict can be produced.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Token is the dispatch token, when one was assigned.
	Token string

	// EntryType is the tag of the entry being dispatched.
	EntryType string

	// Err is the underlying cause.
	Err error
}

// ErrorCode categorizes dispatch errors.
type ErrorCode string

const (
	// ErrCodeMissingRegistry indicates Dispatch was called without a registry.
	ErrCodeMissingRegistry ErrorCode = "MISSING_REGISTRY"

	// ErrCodeMissingEngine indicates the dispatcher has no execution engine.
	ErrCodeMissingEngine ErrorCode = "MISSING_ENGINE"

	// ErrCodeMalformedEntry indicates entry content is not a single JSON document.
	ErrCodeMalformedEntry ErrorCode = "MALFORMED_ENTRY"

	// ErrCodeMalformedContext indicates the validation data could not be serialized.
	ErrCodeMalformedContext ErrorCode = "MALFORMED_CONTEXT"

	// ErrCodeInvalidTypeName indicates an application type name that cannot
	// form a function name.
	ErrCodeInvalidTypeName ErrorCode = "INVALID_TYPE_NAME"

	// ErrCodeRegistryLookup indicates the registry backend failed.
	ErrCodeRegistryLookup ErrorCode = "REGISTRY_LOOKUP"
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.EntryType != "" {
		msg = fmt.Sprintf("%s (type=%s)", msg, e.EntryType)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// HasCode reports whether err is a dispatch error with the given code.
// Uses errors.As to handle wrapped errors.
func HasCode(err error, code ErrorCode) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// IsMalformedEntry returns true if the entry content could not be parsed.
func IsMalformedEntry(err error) bool {
	return HasCode(err, ErrCodeMalformedEntry)
}

// IsMissingRegistry returns true if Dispatch was called without a registry.
func IsMissingRegistry(err error) bool {
	return HasCode(err, ErrCodeMissingRegistry)
}

// IsInvalidTypeName returns true if an application type name was unusable.
func IsInvalidTypeName(err error) bool {
	return HasCode(err, ErrCodeInvalidTypeName)
}

// IsRegistryLookup returns true if the registry backend failed.
func IsRegistryLookup(err error) bool {
	return HasCode(err, ErrCodeRegistryLookup)
}

func newError(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}
