package ir

// Version constants for the IR schema and the dispatcher.
const (
	// IRVersion is the IR schema version.
	IRVersion = "1"

	// DispatcherVersion is the admit dispatcher version.
	DispatcherVersion = "0.1.0"

	// FunctionPrefix is prepended to an application entry type name to form
	// the name of the module function that validates it.
	FunctionPrefix = "validate_"
)
