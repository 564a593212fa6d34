// Package dispatch implements the validation callback dispatcher.
//
// Given an entry, its declared type and the validation context, the
// dispatcher decides which application validator (if any) applies, builds
// the call, runs it through an execution engine and turns the outcome into a
// CallbackResult.
//
// PIPELINE:
//
//	classify  -> system types short-circuit (descriptor: Pass, others: NotImplemented)
//	resolve   -> owning module and its code, from the Registry passed to Dispatch
//	build     -> "validate_<type>" with wire-JSON {"entry": ..., "ctx": ...} parameters
//	invoke    -> exactly one attempt on the ExecutionEngine
//	interpret -> "" is Pass, text is Fail(text), engine failure is ExecutionError
//
// Every stage reports an Event to the configured Observer. Each dispatch
// ends with exactly one StageInterpreted event carrying the verdict, or one
// StageAborted event when Dispatch returns an error.
//
// The dispatcher holds no per-call state: the registry is an argument, never
// a global, so one Dispatcher serves many applications concurrently.
//
// Errors are returned only for caller mistakes and infrastructure failures
// (no registry, malformed entry content, registry backend failure). Absence
// of validation logic is never an error; it is NotImplemented.
package dispatch
