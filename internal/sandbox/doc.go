// Package sandbox is the execution engine that runs application validation
// modules.
//
// Modules are CUE source. A validation function is a top-level struct
// named after the function, with an "entry" and a "ctx" field receiving the
// call parameters and a "result" field holding the outcome:
//
//	validate_post: {
//	    entry: {title: string & != "", body: string}
//	    ctx:   {action: "commit" | "modify" | "delete", ...}
//	    result: *"" | string
//	}
//
// CUE evaluation is hermetic: module code cannot perform I/O, reach the
// network, read the clock or the environment. Each invocation compiles the
// module in a fresh cue.Context, so an Engine is safe for concurrent use.
//
// Outcomes:
//   - result evaluates to a concrete string: that string is the outcome
//     (empty means "no validation errors")
//   - entry or ctx conflicts with the module's constraints: the outcome is
//     a description of the conflicts (the module declared them invalid)
//   - anything else is a *Failure: unsupported runtime, malformed code,
//     missing function, malformed parameters, bad result, timeout, trap
package sandbox
