// Package ir provides the shared intermediate representation for admit.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal. This keeps IR the foundational
// layer with no circular dependencies.
//
// Key design constraints:
//   - EntryType and CallbackResult are closed sum types (sealed interfaces)
//   - Entry content is parsed into IRValue before it crosses the sandbox
//     boundary; Go floats never enter the IR (number literals are kept as text)
//   - All JSON tags use snake_case
//   - Wire payloads use RFC 8785 key order with strings kept as parsed
//     (MarshalWire); ids and digests hash the NFC-normalized form
//     (MarshalCanonical)
package ir
