// Package store provides SQLite-backed durable storage for application
// manifests and the verdict log.
//
// The store holds:
//   - Apps: imported application manifests (name + manifest digest)
//   - Modules / module_entry_types: which module owns which entry type
//   - Code artifacts: module code, zstd-compressed, keyed by BLAKE3 digest
//   - Verdicts: append-only log of dispatch outcomes
//
// # Critical Patterns
//
// Content-addressed code:
//   - code_artifacts.digest is ir.CodeDigest(code); identical code across
//     modules and apps is stored once
//   - the digest is re-checked on every fetch, so a corrupt row is an error,
//     never silently different code
//
// Logical ordering:
//   - verdicts are ordered by seq (dispatcher logical clock), then id
//   - all list queries include ORDER BY seq ASC, id ASC
//
// Idempotency:
//   - one verdict per dispatch token (UNIQUE(token), ON CONFLICT DO NOTHING)
//   - re-importing a manifest replaces the application's modules atomically
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait up to 5s on lock contention
//   - foreign_keys=ON: Enforce module/code references
//   - Single connection: SQLite supports one writer
package store
