// Package harness runs conformance scenarios against the real dispatcher.
//
// A scenario names an application (a manifest directory or an inline
// manifest), submits a list of entries, checks each verdict, and asserts on
// the resulting stage trace and the verdict log.
//
// # Scenario Format
//
//	name: blog_posts
//	description: "Posts are checked by the posts module"
//	manifests: ../manifests/blog
//	token: blog
//	cases:
//	  - name: valid post
//	    type: post
//	    entry: { title: hello, body: hi }
//	    ctx: { lifecycle: chain, action: commit, sources: [agent-1] }
//	    expect:
//	      outcome: pass
//	  - name: unparseable content
//	    type: post
//	    content: "{not json"
//	    expect:
//	      error: MALFORMED_ENTRY
//	assertions:
//	  - type: trace_order
//	    case: valid post
//	    stages: [classified, resolved, invoked, interpreted]
//	  - type: final_state
//	    table: verdicts
//	    where: { token: blog-1 }
//	    expect: { outcome: pass }
//
// # Assertion Types
//
//   - trace_contains: some event matches stage and the match fields
//   - trace_order: the stages appear in order (for one case if given)
//   - trace_count: exactly count events match stage and the match fields
//   - final_state: one row of a store table matches the expected columns
//
// # Deterministic Testing
//
// Scenarios run with a testutil.DeterministicClock, a
// testutil.CountingTokenGenerator ("<token>-<n>", one token per case) and a
// fresh in-memory SQLite store, so a scenario produces the same trace on
// every run. RunWithGolden compares that trace with a goldie snapshot.
package harness
