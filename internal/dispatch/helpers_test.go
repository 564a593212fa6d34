package dispatch

import (
	"context"
	"sync"

	"github.com/roach88/admit/internal/ir"
)

// fakeRegistry is an in-memory Registry for dispatcher tests.
type fakeRegistry struct {
	name    string
	owners  map[string]string // type name -> module
	code    map[string][]byte // module -> code
	failErr error
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		name:   "blog",
		owners: map[string]string{"post": "posts", "comment": "comments"},
		code: map[string][]byte{
			"posts":    []byte("validate_post: {}"),
			"comments": {},
		},
	}
}

func (r *fakeRegistry) Name() string { return r.name }

func (r *fakeRegistry) ResolveModuleForType(_ context.Context, typeName string) (ir.ModuleIdentity, bool, error) {
	if r.failErr != nil {
		return ir.ModuleIdentity{}, false, r.failErr
	}
	mod, ok := r.owners[typeName]
	if !ok {
		return ir.ModuleIdentity{}, false, nil
	}
	return ir.ModuleIdentity{App: r.name, Module: mod}, true, nil
}

func (r *fakeRegistry) FetchCode(_ context.Context, id ir.ModuleIdentity) (ir.CodeArtifact, bool, error) {
	code, ok := r.code[id.Module]
	if !ok {
		return ir.CodeArtifact{}, false, nil
	}
	return ir.CodeArtifact{Module: id, Runtime: ir.RuntimeCUE, Code: code, Digest: ir.CodeDigest(code)}, true, nil
}

// recordingEngine returns a fixed outcome and records every call.
type recordingEngine struct {
	mu     sync.Mutex
	result string
	err    error
	calls  []ir.CallInvocation
}

func (e *recordingEngine) Invoke(_ context.Context, _ string, _ ir.CodeArtifact, call ir.CallInvocation) (ir.ExecutionOutcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, call)
	if e.err != nil {
		return ir.ExecutionOutcome{}, e.err
	}
	return ir.ExecutionOutcome{Result: e.result}, nil
}

func (e *recordingEngine) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

// collector records observed events.
type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) Observe(_ context.Context, ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *collector) stages() []Stage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Stage, len(c.events))
	for i, ev := range c.events {
		out[i] = ev.Stage
	}
	return out
}

func commitData() ir.ValidationData {
	return ir.ValidationData{
		Lifecycle: ir.LifecycleChain,
		Action:    ir.ActionCommit,
		Sources:   []string{"agent-1"},
	}
}

func postRequest(content string) Request {
	return Request{
		Entry: ir.NewEntry(content),
		Type:  ir.AppType{Name: "post"},
		Data:  commitData(),
	}
}
