package dispatch

import (
	"context"
	"sync"

	"github.com/roach88/admit/internal/ir"
)

// ExecutionEngine runs module code. A nil error means the module ran to
// completion and the outcome holds its result text.
type ExecutionEngine interface {
	Invoke(ctx context.Context, app string, code ir.CodeArtifact, call ir.CallInvocation) (ir.ExecutionOutcome, error)
}

// ExecutionEngineFunc adapts a function to ExecutionEngine.
type ExecutionEngineFunc func(ctx context.Context, app string, code ir.CodeArtifact, call ir.CallInvocation) (ir.ExecutionOutcome, error)

// Invoke implements ExecutionEngine.
func (f ExecutionEngineFunc) Invoke(ctx context.Context, app string, code ir.CodeArtifact, call ir.CallInvocation) (ir.ExecutionOutcome, error) {
	return f(ctx, app, code, call)
}

// Serialized wraps an engine that is not safe for concurrent use so that at
// most one invocation runs at a time.
func Serialized(engine ExecutionEngine) ExecutionEngine {
	return &serializedEngine{engine: engine}
}

type serializedEngine struct {
	mu     sync.Mutex
	engine ExecutionEngine
}

func (s *serializedEngine) Invoke(ctx context.Context, app string, code ir.CodeArtifact, call ir.CallInvocation) (ir.ExecutionOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Invoke(ctx, app, code, call)
}
