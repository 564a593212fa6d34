package testutil

import (
	"fmt"
	"sync/atomic"
)

// DefaultTokenPrefix is used when no prefix is given.
const DefaultTokenPrefix = "test"

// CountingTokenGenerator hands out "<prefix>-1", "<prefix>-2", ... It
// satisfies dispatch.TokenGenerator and is safe for concurrent use.
//
// Unlike dispatch.FixedGenerator it never runs out, so a scenario does not
// need to list its tokens up front.
type CountingTokenGenerator struct {
	prefix string
	n      atomic.Int64
}

// NewCountingTokenGenerator creates a generator. An empty prefix means
// DefaultTokenPrefix.
func NewCountingTokenGenerator(prefix string) *CountingTokenGenerator {
	if prefix == "" {
		prefix = DefaultTokenPrefix
	}
	return &CountingTokenGenerator{prefix: prefix}
}

// Generate returns the next token.
func (g *CountingTokenGenerator) Generate() string {
	return fmt.Sprintf("%s-%d", g.prefix, g.n.Add(1))
}

// Reset restarts numbering at 1.
func (g *CountingTokenGenerator) Reset() {
	g.n.Store(0)
}
