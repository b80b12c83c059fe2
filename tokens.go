package streamsql

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// TokenGenerator generates unique operation tokens for correlating an
// operation across logs and terminal events.
type TokenGenerator interface {
	Generate() string
}

// UUIDv7Tokens generates time-sortable UUIDv7 tokens.
//
// UUIDv7 embeds a timestamp in the most significant bits, so sorting
// tokens sorts operations by creation time - convenient when reading
// terminal-event traces.
//
// Thread-safety: stateless, safe for concurrent use.
type UUIDv7Tokens struct{}

// Generate creates a new UUIDv7 as a hyphenated string.
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Tokens) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedTokens returns predetermined tokens for deterministic tests and
// golden trace comparison.
//
// Thread-safety: safe for concurrent use via internal mutex.
type FixedTokens struct {
	mu     sync.Mutex
	tokens []string
	idx    int
}

// NewFixedTokens creates a generator returning tokens in order.
//
//	gen := NewFixedTokens("op-1", "op-2")
//	gen.Generate() // "op-1"
//	gen.Generate() // "op-2"
//	gen.Generate() // "op-3" (generated continuation)
//
// After the provided tokens run out, generated continuations keep the
// sequence going so production paths never panic mid-test.
func NewFixedTokens(tokens ...string) *FixedTokens {
	return &FixedTokens{tokens: tokens}
}

// Generate returns the next predetermined token.
func (g *FixedTokens) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.idx++
	if g.idx <= len(g.tokens) {
		return g.tokens[g.idx-1]
	}
	return fmt.Sprintf("op-%d", g.idx)
}
