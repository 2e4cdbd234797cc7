// Package ledger tracks cumulative resource usage across the pipeline.
//
// The ledger is an explicit collaborator injected into the LLM, embedding,
// and vector-store clients. Counters only grow: LLM tokens accumulate per
// provider, and vector-store read/write units accumulate globally. The only
// way to shrink a counter is a full Reset.
//
// Read/write units are deliberately not keyed by provider: a pipeline talks
// to exactly one vector store, so a global pair of counters is enough. If a
// second store is ever wired in, give each its own Ledger rather than
// splitting these counters.
package ledger

import "sync"

// Ledger accumulates token and vector-store usage counters.
//
// All methods are safe for concurrent use.
type Ledger struct {
	mu         sync.Mutex
	tokens     map[string]int64
	readUnits  int64
	writeUnits int64
}

// Snapshot is a point-in-time copy of the ledger counters.
type Snapshot struct {
	// Tokens maps a provider name to the total LLM tokens it reported.
	Tokens map[string]int64 `json:"tokens"`

	// ReadUnits is the total vector-store read units consumed.
	ReadUnits int64 `json:"read_units"`

	// WriteUnits is the total vector-store write units consumed.
	WriteUnits int64 `json:"write_units"`
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{
		tokens: make(map[string]int64),
	}
}

// AddTokens records n LLM tokens for the given provider.
// Non-positive increments are ignored.
func (l *Ledger) AddTokens(provider string, n int64) {
	if n <= 0 || provider == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tokens[provider] += n
}

// AddReadUnits records n vector-store read units.
func (l *Ledger) AddReadUnits(n int64) {
	if n <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.readUnits += n
}

// AddWriteUnits records n vector-store write units.
func (l *Ledger) AddWriteUnits(n int64) {
	if n <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writeUnits += n
}

// Snapshot returns a copy of the current counters.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	tokens := make(map[string]int64, len(l.tokens))
	for provider, n := range l.tokens {
		tokens[provider] = n
	}

	return Snapshot{
		Tokens:     tokens,
		ReadUnits:  l.readUnits,
		WriteUnits: l.writeUnits,
	}
}

// Reset zeroes every counter.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tokens = make(map[string]int64)
	l.readUnits = 0
	l.writeUnits = 0
}
