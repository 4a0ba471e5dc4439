package backtest

import "math/rand"

// Rand is the uniform-draw source the fill sweep uses. Injected so tests
// can replay deterministic sequences instead of depending on math/rand's
// global state.
type Rand interface {
	Float64() float64
}

// NewRand wraps a seeded math/rand source.
func NewRand(seed int64) Rand {
	return rand.New(rand.NewSource(seed))
}
