package simulator

import "math/rand"

// DefaultRand wraps a math/rand source with the fixed seed 1 for CLI use,
// so every call yields the same draw sequence.
func DefaultRand() Rand {
	return rand.New(rand.NewSource(1))
}
