package random

import (
	"crypto/rand"
	"math/big"
	"time"
)

// Random provides random number generation that can be mocked for testing
type Random interface {
	// Intn returns a random int in [0, n)
	Intn(n int) int
}

// CryptoRandom implements Random using crypto/rand
type CryptoRandom struct{}

// New creates a new CryptoRandom
func New() *CryptoRandom {
	return &CryptoRandom{}
}

// Intn returns a cryptographically random int in [0, n)
func (r *CryptoRandom) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	max := big.NewInt(int64(n))
	result, err := rand.Int(rand.Reader, max)
	if err != nil {
		// Fall back to 0 on error (should never happen with crypto/rand)
		return 0
	}
	return int(result.Int64())
}

// Jitter returns base plus a random extra delay in [0, spread), at
// millisecond granularity
func Jitter(r Random, base, spread time.Duration) time.Duration {
	ms := int(spread / time.Millisecond)
	if ms <= 0 {
		return base
	}
	return base + time.Duration(r.Intn(ms))*time.Millisecond
}
