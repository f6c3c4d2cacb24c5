package policy

import (
	"math/rand"
	"sync"
)

// mathRand adapts math/rand.Rand to the Rand interface used by select(),
// guarded by a mutex since the selector calls select() from many
// concurrent goroutines.
type mathRand struct {
	mu  sync.Mutex
	src *rand.Rand
}

// NewRand returns a concurrency-safe Rand seeded from a fresh source.
func NewRand(seed int64) Rand {
	return &mathRand{src: rand.New(rand.NewSource(seed))}
}

func (m *mathRand) Float64() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.src.Float64()
}

func (m *mathRand) NormFloat64() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.src.NormFloat64()
}

func (m *mathRand) ExpFloat64() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.src.ExpFloat64()
}
