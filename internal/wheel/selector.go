package wheel

import (
	"math/rand/v2"
	"sync"

	"agiletools/internal/random"
	"agiletools/pkg/types"
)

// Selector picks one item uniformly by position, so an item listed twice is
// twice as likely to come up.
type Selector struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSelector seeds a PCG source from crypto/rand.
func NewSelector() (*Selector, error) {
	hi, err := random.NewSeed()
	if err != nil {
		return nil, err
	}
	lo, err := random.NewSeed()
	if err != nil {
		return nil, err
	}
	return NewSeededSelector(hi, lo), nil
}

// NewSeededSelector returns a deterministic selector.
func NewSeededSelector(seed1, seed2 uint64) *Selector {
	return &Selector{rng: rand.New(rand.NewPCG(seed1, seed2))}
}

// Spin returns one of items. An empty list is a validation error.
func (s *Selector) Spin(items []string) (string, error) {
	if len(items) == 0 {
		return "", types.ErrInvalidWheel
	}
	s.mu.Lock()
	i := s.rng.IntN(len(items))
	s.mu.Unlock()
	return items[i], nil
}
