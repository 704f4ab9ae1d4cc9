// Package random provides the uniform integer sources behind the Trickle
// suppression window.
package random

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	mrand "math/rand"
	"sync"
)

var ErrInvalidRange = errors.New("random: empty range")

// Source returns a uniformly distributed integer in [min, max).
type Source interface {
	Uniform(min, max int64) (int64, error)
}

// Crypto draws from an entropy reader, crypto/rand by default, much like the
// hardware TRNG on a real board. Reads can fail and the error is returned.
type Crypto struct {
	Reader io.Reader
}

func (c Crypto) Uniform(min, max int64) (int64, error) {
	if max <= min {
		return 0, fmt.Errorf("%w: [%d, %d)", ErrInvalidRange, min, max)
	}
	r := c.Reader
	if r == nil {
		r = rand.Reader
	}
	n, err := rand.Int(r, big.NewInt(max-min))
	if err != nil {
		return 0, fmt.Errorf("random: read entropy: %w", err)
	}
	return min + n.Int64(), nil
}

// Seeded is a deterministic source for reproducible simulations.
type Seeded struct {
	mu  sync.Mutex
	rng *mrand.Rand
}

func NewSeeded(seed int64) *Seeded {
	return &Seeded{rng: mrand.New(mrand.NewSource(seed))}
}

func (s *Seeded) Uniform(min, max int64) (int64, error) {
	if max <= min {
		return 0, fmt.Errorf("%w: [%d, %d)", ErrInvalidRange, min, max)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return min + s.rng.Int63n(max-min), nil
}

// New returns the source named by a scenario: "seeded" (default) or "crypto".
func New(kind string, seed int64) (Source, error) {
	switch kind {
	case "", "seeded":
		return NewSeeded(seed), nil
	case "crypto":
		return Crypto{}, nil
	default:
		return nil, fmt.Errorf("unknown entropy source %q", kind)
	}
}
