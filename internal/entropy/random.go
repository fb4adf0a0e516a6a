// Package entropy provides the seedable random source used for upgrade rolls and market walks.
package entropy

import (
	"math/rand/v2"
	"sync"
	"time"

	"mining-economy/internal/config"

	"github.com/rs/zerolog"
)

// Source returns uniform floats in [0, 1).
type Source interface {
	Float64() float64
}

// Locked is a Source safe for concurrent use.
type Locked struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewLocked seeds a PCG generator. The same seed replays the same sequence.
func NewLocked(seed uint64) *Locked {
	return &Locked{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (l *Locked) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rng.Float64()
}

// Range returns a uniform value in [lo, hi).
func Range(src Source, lo, hi float64) float64 {
	return lo + src.Float64()*(hi-lo)
}

// New builds the process source from RNG_SEED. Zero seeds from the clock.
func New(cfg *config.Config, logger zerolog.Logger) Source {
	seed := cfg.RNGSeed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	logger.Info().Uint64("seed", seed).Msg("random source seeded")
	return NewLocked(seed)
}
