// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package signals

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"sync"
)

// RandomSource yields fractions in [0,1). *rand.Rand satisfies it.
type RandomSource interface {
	Float64() float64
}

// NewSource returns a deterministic PCG source. Seed 0 draws a seed from
// crypto/rand.
func NewSource(seed uint64) RandomSource {
	if seed == 0 {
		seed = randomSeed()
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// NewLockedSource is NewSource made safe for concurrent callers.
func NewLockedSource(seed uint64) RandomSource {
	return &lockedSource{src: NewSource(seed)}
}

type lockedSource struct {
	mu  sync.Mutex
	src RandomSource
}

func (s *lockedSource) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.Float64()
}

// Fixed replays the given fractions in order, wrapping around.
type Fixed []float64

func (f *Fixed) Float64() float64 {
	if len(*f) == 0 {
		return 0
	}
	v := (*f)[0]
	*f = append((*f)[1:], v)
	return v
}

func randomSeed() uint64 {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		// crypto/rand.Read does not fail on supported platforms
		panic(err)
	}
	return binary.LittleEndian.Uint64(b[:])
}
