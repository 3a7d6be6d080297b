// Package rng provides the deterministic, seekable pseudo-random source that
// drives every simulation draw. It is a xorshift128+ generator seeded from an
// arbitrary string, with a draw counter so a run can be resumed exactly.
//
// The generator is not cryptographic. Secrets come from the fairness package.
package rng

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrSeekBackward is returned when SeekForward is asked to move to an index
// the source has already passed. The generator cannot be run in reverse.
var ErrSeekBackward = errors.New("rng: cannot seek backward")

// Fallback halves used when a seed folds to an all-zero half.
const (
	fallbackLo uint64 = 0x9E3779B97F4A7C15
	fallbackHi uint64 = 0xBF58476D1CE4E5B9
)

// Multiplier used by the seed fold. Odd, so every byte is a bijection.
const foldMul = 0x9D

// Source is a xorshift128+ generator with a draw counter.
type Source struct {
	s0, s1 uint64
	index  uint64
}

// New creates a Source from an arbitrary string seed.
// Equal seeds always yield equal sequences.
func New(seed string) *Source {
	lo, hi := fold(seed)
	return &Source{s0: lo, s1: hi}
}

// fold mixes the seed into 16 bytes and splits them into two state words.
func fold(seed string) (uint64, uint64) {
	var buf [16]byte
	for i := 0; i < len(seed); i++ {
		j := i % len(buf)
		buf[j] = (buf[j] ^ seed[i]) * foldMul
	}

	// Two diffusion passes so short seeds reach every byte.
	for round := 0; round < 2; round++ {
		for j := range buf {
			prev := buf[(j+len(buf)-1)%len(buf)]
			buf[j] = (buf[j] ^ prev ^ byte(j+round)) * foldMul
		}
	}

	lo := binary.LittleEndian.Uint64(buf[0:8])
	hi := binary.LittleEndian.Uint64(buf[8:16])
	if lo == 0 {
		lo = fallbackLo
	}
	if hi == 0 {
		hi = fallbackHi
	}
	return lo, hi
}

// step advances the 128-bit state once and returns the raw 64-bit output.
func (s *Source) step() uint64 {
	x := s.s0
	y := s.s1
	s.s0 = y
	x ^= x << 23
	s.s1 = x ^ y ^ (x >> 17) ^ (y >> 26)
	s.index++
	return s.s1 + y
}

// Next returns a uniform value in [0, 1) and consumes exactly one draw.
func (s *Source) Next() float64 {
	// Top 53 bits fill the float64 mantissa exactly.
	return float64(s.step()>>11) / (1 << 53)
}

// NextInt returns a uniform integer in the inclusive range [min, max].
// It consumes exactly one draw. Reversed bounds are swapped.
func (s *Source) NextInt(min, max int) int {
	if max < min {
		min, max = max, min
	}
	span := float64(max - min + 1)
	return min + int(s.Next()*span)
}

// Index returns the number of draws consumed so far.
func (s *Source) Index() uint64 {
	return s.index
}

// SeekForward discards draws until Index() == target.
// Seeking to the current index is a no-op.
func (s *Source) SeekForward(target uint64) error {
	if target < s.index {
		return fmt.Errorf("%w: at %d, asked for %d", ErrSeekBackward, s.index, target)
	}
	for s.index < target {
		s.step()
	}
	return nil
}
