package sim

import (
	"log"
	"math"
)

// RandStream is a deterministic random stream that can step backwards, one
// draw at a time. Every distribution consumes exactly one draw.
type RandStream interface {
	Unif() float64
	Integer(lo, hi int64) int64
	Exponential(mean float64) float64

	// Reverse undoes the most recent draw.
	Reverse()

	// Count returns the number of draws not yet reversed.
	Count() uint64
}

const (
	lcgMul uint64 = 6364136223846793005
	lcgInc uint64 = 1442695040888963407
)

// lcgMulInv is the inverse of lcgMul modulo 2^64. Each Newton step doubles
// the number of correct low bits, starting from 3.
var lcgMulInv = func() uint64 {
	inv := lcgMul
	for i := 0; i < 5; i++ {
		inv *= 2 - lcgMul*inv
	}
	return inv
}()

// ReversibleStream is a 64-bit linear congruential stream whose state update
// is invertible. The output is passed through a bijective mixer.
type ReversibleStream struct {
	state uint64
	count uint64
}

// NewReversibleStream creates a stream from a seed.
func NewReversibleStream(seed uint64) *ReversibleStream {
	return &ReversibleStream{state: mix64(seed)}
}

// DeriveSeed combines an engine seed and a logical process ID into a stream
// seed.
func DeriveSeed(seed uint64, id LPID) uint64 {
	return mix64(seed ^ (uint64(id)+1)*0x9e3779b97f4a7c15)
}

func mix64(z uint64) uint64 {
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func (s *ReversibleStream) next() uint64 {
	s.state = s.state*lcgMul + lcgInc
	s.count++
	return mix64(s.state)
}

// Unif returns a number in (0, 1].
func (s *ReversibleStream) Unif() float64 {
	u := s.next() >> 11
	return (float64(u) + 1) / (1 << 53)
}

// Integer returns a number in [lo, hi].
func (s *ReversibleStream) Integer(lo, hi int64) int64 {
	if hi < lo {
		log.Panicf("invalid integer range [%d, %d]", lo, hi)
	}

	span := uint64(hi-lo) + 1
	v := uint64(s.Unif() * float64(span))
	if v >= span {
		v = span - 1
	}

	return lo + int64(v)
}

// Exponential returns an exponentially distributed number with the given
// mean.
func (s *ReversibleStream) Exponential(mean float64) float64 {
	return -mean * math.Log(s.Unif())
}

// Reverse undoes the most recent draw.
func (s *ReversibleStream) Reverse() {
	if s.count == 0 {
		log.Panic("reversing a random stream that has no draws")
	}

	s.state = (s.state - lcgInc) * lcgMulInv
	s.count--
}

// Count returns the number of draws not yet reversed.
func (s *ReversibleStream) Count() uint64 {
	return s.count
}
