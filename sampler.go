package pimc

import (
	"math/rand/v2"
	"time"
)

// Sampler is a worker-local source of uniform coordinates. A Sampler must
// not be shared between goroutines; every job creates its own.
type Sampler struct {
	rng *rand.Rand
}

// NewSampler returns a sampler whose stream is derived from seed and stream.
// Different streams of the same seed are independent, so workers of one run
// use the run seed and their worker id.
func NewSampler(seed uint64, stream int) *Sampler {
	s1 := hash64(seed + uint64(stream))
	s2 := hash64(s1 ^ 0x9e3779b97f4a7c15)
	return &Sampler{rng: rand.New(rand.NewPCG(s1, s2))}
}

// Coordinate returns a value uniformly distributed in [1, bound].
// bound must be > 0.
func (s *Sampler) Coordinate(bound uint64) uint64 {
	return s.rng.Uint64N(bound) + 1
}

// Point returns two independent coordinates in [1, bound].
func (s *Sampler) Point(bound uint64) (x, y uint64) {
	return s.Coordinate(bound), s.Coordinate(bound)
}

// hash64 is the splitmix64 finalizer, used to spread nearby seeds.
func hash64(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}

// timeSeed picks a run seed when none was configured.
func timeSeed() uint64 {
	return hash64(uint64(time.Now().UnixNano()))
}
