package pimc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSampler_CoordinateRange(t *testing.T) {
	s := NewSampler(42, 0)

	for _, bound := range []uint64{1, 2, 10, 200_000, MaxAccuracy} {
		for i := 0; i < 10_000; i++ {
			c := s.Coordinate(bound)
			if c < 1 || c > bound {
				t.Fatalf("Coordinate(%d) = %d, out of [1, %d]", bound, c, bound)
			}
		}
	}
}

func TestSampler_CoversBothEnds(t *testing.T) {
	s := NewSampler(7, 3)

	seen := map[uint64]bool{}
	for i := 0; i < 1_000; i++ {
		seen[s.Coordinate(4)] = true
	}

	assert.Len(t, seen, 4)
	assert.True(t, seen[1])
	assert.True(t, seen[4])
}

func TestSampler_Reproducible(t *testing.T) {
	a := NewSampler(99, 2)
	b := NewSampler(99, 2)

	for i := 0; i < 1_000; i++ {
		ax, ay := a.Point(1_000_000)
		bx, by := b.Point(1_000_000)
		if ax != bx || ay != by {
			t.Fatalf("sample %d differs: (%d,%d) vs (%d,%d)", i, ax, ay, bx, by)
		}
	}
}

func TestSampler_StreamsDiffer(t *testing.T) {
	a := NewSampler(99, 0)
	b := NewSampler(99, 1)

	same := 0
	for i := 0; i < 1_000; i++ {
		if a.Coordinate(1<<40) == b.Coordinate(1<<40) {
			same++
		}
	}

	assert.Less(t, same, 5, "streams of one seed should not be correlated")
}

func TestHash64_Spreads(t *testing.T) {
	assert.NotEqual(t, hash64(1), hash64(2))
	assert.NotZero(t, timeSeed())
}
