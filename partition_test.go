package pimc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Tier Selection Tests
// ============================================================================

func TestPartition_Tiers(t *testing.T) {
	tests := []struct {
		name        string
		total       uint64
		workers     int
		cap         uint64
		want        []uint64
		tier        Tier
		capExceeded bool
		remainder   uint64
	}{
		{"single worker takes a small budget", 50, 4, 100, []uint64{50, 0, 0, 0}, TierSingle, false, 0},
		{"budget equal to cap stays single", 100, 4, 100, []uint64{100, 0, 0, 0}, TierSingle, false, 0},
		{"capped fill leaves trailing workers idle", 250, 4, 100, []uint64{100, 100, 50, 0}, TierCapped, false, 0},
		{"capped fill uses every worker", 400, 4, 100, []uint64{100, 100, 100, 100}, TierCapped, false, 0},
		{"capped fill reports integer division leftovers", 403, 4, 100, []uint64{100, 100, 100, 100}, TierCapped, false, 3},
		{"even split above the cap", 1000, 4, 100, []uint64{250, 250, 250, 250}, TierEven, true, 0},
		{"even split truncates", 1003, 4, 100, []uint64{250, 250, 250, 250}, TierEven, true, 3},
		{"zero budget", 0, 3, 100, []uint64{0, 0, 0}, TierSingle, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := Partition(tt.total, tt.workers, tt.cap)
			require.NoError(t, err)

			assert.Equal(t, tt.want, a.Counts)
			assert.Equal(t, tt.tier, a.Tier)
			assert.Equal(t, tt.capExceeded, a.CapExceeded)
			assert.Equal(t, tt.remainder, a.Remainder)
			assert.Equal(t, tt.total, a.Sum()+a.Remainder)
		})
	}
}

func TestPartition_InvalidInput(t *testing.T) {
	_, err := Partition(100, 0, 10)
	assert.True(t, errors.Is(err, ErrInvalidConfig))

	_, err = Partition(100, -2, 10)
	assert.True(t, errors.Is(err, ErrInvalidConfig))

	_, err = Partition(100, 4, 0)
	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "PerWorkerCap", cfgErr.Field)
}

// ============================================================================
// Invariant Tests
// ============================================================================

func TestPartition_SumAndCapInvariants(t *testing.T) {
	totals := []uint64{0, 1, 7, 99, 100, 101, 399, 400, 401, 1_000, 12_345, 1 << 20}
	workers := []int{1, 2, 3, 4, 7, 16}
	caps := []uint64{1, 3, 100, 1_000, 1 << 30}

	for _, total := range totals {
		for _, n := range workers {
			for _, limit := range caps {
				a, err := Partition(total, n, limit)
				require.NoError(t, err)

				require.Len(t, a.Counts, n)
				require.Equal(t, total, a.Sum()+a.Remainder,
					"total=%d workers=%d cap=%d", total, n, limit)
				require.Less(t, a.Remainder, uint64(n))

				if a.Tier == TierEven {
					require.True(t, a.CapExceeded)
					continue
				}
				require.False(t, a.CapExceeded)
				if a.Tier == TierCapped {
					for _, c := range a.Counts {
						require.LessOrEqual(t, c, limit)
					}
				}
			}
		}
	}
}

func TestPartition_Deterministic(t *testing.T) {
	a1, err := Partition(12_345_678, 6, 1_000_000)
	require.NoError(t, err)
	a2, err := Partition(12_345_678, 6, 1_000_000)
	require.NoError(t, err)

	assert.Equal(t, a1, a2)
}

func TestAssignment_OffsetsAndBusy(t *testing.T) {
	a, err := Partition(250, 4, 100)
	require.NoError(t, err)

	assert.Equal(t, []uint64{0, 100, 200, 250}, a.Offsets())
	assert.Equal(t, 3, a.Busy())
}

func TestTier_String(t *testing.T) {
	assert.Equal(t, "single", TierSingle.String())
	assert.Equal(t, "capped", TierCapped.String())
	assert.Equal(t, "even", TierEven.String())
	assert.Equal(t, "Tier(9)", Tier(9).String())

	text, err := TierEven.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "even", string(text))
}
