package pimc

import "fmt"

// Tier identifies which partitioning policy produced an Assignment.
type Tier int

const (
	// TierSingle gives the whole budget to the first worker.
	TierSingle Tier = iota
	// TierCapped fills workers in order, none above the per-worker cap.
	TierCapped
	// TierEven splits the budget evenly and exceeds the cap.
	TierEven
)

func (t Tier) String() string {
	switch t {
	case TierSingle:
		return "single"
	case TierCapped:
		return "capped"
	case TierEven:
		return "even"
	default:
		return fmt.Sprintf("Tier(%d)", int(t))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Assignment is the per-worker sample budget of one run. It is never
// mutated after Partition returns it.
type Assignment struct {
	// Counts holds one entry per worker. Entries may be zero.
	Counts []uint64

	// Tier is the policy that produced Counts.
	Tier Tier

	// CapExceeded is set when entries are above the per-worker cap (TierEven).
	// Callers should warn; runs may take disproportionately long.
	CapExceeded bool

	// Remainder is the number of samples lost to integer division. It is
	// always < len(Counts), and Sum()+Remainder equals the requested total.
	Remainder uint64
}

// Sum returns the number of samples assigned.
func (a Assignment) Sum() uint64 {
	var sum uint64
	for _, c := range a.Counts {
		sum += c
	}
	return sum
}

// Busy returns the number of workers with a non-zero budget.
func (a Assignment) Busy() int {
	n := 0
	for _, c := range a.Counts {
		if c > 0 {
			n++
		}
	}
	return n
}

// Offsets returns the prefix sums of Counts: worker i covers the global
// sample indices [Offsets()[i], Offsets()[i]+Counts[i]).
func (a Assignment) Offsets() []uint64 {
	offsets := make([]uint64, len(a.Counts))
	var next uint64
	for i, c := range a.Counts {
		offsets[i] = next
		next += c
	}
	return offsets
}

// Partition splits total samples across workers:
//
//  1. total <= perWorkerCap: the first worker takes everything.
//  2. total/workers <= perWorkerCap: workers are filled in order with
//     min(remaining, perWorkerCap) until nothing remains. Later workers may
//     stay at zero.
//  3. otherwise every worker gets total/workers and CapExceeded is set.
//
// Samples that integer division cannot place are reported in Remainder.
func Partition(total uint64, workers int, perWorkerCap uint64) (Assignment, error) {
	if workers <= 0 {
		return Assignment{}, errInvalidConfig("NumWorkers", "must be > 0")
	}
	if perWorkerCap == 0 {
		return Assignment{}, errInvalidConfig("PerWorkerCap", "must be > 0")
	}

	a := Assignment{Counts: make([]uint64, workers)}
	n := uint64(workers)

	switch {
	case total <= perWorkerCap:
		a.Tier = TierSingle
		a.Counts[0] = total

	case total/n <= perWorkerCap:
		a.Tier = TierCapped
		remaining := total
		for i := range a.Counts {
			share := min(remaining, perWorkerCap)
			a.Counts[i] = share
			remaining -= share
			if remaining == 0 {
				break
			}
		}
		a.Remainder = remaining

	default:
		a.Tier = TierEven
		a.CapExceeded = true
		share := total / n
		for i := range a.Counts {
			a.Counts[i] = share
		}
		a.Remainder = total - share*n
	}

	return a, nil
}
