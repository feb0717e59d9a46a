package pimc

import "sync/atomic"

// cacheLinePad prevents false sharing between hot fields
type cacheLinePad struct {
	_ [64]byte
}

// Accumulator is a run-scoped counter shared by all workers. Mutation only
// happens through Add, so it needs no locks.
//
// Snapshot may lag while workers are running. It is authoritative once the
// pool has terminated, since termination happens after every worker's last
// Add.
type Accumulator struct {
	_ cacheLinePad

	v atomic.Uint64

	_ cacheLinePad
}

// NewAccumulator returns an accumulator at zero.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Add atomically adds delta. Concurrent adds commute.
func (a *Accumulator) Add(delta uint64) {
	if delta == 0 {
		return
	}
	a.v.Add(delta)
}

// Snapshot returns the current value.
func (a *Accumulator) Snapshot() uint64 {
	return a.v.Load()
}
