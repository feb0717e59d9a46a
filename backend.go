package pimc

import (
	"context"
	"fmt"
	"sort"
)

// cancelCheckInterval is how many samples a backend processes between two
// looks at its context.
const cancelCheckInterval = 1 << 16

// DefaultFlushThreshold is the number of buffered hits after which the CPU
// backend flushes into the shared accumulators.
const DefaultFlushThreshold = 1_000_000

// Job is one worker's share of a run.
type Job struct {
	// WorkerID is the index of the worker in the Assignment.
	WorkerID int

	// Offset is the global index of the job's first sample. Only backends
	// that enumerate points (LatticeBackend) need it.
	Offset uint64

	// Samples is the number of points to evaluate.
	Samples uint64

	Domain Domain

	// Seed is the run seed. Random backends combine it with WorkerID.
	Seed uint64
}

// Tally counts evaluated samples and the hits among them.
type Tally struct {
	Samples uint64
	Hits    uint64
}

// Add returns the sum of two tallies.
func (t Tally) Add(o Tally) Tally {
	return Tally{Samples: t.Samples + o.Samples, Hits: t.Hits + o.Hits}
}

// Sink receives interim tallies from a running backend.
type Sink interface {
	Flush(Tally)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Tally)

// Flush calls f(t).
func (f SinkFunc) Flush(t Tally) { f(t) }

// Backend evaluates the samples of one Job. CPU sampling and any
// accelerated implementation share this contract, so the engine treats them
// interchangeably.
//
// Run returns the cumulative tally it evaluated. Tallies flushed through the
// sink are part of that total and must never exceed it; the engine credits
// the unflushed difference after Run returns. When ctx is cancelled Run
// should return promptly with its partial tally and ctx.Err().
type Backend interface {
	Name() string
	Run(ctx context.Context, job Job, sink Sink) (Tally, error)
}

// CPUBackend samples random points with a Sampler local to each job.
type CPUBackend struct {
	// FlushThreshold is the number of buffered hits that triggers a flush.
	// Zero means DefaultFlushThreshold.
	FlushThreshold uint64
}

// NewCPUBackend returns a CPU backend flushing every flushThreshold hits.
func NewCPUBackend(flushThreshold uint64) *CPUBackend {
	return &CPUBackend{FlushThreshold: flushThreshold}
}

// Name returns "cpu".
func (b *CPUBackend) Name() string { return "cpu" }

// Run draws job.Samples points from [1, r]² and counts those with
// x²+y² < r².
func (b *CPUBackend) Run(ctx context.Context, job Job, sink Sink) (Tally, error) {
	threshold := b.FlushThreshold
	if threshold == 0 {
		threshold = DefaultFlushThreshold
	}

	sampler := NewSampler(job.Seed, job.WorkerID)
	bound := job.Domain.Accuracy
	r2 := job.Domain.RadiusSquared()

	var total, pending Tally
	flush := func() {
		if pending.Samples == 0 {
			return
		}
		sink.Flush(pending)
		total = total.Add(pending)
		pending = Tally{}
	}

	var done uint64
	for done < job.Samples {
		n := min(job.Samples-done, cancelCheckInterval)
		for i := uint64(0); i < n; i++ {
			x, y := sampler.Point(bound)
			pending.Samples++
			if x*x+y*y < r2 {
				pending.Hits++
				if pending.Hits >= threshold {
					flush()
				}
			}
		}
		done += n

		select {
		case <-ctx.Done():
			flush()
			return total, ctx.Err()
		default:
		}
	}

	flush()
	return total, nil
}

// DefaultLatticeChunk is the number of lattice points between two flushes.
const DefaultLatticeChunk = 1 << 22

// LatticeBackend walks the coordinate grid instead of sampling it. Point
// index i maps to x = i mod r + 1 and y = (i / r) mod r + 1, so a budget of
// r² starting at offset 0 covers every point exactly once and the result is
// deterministic. It plays the role of the reference kernel for accelerated
// backends.
type LatticeBackend struct {
	// ChunkSize is the number of points evaluated between flushes.
	// Zero means DefaultLatticeChunk.
	ChunkSize uint64
}

// NewLatticeBackend returns a lattice backend flushing every chunkSize points.
func NewLatticeBackend(chunkSize uint64) *LatticeBackend {
	return &LatticeBackend{ChunkSize: chunkSize}
}

// Name returns "lattice".
func (b *LatticeBackend) Name() string { return "lattice" }

// Run evaluates the points with global indices
// [job.Offset, job.Offset+job.Samples).
func (b *LatticeBackend) Run(ctx context.Context, job Job, sink Sink) (Tally, error) {
	chunk := b.ChunkSize
	if chunk == 0 {
		chunk = DefaultLatticeChunk
	}

	r := job.Domain.Accuracy
	r2 := job.Domain.RadiusSquared()

	start := job.Offset % r2
	x := start%r + 1
	y := start/r + 1

	var total Tally
	var done uint64
	for done < job.Samples {
		n := min(job.Samples-done, chunk)
		var t Tally
		for i := uint64(0); i < n; i++ {
			if x*x+y*y < r2 {
				t.Hits++
			}
			x++
			if x > r {
				x = 1
				y++
				if y > r {
					y = 1
				}
			}
		}
		t.Samples = n
		done += n

		sink.Flush(t)
		total = total.Add(t)

		select {
		case <-ctx.Done():
			return total, ctx.Err()
		default:
		}
	}

	return total, nil
}

var backends = map[string]func(flushThreshold uint64) Backend{
	"cpu":     func(f uint64) Backend { return NewCPUBackend(f) },
	"lattice": func(f uint64) Backend { return NewLatticeBackend(f) },
}

// BackendByName resolves a backend by its Name. flushThreshold is the CPU
// flush threshold or the lattice chunk size; zero selects the default.
func BackendByName(name string, flushThreshold uint64) (Backend, error) {
	build, ok := backends[name]
	if !ok {
		return nil, errInvalidConfig("Backend", fmt.Sprintf("%q is unknown (have %v)", name, BackendNames()))
	}
	return build(flushThreshold), nil
}

// BackendNames lists the names accepted by BackendByName.
func BackendNames() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
