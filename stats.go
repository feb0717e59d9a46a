package pimc

import (
	"math"
	"time"
)

// RunResult is the outcome of one estimation run. On timeout, interruption
// or worker faults it is still populated with what the workers flushed
// before stopping.
//
// Example:
//
//	res, err := engine.Run(ctx, 1_000_000)
//	fmt.Printf("π ≈ %.10f from %d samples\n", res.PiEstimate, res.TotalSamples)
type RunResult struct {
	// RunID identifies the run in logs, progress and history.
	RunID string `json:"run_id" yaml:"run_id"`

	// Backend is the Name of the backend that evaluated the samples.
	Backend string `json:"backend" yaml:"backend"`

	// PiEstimate is 4 × HitsInside / TotalSamples, or NaN when no sample was
	// credited.
	PiEstimate float64 `json:"pi_estimate" yaml:"pi_estimate"`

	// HitsInside is the final value of the hit accumulator.
	HitsInside uint64 `json:"hits_inside" yaml:"hits_inside"`

	// TotalSamples is the number of samples actually evaluated and credited.
	// It equals RequestedSamples minus the partition remainder on a complete
	// run and is lower on partial runs.
	TotalSamples uint64 `json:"total_samples" yaml:"total_samples"`

	// RequestedSamples is the budget passed to Run.
	RequestedSamples uint64 `json:"requested_samples" yaml:"requested_samples"`

	// ElapsedMillis is the wall clock duration of the run.
	ElapsedMillis uint64 `json:"elapsed_ms" yaml:"elapsed_ms"`

	Accuracy    uint64 `json:"accuracy" yaml:"accuracy"`
	Tier        Tier   `json:"tier" yaml:"tier"`
	CapExceeded bool   `json:"cap_exceeded" yaml:"cap_exceeded"`
	Remainder   uint64 `json:"remainder" yaml:"remainder"`

	// Partial is set when the run stopped before every worker finished its
	// budget.
	Partial bool `json:"partial" yaml:"partial"`

	Workers []WorkerStats `json:"workers,omitempty" yaml:"workers,omitempty"`
}

// HitRatio returns HitsInside / TotalSamples, or NaN for an empty run.
func (r RunResult) HitRatio() float64 {
	if r.TotalSamples == 0 {
		return math.NaN()
	}
	return float64(r.HitsInside) / float64(r.TotalSamples)
}

// Elapsed returns ElapsedMillis as a Duration.
func (r RunResult) Elapsed() time.Duration {
	return time.Duration(r.ElapsedMillis) * time.Millisecond
}

// WorkerState is the final state of one worker slot.
type WorkerState string

const (
	// WorkerIdle marks a worker with an empty assignment.
	WorkerIdle WorkerState = "IDLE"
	// WorkerRunning marks a worker still running when the run returned,
	// which only happens when it ignored cancellation past the grace period.
	WorkerRunning WorkerState = "RUNNING"
	// WorkerDone marks a worker that evaluated its whole budget.
	WorkerDone WorkerState = "DONE"
	// WorkerCancelled marks a worker stopped by timeout or interruption.
	WorkerCancelled WorkerState = "CANCELLED"
	// WorkerDropped marks a worker whose task never started.
	WorkerDropped WorkerState = "DROPPED"
	// WorkerFaulted marks a worker that panicked or returned an error.
	WorkerFaulted WorkerState = "FAULTED"
)

// WorkerStats describes what one worker contributed to a run.
type WorkerStats struct {
	WorkerID int `json:"worker_id" yaml:"worker_id"`

	// Assigned is the worker's entry in the Assignment.
	Assigned uint64 `json:"assigned" yaml:"assigned"`

	// Samples and Hits are the tallies credited for this worker.
	Samples uint64 `json:"samples" yaml:"samples"`
	Hits    uint64 `json:"hits" yaml:"hits"`

	State WorkerState `json:"state" yaml:"state"`

	// Duration is how long the worker's task ran.
	Duration time.Duration `json:"duration" yaml:"duration"`

	// Fault is the fault message for FAULTED workers.
	Fault string `json:"fault,omitempty" yaml:"fault,omitempty"`
}

func estimatePi(hits, samples uint64) float64 {
	if samples == 0 {
		return math.NaN()
	}
	return float64(hits) / float64(samples) * 4
}
