package pimc

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/xid"
)

// RunSequential estimates π on the calling goroutine, without a pool,
// accumulators or progress reporting. It serves as the baseline the
// parallel engine is measured against.
//
// A zero seed picks a time based one. Cancelling ctx stops the loop within
// 65,536 samples; the partial result is returned with an error wrapping
// ErrInterrupted or ErrTimeout.
func RunSequential(ctx context.Context, totalSamples uint64, domain Domain, seed uint64) (RunResult, error) {
	if err := domain.validate(); err != nil {
		return RunResult{}, err
	}
	if seed == 0 {
		seed = timeSeed()
	}

	start := time.Now()
	job := Job{Samples: totalSamples, Domain: domain, Seed: seed}
	backend := &CPUBackend{}

	tally, err := backend.Run(ctx, job, SinkFunc(func(Tally) {}))

	result := RunResult{
		RunID:            xid.New().String(),
		Backend:          "sequential",
		PiEstimate:       estimatePi(tally.Hits, tally.Samples),
		HitsInside:       tally.Hits,
		TotalSamples:     tally.Samples,
		RequestedSamples: totalSamples,
		ElapsedMillis:    uint64(time.Since(start).Milliseconds()),
		Accuracy:         domain.Accuracy,
		Tier:             TierSingle,
		Partial:          err != nil,
	}

	if err != nil {
		sentinel := ErrInterrupted
		if ctx.Err() == context.DeadlineExceeded {
			sentinel = ErrTimeout
		}
		return result, fmt.Errorf("%w: %w", sentinel, err)
	}
	return result, nil
}
