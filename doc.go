// Package pimc estimates π by parallel Monte Carlo sampling.
//
// Integer points are drawn uniformly from the square [1, r]×[1, r], where r
// is the configured accuracy, and a point counts as a hit when it lies
// strictly inside the quarter circle of radius r (x²+y² < r²). With n samples
// and h hits the estimate is 4h/n.
//
// # Key Features
//
//   - Three-tier work partitioning with a per-worker sample cap
//   - Worker-local random sources, no contention on the hot path
//   - Batched, race-free accumulation through atomic counters
//   - Live progress through pluggable reporters
//   - Run timeout and context cancellation with best-effort partial results
//   - Pluggable sampling backends (random CPU sampling, exhaustive lattice walk)
//   - Panicking or failing backends are isolated; the run degrades, it does
//     not abort
//
// # Quick Start
//
//	engine, err := pimc.New(
//	    pimc.WithAccuracy(200_000),
//	    pimc.WithNumWorkers(8),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	res, err := engine.Run(ctx, 4_000_000_000)
//	if err != nil {
//	    log.Printf("run incomplete: %v", err)
//	}
//	fmt.Printf("π ≈ %.10f\n", res.PiEstimate)
//
// RunParallel does the same in one call:
//
//	res, err := pimc.RunParallel(ctx, 1_000_000, pimc.Domain{Accuracy: 200_000},
//	    8, pimc.DefaultPerWorkerCap, time.Minute)
//
// # Partitioning
//
// Partition splits the sample budget across workers:
//
//   - A budget at or below the per-worker cap goes to the first worker.
//   - A budget whose even share fits the cap is dealt out in cap-sized
//     pieces, in worker order. Trailing workers may get nothing.
//   - Otherwise every worker gets an even share above the cap and the run
//     logs a warning.
//
// Integer division may leave up to workers-1 samples unassigned. They are
// reported in Assignment.Remainder and never evaluated, so on a complete
// run RunResult.TotalSamples is RequestedSamples minus Remainder.
//
// # Backends
//
// A Backend evaluates one worker's Job and flushes interim tallies through a
// Sink. CPUBackend samples randomly and flushes every FlushThreshold hits.
// LatticeBackend visits the grid points in order, so a budget of r² covers
// the whole square and gives an exact, reproducible count:
//
//	engine, _ := pimc.New(
//	    pimc.WithAccuracy(1_000),
//	    pimc.WithBackend(pimc.NewLatticeBackend(0)),
//	)
//	res, _ := engine.Run(ctx, 1_000*1_000)
//
// # Progress
//
// A ProgressMonitor polls the hit counter every ProgressInterval. Progress is
// estimated from hits, as hits / (requested × 0.7854), so it is approximate
// and can slightly exceed 100%. Reporters are plain interfaces:
//
//	engine, _ := pimc.New(
//	    pimc.WithReporter(pimc.ReporterFunc(func(p pimc.Progress) {
//	        fmt.Printf("%.1f%%\n", p.Fraction*100)
//	    })),
//	)
//
// # Error Handling
//
// Configuration errors match ErrInvalidConfig and are returned before any
// goroutine starts. Every other error comes with a populated RunResult:
//
//	res, err := engine.Run(ctx, n)
//	switch {
//	case errors.Is(err, pimc.ErrTimeout), errors.Is(err, pimc.ErrInterrupted):
//	    // res.Partial is set, res.TotalSamples < n
//	case errors.Is(err, pimc.ErrWorkerFault):
//	    var faults *pimc.FaultError
//	    errors.As(err, &faults)
//	}
//
// # Thread Safety
//
// Engine is immutable after New and safe for concurrent use. Every Run owns
// its accumulators, pool and monitor, so concurrent runs do not interfere.
package pimc
