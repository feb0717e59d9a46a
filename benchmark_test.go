package pimc

import (
	"context"
	"runtime"
	"sync"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
)

// ============================================================================
// Sampling Throughput
// ============================================================================

func BenchmarkCPUBackend(b *testing.B) {
	job := Job{Samples: uint64(b.N), Domain: Domain{Accuracy: DefaultAccuracy}, Seed: 1}

	b.ResetTimer()
	_, _ = NewCPUBackend(0).Run(context.Background(), job, SinkFunc(func(Tally) {}))

	b.ReportMetric(float64(b.N)/b.Elapsed().Seconds(), "samples/sec")
}

func BenchmarkLatticeBackend(b *testing.B) {
	job := Job{Samples: uint64(b.N), Domain: Domain{Accuracy: DefaultAccuracy}}

	b.ResetTimer()
	_, _ = NewLatticeBackend(0).Run(context.Background(), job, SinkFunc(func(Tally) {}))

	b.ReportMetric(float64(b.N)/b.Elapsed().Seconds(), "samples/sec")
}

// ============================================================================
// Parallel vs Sequential
// ============================================================================

func BenchmarkRunSequential(b *testing.B) {
	b.ResetTimer()
	_, _ = RunSequential(context.Background(), uint64(b.N), Domain{Accuracy: DefaultAccuracy}, 1)

	b.ReportMetric(float64(b.N)/b.Elapsed().Seconds(), "samples/sec")
}

func BenchmarkEngine_Parallel(b *testing.B) {
	logger, _ := test.NewNullLogger()
	e, err := New(
		WithLogger(logger),
		WithReporter(ReporterFunc(func(Progress) {})),
		WithNumWorkers(runtime.NumCPU()),
		// Small cap so every worker gets a share
		WithPerWorkerCap(1),
		WithSeed(1),
	)
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	_, _ = e.Run(context.Background(), uint64(b.N))

	b.ReportMetric(float64(b.N)/b.Elapsed().Seconds(), "samples/sec")
}

// ============================================================================
// Accumulator Contention
// ============================================================================

func BenchmarkAccumulator_Contended(b *testing.B) {
	acc := NewAccumulator()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			acc.Add(1)
		}
	})
}

func BenchmarkAccumulator_Batched(b *testing.B) {
	acc := NewAccumulator()
	workers := runtime.NumCPU()
	per := b.N / workers

	b.ResetTimer()
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var local uint64
			for i := 0; i < per; i++ {
				local++
				if local == DefaultFlushThreshold {
					acc.Add(local)
					local = 0
				}
			}
			acc.Add(local)
		}()
	}
	wg.Wait()
}
