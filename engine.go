package pimc

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"github.com/tahsin716/pimc/pool"
)

// Engine runs parallel estimations with a fixed configuration. An Engine
// holds no per-run state, so Run may be called concurrently.
type Engine struct {
	cfg Config
}

// New creates an engine. It returns an error wrapping ErrInvalidConfig if
// the resulting configuration is invalid.
//
// Example:
//
//	engine, err := pimc.New(
//	    pimc.WithAccuracy(200_000),
//	    pimc.WithNumWorkers(8),
//	    pimc.WithTimeout(10*time.Minute),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	res, err := engine.Run(ctx, 4_000_000_000)
func New(opts ...Option) (*Engine, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Engine{cfg: cfg.withDefaults()}, nil
}

// Config returns the engine's configuration with runtime defaults applied.
func (e *Engine) Config() Config {
	return e.cfg
}

// RunParallel is a one-shot shorthand for New followed by Run. The explicit
// arguments take precedence over opts.
func RunParallel(
	ctx context.Context,
	totalSamples uint64,
	domain Domain,
	numWorkers int,
	perWorkerCap uint64,
	timeout time.Duration,
	opts ...Option,
) (RunResult, error) {
	opts = append(opts,
		WithAccuracy(domain.Accuracy),
		WithNumWorkers(numWorkers),
		WithPerWorkerCap(perWorkerCap),
		WithTimeout(timeout),
	)

	engine, err := New(opts...)
	if err != nil {
		return RunResult{}, err
	}
	return engine.Run(ctx, totalSamples)
}

// workerSlot is the engine's bookkeeping for one assignment entry.
type workerSlot struct {
	id       int
	assigned uint64

	// Credited tallies, updated by the sink
	samples atomic.Uint64
	hits    atomic.Uint64

	mu       sync.Mutex
	state    WorkerState
	duration time.Duration
	fault    *WorkerFault
}

func (s *workerSlot) setState(state WorkerState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *workerSlot) finish(state WorkerState, d time.Duration, fault *WorkerFault) {
	s.mu.Lock()
	s.state = state
	s.duration = d
	s.fault = fault
	s.mu.Unlock()
}

func (s *workerSlot) stats() (WorkerStats, *WorkerFault) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ws := WorkerStats{
		WorkerID: s.id,
		Assigned: s.assigned,
		Samples:  s.samples.Load(),
		Hits:     s.hits.Load(),
		State:    s.state,
		Duration: s.duration,
	}
	if s.fault != nil {
		ws.Fault = s.fault.Error()
	}
	return ws, s.fault
}

// run is the state of one Run call.
type run struct {
	id      string
	cfg     Config
	seed    uint64
	domain  Domain
	log     logrus.FieldLogger
	hits    *Accumulator
	samples *Accumulator
	slots   []*workerSlot
}

// credit adds a flushed tally to the shared accumulators. Samples go first
// so that a concurrent snapshot never sees more hits than samples.
func (r *run) credit(slot *workerSlot, t Tally) {
	r.samples.Add(t.Samples)
	r.hits.Add(t.Hits)
	slot.samples.Add(t.Samples)
	slot.hits.Add(t.Hits)
}

// Run estimates π from totalSamples samples. It blocks until every worker
// finished, the timeout expired or ctx was cancelled.
//
// The returned RunResult is populated in every case except configuration
// errors. On timeout the error wraps ErrTimeout, on cancellation of ctx it
// wraps ErrInterrupted, and faults of individual workers are joined in as a
// *FaultError.
func (e *Engine) Run(ctx context.Context, totalSamples uint64) (RunResult, error) {
	start := time.Now()
	cfg := e.cfg

	assignment, err := Partition(totalSamples, cfg.NumWorkers, cfg.PerWorkerCap)
	if err != nil {
		return RunResult{}, err
	}

	r := &run{
		id:      xid.New().String(),
		cfg:     cfg,
		seed:    cfg.Seed,
		domain:  cfg.Domain(),
		hits:    NewAccumulator(),
		samples: NewAccumulator(),
		slots:   make([]*workerSlot, len(assignment.Counts)),
	}
	if r.seed == 0 {
		r.seed = timeSeed()
	}
	r.log = cfg.Logger.WithFields(logrus.Fields{
		"run":     r.id,
		"backend": cfg.Backend.Name(),
	})

	if assignment.CapExceeded {
		r.log.WithFields(logrus.Fields{
			"per_worker": assignment.Counts[0],
			"cap":        cfg.PerWorkerCap,
		}).Warn("Samples per worker exceed the per-worker cap, the run may take disproportionately long")
	}
	r.log.WithFields(logrus.Fields{
		"samples":   totalSamples,
		"accuracy":  cfg.Accuracy,
		"workers":   cfg.NumWorkers,
		"busy":      assignment.Busy(),
		"tier":      assignment.Tier,
		"remainder": assignment.Remainder,
	}).Info("Work distribution")
	r.log.WithField("counts", assignment.Counts).Debug("Per-worker budgets")

	runCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	monitor := NewProgressMonitor(r.id, r.hits, r.samples, totalSamples,
		cfg.ExpectedHitRate, cfg.ProgressInterval, cfg.Reporter)
	monitor.Start(runCtx)
	defer monitor.Stop()

	p, err := pool.New(
		pool.WithNumWorkers(cfg.NumWorkers),
		pool.WithPanicHandler(func(workerID int, value any, stack []byte) {
			r.log.WithFields(logrus.Fields{
				"pool_worker": workerID,
				"panic":       value,
			}).Error("Task panicked outside of a backend")
		}),
	)
	if err != nil {
		return RunResult{}, fmt.Errorf("pimc: create pool: %w", err)
	}
	defer p.ShutdownNow()

	offsets := assignment.Offsets()
	for i, count := range assignment.Counts {
		slot := &workerSlot{id: i, assigned: count, state: WorkerIdle}
		r.slots[i] = slot
		if count == 0 {
			continue
		}

		slot.state = WorkerDropped
		job := Job{
			WorkerID: i,
			Offset:   offsets[i],
			Samples:  count,
			Domain:   r.domain,
			Seed:     r.seed,
		}
		// At most one job per pool worker is queued, so TrySubmit only fails
		// once the pool is shut down. It never runs a job on this goroutine,
		// which would put the job out of reach of the timeout.
		if err := p.TrySubmit(func(poolCtx context.Context) { r.work(poolCtx, job, slot) }); err != nil {
			slot.finish(WorkerFaulted, 0, &WorkerFault{WorkerID: i, Err: err})
		}
	}
	p.Shutdown()

	var runErr error
	if err := p.AwaitTermination(runCtx); err != nil && !p.IsTerminated() {
		runErr = r.cancel(runCtx, p)
	}

	monitor.Stop()
	elapsed := time.Since(start)

	ps := p.Stats()
	r.log.WithFields(logrus.Fields{
		"submitted":   ps.Submitted,
		"completed":   ps.Completed,
		"dropped":     ps.Dropped,
		"caller_runs": ps.FallbackExecuted,
		"latency_max": ps.LatencyMax,
	}).Debug("Pool stats")

	result := RunResult{
		RunID:            r.id,
		Backend:          cfg.Backend.Name(),
		HitsInside:       r.hits.Snapshot(),
		TotalSamples:     r.samples.Snapshot(),
		RequestedSamples: totalSamples,
		ElapsedMillis:    uint64(elapsed.Milliseconds()),
		Accuracy:         cfg.Accuracy,
		Tier:             assignment.Tier,
		CapExceeded:      assignment.CapExceeded,
		Remainder:        assignment.Remainder,
		Partial:          runErr != nil,
		Workers:          make([]WorkerStats, len(r.slots)),
	}
	result.PiEstimate = estimatePi(result.HitsInside, result.TotalSamples)

	var faults []*WorkerFault
	for i, slot := range r.slots {
		ws, fault := slot.stats()
		result.Workers[i] = ws
		if fault != nil {
			faults = append(faults, fault)
		}
	}

	var faultErr error
	if len(faults) > 0 {
		result.Partial = true
		faultErr = &FaultError{Faults: faults}
	}

	r.log.WithFields(logrus.Fields{
		"pi":      result.PiEstimate,
		"hits":    result.HitsInside,
		"samples": result.TotalSamples,
		"elapsed": elapsed.Round(time.Millisecond),
		"partial": result.Partial,
	}).Info("Run finished")

	return result, joinErrors(runErr, faultErr)
}

// cancel stops a run whose context is done: running backends see their
// context cancelled and queued jobs are dropped. It waits at most
// CancelGrace for workers to return.
func (r *run) cancel(runCtx context.Context, p *pool.Pool) error {
	cause := runCtx.Err()
	sentinel := ErrInterrupted
	if errors.Is(cause, context.DeadlineExceeded) {
		sentinel = ErrTimeout
	}

	r.log.WithField("cause", cause).Warn("Stopping workers")
	p.ShutdownNow()

	graceCtx, cancel := context.WithTimeout(context.Background(), r.cfg.CancelGrace)
	defer cancel()
	if err := p.AwaitTermination(graceCtx); err != nil {
		r.log.WithField("grace", r.cfg.CancelGrace).
			Warn("Workers did not stop within the grace period, reading accumulators anyway")
	}

	return fmt.Errorf("%w: %w", sentinel, cause)
}

// work runs the backend for one job and records the outcome in slot.
func (r *run) work(ctx context.Context, job Job, slot *workerSlot) {
	start := time.Now()
	slot.setState(WorkerRunning)

	var flushedSamples, flushedHits atomic.Uint64
	sink := SinkFunc(func(t Tally) {
		flushedSamples.Add(t.Samples)
		flushedHits.Add(t.Hits)
		r.credit(slot, t)
	})

	var fault *WorkerFault
	state := WorkerDone
	defer func() {
		if v := recover(); v != nil {
			fault = &WorkerFault{WorkerID: job.WorkerID, Value: v, Stack: string(debug.Stack())}
			state = WorkerFaulted
		}
		if fault != nil {
			r.log.WithFields(logrus.Fields{
				"worker":   job.WorkerID,
				"credited": slot.samples.Load(),
			}).WithError(fault).Error("Worker fault")
		}
		slot.finish(state, time.Since(start), fault)
	}()

	tally, err := r.cfg.Backend.Run(ctx, job, sink)

	switch {
	case err != nil && ctx.Err() == nil:
		fault = &WorkerFault{WorkerID: job.WorkerID, Err: err}
		state = WorkerFaulted
		return
	case tally.Samples > job.Samples || tally.Hits > tally.Samples:
		fault = &WorkerFault{WorkerID: job.WorkerID, Err: fmt.Errorf(
			"backend reported %d hits in %d samples for a budget of %d",
			tally.Hits, tally.Samples, job.Samples)}
		state = WorkerFaulted
		return
	case err != nil:
		state = WorkerCancelled
	}

	fs, fh := flushedSamples.Load(), flushedHits.Load()
	if tally.Samples < fs || tally.Hits < fh {
		fault = &WorkerFault{WorkerID: job.WorkerID, Err: fmt.Errorf(
			"backend returned %d/%d but flushed %d/%d", tally.Hits, tally.Samples, fh, fs)}
		state = WorkerFaulted
		return
	}
	r.credit(slot, Tally{Samples: tally.Samples - fs, Hits: tally.Hits - fh})

	if state == WorkerDone && tally.Samples < job.Samples {
		state = WorkerCancelled
	}
}
