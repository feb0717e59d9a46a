// Package pool provides a fixed-size worker pool with lock-free per-worker
// queues and executor-style lifecycle: Shutdown stops intake and lets queued
// tasks drain, ShutdownNow cancels running tasks and drops queued ones, and
// AwaitTermination blocks until every worker has exited.
package pool

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// Task is a unit of work. ctx is cancelled by ShutdownNow; long running tasks
// should watch it.
type Task func(ctx context.Context)

type poolState uint32

const (
	stateRunning poolState = iota
	stateDraining
	stateStopped
)

// Pool is a fixed-size worker pool.
type Pool struct {
	config  Config
	workers []*worker

	// Lifecycle management
	state      atomic.Uint32 // poolState
	submitMu   sync.RWMutex  // held for reading while pushing, for writing on state change
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	submitWg   sync.WaitGroup
	terminated chan struct{}

	// worker id for round-robin distribution of tasks
	nextWorkerID atomic.Uint64

	metrics poolMetrics

	// Latency tracking, in microseconds
	latencySum   atomic.Uint64
	latencyCount atomic.Uint64
	latencyMax   atomic.Uint64
}

// poolMetrics tracks pool-wide statistics
type poolMetrics struct {
	submitted atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
	fallback  atomic.Uint64
}

// New creates a pool and starts its workers.
// It returns an error if the configuration is invalid.
//
// Example:
//
//	p, err := pool.New(pool.WithNumWorkers(4))
//	if err != nil {
//	    return err
//	}
//	p.Submit(func(ctx context.Context) { work(ctx) })
//	p.Shutdown()
//	err = p.AwaitTermination(ctx)
func New(opts ...Option) (*Pool, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		config:     cfg,
		workers:    make([]*worker, cfg.NumWorkers),
		ctx:        ctx,
		cancel:     cancel,
		terminated: make(chan struct{}),
	}

	for i := range p.workers {
		p.workers[i] = newWorker(i, p, cfg.QueueSizePerWorker)
	}

	for _, w := range p.workers {
		p.wg.Add(1)
		go func(wk *worker) {
			defer p.wg.Done()
			wk.run()
		}(w)
	}

	go func() {
		p.wg.Wait()
		p.state.Store(uint32(stateStopped))
		p.cancel()
		close(p.terminated)
	}()

	return p, nil
}

// Submit queues a task. When every worker queue is full the task runs in
// the caller's goroutine instead.
//
// Returns ErrNilTask if task is nil.
// Returns ErrPoolShutdown once Shutdown or ShutdownNow has been called.
func (p *Pool) Submit(task Task) error {
	if task == nil {
		return ErrNilTask
	}

	p.submitMu.RLock()
	if p.loadState() != stateRunning {
		p.submitMu.RUnlock()
		return ErrPoolShutdown
	}

	// Add to waitgroup BEFORE publishing to prevent races with Wait
	p.submitWg.Add(1)
	p.metrics.submitted.Add(1)

	queued := p.tryFastSubmit(task)
	p.submitMu.RUnlock()

	if queued {
		return nil
	}

	// Fallback: execute in caller's goroutine
	p.metrics.fallback.Add(1)
	p.execute(nil, task)

	return nil
}

// TrySubmit queues a task like Submit but never runs it in the caller's
// goroutine. It returns ErrQueueFull when every worker queue is full.
func (p *Pool) TrySubmit(task Task) error {
	if task == nil {
		return ErrNilTask
	}

	p.submitMu.RLock()
	defer p.submitMu.RUnlock()

	if p.loadState() != stateRunning {
		return ErrPoolShutdown
	}

	p.submitWg.Add(1)
	p.metrics.submitted.Add(1)

	if !p.tryFastSubmit(task) {
		p.metrics.submitted.Add(^uint64(0))
		p.submitWg.Done()
		return ErrQueueFull
	}

	return nil
}

// tryFastSubmit pushes to the worker queues, round-robin
func (p *Pool) tryFastSubmit(task Task) bool {
	numWorkers := len(p.workers)

	next := p.nextWorkerID.Add(1)
	startIdx := int(next % uint64(numWorkers))

	for i := 0; i < numWorkers; i++ {
		wk := p.workers[(startIdx+i)%numWorkers]
		if wk.queue.tryPush(task) {
			wk.signal()
			return true
		}
	}

	return false
}

// Shutdown stops accepting tasks. Queued and running tasks run to completion;
// workers exit once their queue is empty. Shutdown does not wait, use
// AwaitTermination for that. Calls after the first are ignored.
func (p *Pool) Shutdown() {
	p.submitMu.Lock()
	changed := p.state.CompareAndSwap(uint32(stateRunning), uint32(stateDraining))
	p.submitMu.Unlock()

	if changed {
		p.signalAll()
	}
}

// ShutdownNow stops accepting tasks, cancels the context passed to running
// tasks and drops every queued task. It does not wait for running tasks to
// return.
func (p *Pool) ShutdownNow() {
	p.submitMu.Lock()
	prev := poolState(p.state.Swap(uint32(stateStopped)))
	p.submitMu.Unlock()

	if prev == stateStopped {
		return
	}

	p.cancel()
	p.signalAll()
}

// AwaitTermination blocks until every worker has exited after a shutdown, or
// until ctx is done, in which case it returns ctx.Err().
func (p *Pool) AwaitTermination(ctx context.Context) error {
	select {
	case <-p.terminated:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until all submitted tasks have completed or been dropped.
// It does not shut down the pool.
func (p *Pool) Wait() {
	p.submitWg.Wait()
}

// IsShutdown reports whether Shutdown or ShutdownNow has been called.
func (p *Pool) IsShutdown() bool {
	return p.loadState() != stateRunning
}

// IsTerminated reports whether every worker has exited.
func (p *Pool) IsTerminated() bool {
	select {
	case <-p.terminated:
		return true
	default:
		return false
	}
}

// NumWorkers returns the number of workers in the pool.
func (p *Pool) NumWorkers() int {
	return len(p.workers)
}

// Stats returns a snapshot of pool statistics.
func (p *Pool) Stats() Stats {
	submitted := p.metrics.submitted.Load()
	completed := p.metrics.completed.Load()
	dropped := p.metrics.dropped.Load()

	inFlight := uint64(0)
	if submitted > completed+dropped {
		inFlight = submitted - completed - dropped
	}

	workerStats := make([]WorkerStats, len(p.workers))
	totalDepth := 0
	for i, wk := range p.workers {
		depth := wk.queue.size()
		totalDepth += depth

		workerStats[i] = WorkerStats{
			WorkerID:      i,
			TasksExecuted: wk.tasksExecuted.Load(),
			TasksFailed:   wk.tasksFailed.Load(),
			QueueDepth:    depth,
			Capacity:      wk.queue.capacity(),
			State:         wk.getState().String(),
		}
	}

	var latencyAvg, latencyMax time.Duration
	if n := p.latencyCount.Load(); n > 0 {
		latencyAvg = time.Duration(p.latencySum.Load()/n) * time.Microsecond
		latencyMax = time.Duration(p.latencyMax.Load()) * time.Microsecond
	}

	return Stats{
		Submitted:        submitted,
		Completed:        completed,
		Failed:           p.metrics.failed.Load(),
		Dropped:          dropped,
		FallbackExecuted: p.metrics.fallback.Load(),
		InFlight:         inFlight,
		NumWorkers:       len(p.workers),
		TotalQueueDepth:  totalDepth,
		LatencyAvg:       latencyAvg,
		LatencyMax:       latencyMax,
		WorkerStats:      workerStats,
	}
}

func (p *Pool) loadState() poolState {
	return poolState(p.state.Load())
}

func (p *Pool) signalAll() {
	for _, wk := range p.workers {
		wk.signal()
	}
}

// recordLatency records task execution latency
func (p *Pool) recordLatency(duration time.Duration) {
	micros := uint64(duration.Microseconds())

	p.latencySum.Add(micros)
	p.latencyCount.Add(1)

	for {
		current := p.latencyMax.Load()
		if micros <= current {
			break
		}
		if p.latencyMax.CompareAndSwap(current, micros) {
			break
		}
	}
}

// execute runs a task with panic recovery. w is nil for fallback execution.
func (p *Pool) execute(w *worker, task Task) {
	start := time.Now()
	workerID := -1
	if w != nil {
		workerID = w.id
	}

	defer func() {
		if r := recover(); r != nil {
			p.metrics.failed.Add(1)
			if w != nil {
				w.tasksFailed.Add(1)
			}
			if p.config.PanicHandler != nil {
				p.config.PanicHandler(workerID, r, debug.Stack())
			}
		}

		p.recordLatency(time.Since(start))
		if w != nil {
			w.tasksExecuted.Add(1)
		}
		p.metrics.completed.Add(1)
		p.submitWg.Done()
	}()

	task(p.ctx)
}

// drop discards a queued task that will never run.
func (p *Pool) drop() {
	p.metrics.dropped.Add(1)
	p.submitWg.Done()
}
