package pool

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// workerState represents the current state of a worker
type workerState int32

const (
	workerRunning workerState = iota
	workerSpinning
	workerParked
	workerShutdown
)

func (s workerState) String() string {
	switch s {
	case workerRunning:
		return "RUNNING"
	case workerSpinning:
		return "SPINNING"
	case workerParked:
		return "PARKED"
	case workerShutdown:
		return "SHUTDOWN"
	default:
		return "UNKNOWN"
	}
}

// worker owns one queue and executes its tasks in order
type worker struct {
	id    int
	pool  *Pool
	queue *taskQueue

	state atomic.Int32 // workerState

	// Metrics
	tasksExecuted atomic.Uint64
	tasksFailed   atomic.Uint64

	// Parking mechanism
	parkMu   sync.Mutex
	parkCond *sync.Cond
	parked   bool
}

func newWorker(id int, pool *Pool, queueSize int) *worker {
	w := &worker{
		id:    id,
		pool:  pool,
		queue: newTaskQueue(queueSize),
	}
	w.parkCond = sync.NewCond(&w.parkMu)
	return w
}

// run is the main worker loop
func (w *worker) run() {
	cfg := &w.pool.config
	if cfg.OnWorkerStart != nil {
		cfg.OnWorkerStart(w.id)
	}
	defer func() {
		w.state.Store(int32(workerShutdown))
		if cfg.OnWorkerStop != nil {
			cfg.OnWorkerStop(w.id)
		}
	}()

	for {
		state := w.pool.loadState()
		if state == stateStopped {
			w.dropQueued()
			return
		}

		if task := w.queue.pop(); task != nil {
			w.pool.execute(w, task)
			continue
		}

		if state == stateDraining {
			if w.queue.isEmpty() {
				return
			}
			// A submitter claimed a slot but has not published it yet
			runtime.Gosched()
			continue
		}

		w.idle()
	}
}

// idle spins briefly, then parks until signalled or MaxParkTime elapses
func (w *worker) idle() {
	w.state.Store(int32(workerSpinning))
	for i := 0; i < w.pool.config.SpinCount; i++ {
		if !w.queue.isEmpty() || w.pool.loadState() != stateRunning {
			w.state.Store(int32(workerRunning))
			return
		}
		runtime.Gosched()
	}

	w.state.Store(int32(workerParked))
	w.parkMu.Lock()
	if w.queue.isEmpty() && w.pool.loadState() == stateRunning {
		w.parked = true
		timer := time.AfterFunc(w.pool.config.MaxParkTime, w.signal)
		for w.parked {
			w.parkCond.Wait()
		}
		timer.Stop()
	}
	w.parkMu.Unlock()
	w.state.Store(int32(workerRunning))
}

// signal wakes up a parked worker
func (w *worker) signal() {
	w.parkMu.Lock()
	if w.parked {
		w.parked = false
		w.parkCond.Signal()
	}
	w.parkMu.Unlock()
}

// dropQueued discards every queued task after ShutdownNow. No submitter can
// be mid-push here: state changes take submitMu exclusively.
func (w *worker) dropQueued() {
	for !w.queue.isEmpty() {
		if task := w.queue.pop(); task != nil {
			w.pool.drop()
		}
	}
}

func (w *worker) getState() workerState {
	return workerState(w.state.Load())
}
