package pool

import (
	"runtime"
	"time"
)

// PanicHandler is called with the worker id, the recovered value and the
// stack of a task that panicked.
type PanicHandler func(workerID int, value any, stack []byte)

// Config holds all configuration options for a pool.
type Config struct {
	// NumWorkers is the number of worker goroutines.
	// If 0, defaults to runtime.NumCPU()
	NumWorkers int

	// QueueSizePerWorker is the size of each worker's queue.
	// Must be a power of 2.
	QueueSizePerWorker int

	// SpinCount is the number of iterations an idle worker spins before parking.
	SpinCount int

	// MaxParkTime is the maximum time a parked worker sleeps before
	// re-checking its queue.
	MaxParkTime time.Duration

	// PanicHandler is called when a task panics. If nil, the panic is counted
	// and otherwise ignored.
	PanicHandler PanicHandler

	// OnWorkerStart and OnWorkerStop are called from the worker goroutine.
	OnWorkerStart func(workerID int)
	OnWorkerStop  func(workerID int)
}

// Option configures a Pool.
type Option func(*Config)

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		NumWorkers:         runtime.NumCPU(),
		QueueSizePerWorker: 64,
		SpinCount:          30,
		MaxParkTime:        10 * time.Millisecond,
	}
}

func (c *Config) validate() error {
	if c.NumWorkers <= 0 {
		return errInvalidConfig("NumWorkers must be > 0")
	}

	if c.QueueSizePerWorker <= 0 || c.QueueSizePerWorker&(c.QueueSizePerWorker-1) != 0 {
		return errInvalidConfig("QueueSizePerWorker must be a power of 2")
	}

	if c.SpinCount < 0 {
		return errInvalidConfig("SpinCount must be >= 0")
	}

	if c.MaxParkTime <= 0 {
		return errInvalidConfig("MaxParkTime must be > 0")
	}

	return nil
}

// WithNumWorkers sets the number of workers. Zero keeps the default.
func WithNumWorkers(n int) Option {
	return func(c *Config) {
		if n != 0 {
			c.NumWorkers = n
		}
	}
}

// WithQueueSizePerWorker sets the per-worker queue size.
func WithQueueSizePerWorker(size int) Option {
	return func(c *Config) { c.QueueSizePerWorker = size }
}

// WithSpinCount sets how long idle workers spin before parking.
func WithSpinCount(n int) Option {
	return func(c *Config) { c.SpinCount = n }
}

// WithMaxParkTime sets the maximum park duration.
func WithMaxParkTime(d time.Duration) Option {
	return func(c *Config) { c.MaxParkTime = d }
}

// WithPanicHandler sets the panic handler.
func WithPanicHandler(h PanicHandler) Option {
	return func(c *Config) { c.PanicHandler = h }
}

// WithWorkerHooks sets the worker lifecycle hooks.
func WithWorkerHooks(onStart, onStop func(workerID int)) Option {
	return func(c *Config) {
		c.OnWorkerStart = onStart
		c.OnWorkerStop = onStop
	}
}
