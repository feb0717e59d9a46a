package pimc

import (
	"runtime"
	"time"

	"github.com/shirou/gopsutil/cpu"
	"github.com/sirupsen/logrus"
)

// Defaults used by DefaultConfig.
const (
	DefaultAccuracy         uint64        = 200_000
	DefaultPerWorkerCap     uint64        = 500_000_000
	DefaultTimeout          time.Duration = 30 * time.Minute
	DefaultProgressInterval time.Duration = time.Second
	DefaultCancelGrace      time.Duration = 5 * time.Second
)

// Config contains all configuration options for the engine
type Config struct {
	// Accuracy bounds the sampled square [1, Accuracy]² and is the circle
	// radius. Must be in [1, MaxAccuracy].
	Accuracy uint64

	// NumWorkers is both the number of entries in the Assignment and the
	// size of the worker pool.
	// If 0, defaults to the number of logical CPUs.
	NumWorkers int

	// PerWorkerCap is the largest budget a worker should get before the
	// partitioner falls back to an even split.
	PerWorkerCap uint64

	// Timeout bounds the whole run. Zero disables it.
	Timeout time.Duration

	// FlushThreshold is the number of buffered hits per flush of the CPU
	// backend (points per flush for the lattice backend).
	FlushThreshold uint64

	// ProgressInterval is the poll period of the progress monitor.
	ProgressInterval time.Duration

	// ExpectedHitRate is the share of samples expected to be hits, used to
	// turn the hit count into a progress estimate.
	ExpectedHitRate float64

	// Seed seeds the worker samplers. Zero picks a time based seed per run.
	Seed uint64

	// CancelGrace bounds how long a timed out or interrupted run waits for
	// workers to observe cancellation before reading the accumulators.
	CancelGrace time.Duration

	// Backend evaluates samples. Nil means a CPUBackend with FlushThreshold.
	Backend Backend

	// Reporter receives progress samples. Nil means LogReporter on Logger.
	Reporter ProgressReporter

	// Logger receives engine logs. Nil means logrus.StandardLogger().
	Logger logrus.FieldLogger
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Accuracy:         DefaultAccuracy,
		NumWorkers:       0, // will be set to DefaultNumWorkers()
		PerWorkerCap:     DefaultPerWorkerCap,
		Timeout:          DefaultTimeout,
		FlushThreshold:   DefaultFlushThreshold,
		ProgressInterval: DefaultProgressInterval,
		ExpectedHitRate:  QuarterCircleHitRate,
		CancelGrace:      DefaultCancelGrace,
	}
}

// Validate checks the configuration and returns an error if invalid
func (c *Config) Validate() error {
	if err := (Domain{Accuracy: c.Accuracy}).validate(); err != nil {
		return err
	}

	if c.NumWorkers < 0 {
		return errInvalidConfig("NumWorkers", "must be >= 0")
	}

	if c.PerWorkerCap == 0 {
		return errInvalidConfig("PerWorkerCap", "must be > 0")
	}

	if c.Timeout < 0 {
		return errInvalidConfig("Timeout", "must be >= 0")
	}

	if c.FlushThreshold == 0 {
		return errInvalidConfig("FlushThreshold", "must be > 0")
	}

	if c.ProgressInterval <= 0 {
		return errInvalidConfig("ProgressInterval", "must be > 0")
	}

	if c.ExpectedHitRate <= 0 || c.ExpectedHitRate > 1 {
		return errInvalidConfig("ExpectedHitRate", "must be in (0, 1]")
	}

	if c.CancelGrace < 0 {
		return errInvalidConfig("CancelGrace", "must be >= 0")
	}

	return nil
}

// withDefaults fills the zero values that have a runtime default.
func (c Config) withDefaults() Config {
	if c.NumWorkers == 0 {
		c.NumWorkers = DefaultNumWorkers()
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
	if c.Backend == nil {
		c.Backend = NewCPUBackend(c.FlushThreshold)
	}
	if c.Reporter == nil {
		c.Reporter = NewLogReporter(c.Logger)
	}
	return c
}

// Domain returns the coordinate domain of the configuration.
func (c *Config) Domain() Domain {
	return Domain{Accuracy: c.Accuracy}
}

// DefaultNumWorkers returns the number of logical CPUs, as reported by the
// OS, falling back to runtime.NumCPU.
func DefaultNumWorkers() int {
	n, err := cpu.Counts(true)
	if err != nil || n <= 0 {
		return runtime.NumCPU()
	}
	return n
}

// Option configures an Engine.
type Option func(*Config)

// WithAccuracy sets the coordinate bound and circle radius.
func WithAccuracy(accuracy uint64) Option {
	return func(c *Config) { c.Accuracy = accuracy }
}

// WithNumWorkers sets the number of workers. Zero selects the CPU count.
func WithNumWorkers(n int) Option {
	return func(c *Config) { c.NumWorkers = n }
}

// WithPerWorkerCap sets the per-worker sample cap.
func WithPerWorkerCap(limit uint64) Option {
	return func(c *Config) { c.PerWorkerCap = limit }
}

// WithTimeout sets the run timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithFlushThreshold sets how many hits a worker buffers before flushing.
func WithFlushThreshold(n uint64) Option {
	return func(c *Config) { c.FlushThreshold = n }
}

// WithProgressInterval sets the progress poll period.
func WithProgressInterval(d time.Duration) Option {
	return func(c *Config) { c.ProgressInterval = d }
}

// WithExpectedHitRate overrides the hit rate used for progress estimates.
func WithExpectedHitRate(rate float64) Option {
	return func(c *Config) { c.ExpectedHitRate = rate }
}

// WithSeed fixes the sampler seed, making CPU runs reproducible for a given
// assignment.
func WithSeed(seed uint64) Option {
	return func(c *Config) { c.Seed = seed }
}

// WithCancelGrace sets how long cancellation waits for workers to stop.
func WithCancelGrace(d time.Duration) Option {
	return func(c *Config) { c.CancelGrace = d }
}

// WithBackend sets the sampling backend.
func WithBackend(b Backend) Option {
	return func(c *Config) { c.Backend = b }
}

// WithReporter sets the progress reporter.
func WithReporter(r ProgressReporter) Option {
	return func(c *Config) { c.Reporter = r }
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Config) { c.Logger = l }
}
