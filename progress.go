package pimc

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Progress is one poll of a running computation.
type Progress struct {
	RunID string

	// Fraction estimates completion as hits / (requested × expected hit
	// rate). It compares hits so far with the hits expected at the end
	// rather than counting samples, so it is only meaningful when the
	// geometry matches the expected hit rate, and it may slightly exceed 1.
	Fraction float64

	// Hits is the shared hit counter at poll time.
	Hits uint64

	// Samples is the number of samples flushed so far.
	Samples uint64

	// Requested is the sample budget of the run.
	Requested uint64

	Elapsed time.Duration
}

// ProgressReporter receives progress samples from a ProgressMonitor.
type ProgressReporter interface {
	ReportProgress(p Progress)
}

// ProgressFinisher is implemented by reporters that want a last sample when
// the monitor stops.
type ProgressFinisher interface {
	FinishProgress(p Progress)
}

// ReporterFunc adapts a function to ProgressReporter.
type ReporterFunc func(Progress)

// ReportProgress calls f(p).
func (f ReporterFunc) ReportProgress(p Progress) { f(p) }

// MultiReporter fans progress out to several reporters.
type MultiReporter []ProgressReporter

// ReportProgress forwards p to every reporter.
func (m MultiReporter) ReportProgress(p Progress) {
	for _, r := range m {
		r.ReportProgress(p)
	}
}

// FinishProgress forwards p to every reporter implementing ProgressFinisher.
func (m MultiReporter) FinishProgress(p Progress) {
	for _, r := range m {
		if f, ok := r.(ProgressFinisher); ok {
			f.FinishProgress(p)
		}
	}
}

// LogReporter logs every progress sample at info level.
type LogReporter struct {
	logger logrus.FieldLogger
}

// NewLogReporter returns a reporter logging to logger.
func NewLogReporter(logger logrus.FieldLogger) *LogReporter {
	return &LogReporter{logger: logger}
}

// ReportProgress logs p.
func (r *LogReporter) ReportProgress(p Progress) {
	r.logger.WithFields(logrus.Fields{
		"run":     p.RunID,
		"percent": p.Fraction * 100,
		"hits":    p.Hits,
		"samples": p.Samples,
		"elapsed": p.Elapsed.Round(time.Millisecond),
	}).Info("Approx. progress")
}

// ProgressMonitor polls the run's accumulators on a fixed interval and hands
// the result to a reporter. It runs independently of the workers.
type ProgressMonitor struct {
	runID     string
	hits      *Accumulator
	samples   *Accumulator
	requested uint64
	hitRate   float64
	interval  time.Duration
	reporter  ProgressReporter

	start  time.Time
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewProgressMonitor creates a monitor over the hits and samples
// accumulators of a run with the given budget.
func NewProgressMonitor(
	runID string,
	hits, samples *Accumulator,
	requested uint64,
	hitRate float64,
	interval time.Duration,
	reporter ProgressReporter,
) *ProgressMonitor {
	return &ProgressMonitor{
		runID:     runID,
		hits:      hits,
		samples:   samples,
		requested: requested,
		hitRate:   hitRate,
		interval:  interval,
		reporter:  reporter,
	}
}

// Start launches the polling goroutine. It stops when ctx is done or Stop is
// called, whichever comes first.
func (m *ProgressMonitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	m.start = time.Now()

	go m.loop(ctx)
}

func (m *ProgressMonitor) loop(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.reporter.ReportProgress(m.Sample())
		case <-ctx.Done():
			return
		}
	}
}

// Sample computes the current progress without waiting for a tick.
func (m *ProgressMonitor) Sample() Progress {
	hits := m.hits.Snapshot()

	fraction := 0.0
	if m.requested > 0 {
		fraction = float64(hits) / (float64(m.requested) * m.hitRate)
	}

	var elapsed time.Duration
	if !m.start.IsZero() {
		elapsed = time.Since(m.start)
	}

	return Progress{
		RunID:     m.runID,
		Fraction:  fraction,
		Hits:      hits,
		Samples:   m.samples.Snapshot(),
		Requested: m.requested,
		Elapsed:   elapsed,
	}
}

// Stop signals the polling goroutine and waits for it to exit. If the
// reporter implements ProgressFinisher it receives a final sample. Stop is
// safe to call more than once.
func (m *ProgressMonitor) Stop() {
	m.once.Do(func() {
		if m.cancel == nil {
			return
		}
		m.cancel()
		<-m.done

		if f, ok := m.reporter.(ProgressFinisher); ok {
			f.FinishProgress(m.Sample())
		}
	})
}
