package report

import (
	"io"
	"sync"

	"github.com/cheggaaa/pb/v3"

	"github.com/tahsin716/pimc"
)

// BarReporter draws run progress as a console progress bar. The bar counts
// estimated samples, so it can reach its total slightly before or after the
// run actually finishes.
type BarReporter struct {
	mu  sync.Mutex
	out io.Writer
	bar *pb.ProgressBar
}

// NewBarReporter returns a reporter drawing to out.
func NewBarReporter(out io.Writer) *BarReporter {
	return &BarReporter{out: out}
}

// ReportProgress moves the bar to the estimated number of samples. The bar
// is started on the first report.
func (r *BarReporter) ReportProgress(p pimc.Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bar := r.start(p.Requested)
	bar.SetCurrent(estimated(p))
}

// FinishProgress moves the bar to the number of samples actually covered and
// stops it.
func (r *BarReporter) FinishProgress(p pimc.Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bar := r.start(p.Requested)
	bar.SetCurrent(int64(min(p.Samples, p.Requested)))
	bar.Finish()
}

// Current returns the bar's position, or 0 before the first report.
func (r *BarReporter) Current() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.bar == nil {
		return 0
	}
	return r.bar.Current()
}

func (r *BarReporter) start(total uint64) *pb.ProgressBar {
	if r.bar == nil {
		r.bar = pb.New64(int64(total)).
			SetTemplate(pb.Default).
			SetWriter(r.out).
			SetWidth(80).
			Start()
	}
	return r.bar
}

func estimated(p pimc.Progress) int64 {
	n := p.Fraction * float64(p.Requested)
	if n > float64(p.Requested) {
		n = float64(p.Requested)
	}
	if n < 0 {
		n = 0
	}
	return int64(n)
}
