package monitor

import (
	"time"

	"github.com/tahsin716/pimc"
)

// A ProgressBar is the last known progress of one run.
type ProgressBar struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StartTime time.Time `json:"start_time"`
	Total     uint64    `json:"total"`
	Finished  uint64    `json:"finished"`
	Hits      uint64    `json:"hits"`
	Fraction  float64   `json:"fraction"`
	Done      bool      `json:"done"`
}

func (b *ProgressBar) update(p pimc.Progress) {
	b.Total = p.Requested
	b.Finished = p.Samples
	b.Hits = p.Hits
	b.Fraction = p.Fraction
}

// ReportProgress records p under its run id, creating the bar on first use.
func (s *Server) ReportProgress(p pimc.Progress) {
	s.progressBarsLock.Lock()
	defer s.progressBarsLock.Unlock()

	s.bar(p).update(p)
}

// FinishProgress records the last sample of a run and marks its bar done.
func (s *Server) FinishProgress(p pimc.Progress) {
	s.progressBarsLock.Lock()
	defer s.progressBarsLock.Unlock()

	b := s.bar(p)
	b.update(p)
	b.Done = true
}

// bar must be called with progressBarsLock held.
func (s *Server) bar(p pimc.Progress) *ProgressBar {
	for _, b := range s.progressBars {
		if b.ID == p.RunID {
			return b
		}
	}

	b := &ProgressBar{
		ID:        p.RunID,
		Name:      "samples",
		StartTime: time.Now().Add(-p.Elapsed),
	}
	s.progressBars = append(s.progressBars, b)

	return b
}

// ProgressBars returns a copy of every bar, oldest run first.
func (s *Server) ProgressBars() []ProgressBar {
	s.progressBarsLock.Lock()
	defer s.progressBarsLock.Unlock()

	bars := make([]ProgressBar, 0, len(s.progressBars))
	for _, b := range s.progressBars {
		bars = append(bars, *b)
	}

	return bars
}

var (
	_ pimc.ProgressReporter = (*Server)(nil)
	_ pimc.ProgressFinisher = (*Server)(nil)
)
