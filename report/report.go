// Package report renders run results for people and machines: a text
// report with a digit-by-digit comparison against math.Pi, JSON and YAML
// encodings, and a console progress bar.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tahsin716/pimc"
)

// Output formats accepted by Encode.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Formats lists the formats accepted by Encode.
var Formats = []string{FormatText, FormatJSON, FormatYAML}

const rule = "========================================================="

// Summary is the encoded form of a run. PiEstimate and InsidePercent are nil
// when the run credited no samples, since JSON has no NaN.
type Summary struct {
	RunID            string             `json:"run_id" yaml:"run_id"`
	Backend          string             `json:"backend" yaml:"backend"`
	PiEstimate       *float64           `json:"pi_estimate" yaml:"pi_estimate"`
	Reference        float64            `json:"reference" yaml:"reference"`
	Digits           Digits             `json:"digits" yaml:"digits"`
	HitsInside       uint64             `json:"hits_inside" yaml:"hits_inside"`
	TotalSamples     uint64             `json:"total_samples" yaml:"total_samples"`
	RequestedSamples uint64             `json:"requested_samples" yaml:"requested_samples"`
	InsidePercent    *float64           `json:"inside_percent" yaml:"inside_percent"`
	ElapsedMillis    uint64             `json:"elapsed_ms" yaml:"elapsed_ms"`
	Accuracy         uint64             `json:"accuracy" yaml:"accuracy"`
	Tier             pimc.Tier          `json:"tier" yaml:"tier"`
	CapExceeded      bool               `json:"cap_exceeded" yaml:"cap_exceeded"`
	Remainder        uint64             `json:"remainder" yaml:"remainder"`
	Partial          bool               `json:"partial" yaml:"partial"`
	Error            string             `json:"error,omitempty" yaml:"error,omitempty"`
	Workers          []pimc.WorkerStats `json:"workers,omitempty" yaml:"workers,omitempty"`
}

// Summarize builds the encoded form of res. runErr, if any, is recorded as
// a message.
func Summarize(res pimc.RunResult, runErr error) Summary {
	s := Summary{
		RunID:            res.RunID,
		Backend:          res.Backend,
		Reference:        math.Pi,
		Digits:           CorrectDigits(res.PiEstimate),
		HitsInside:       res.HitsInside,
		TotalSamples:     res.TotalSamples,
		RequestedSamples: res.RequestedSamples,
		ElapsedMillis:    res.ElapsedMillis,
		Accuracy:         res.Accuracy,
		Tier:             res.Tier,
		CapExceeded:      res.CapExceeded,
		Remainder:        res.Remainder,
		Partial:          res.Partial,
		Workers:          res.Workers,
	}

	if res.TotalSamples > 0 && !math.IsNaN(res.PiEstimate) {
		pi := res.PiEstimate
		s.PiEstimate = &pi
		inside := res.HitRatio() * 100
		s.InsidePercent = &inside
	}
	if runErr != nil {
		s.Error = runErr.Error()
	}
	return s
}

// Encode writes res to w in the given format.
func Encode(w io.Writer, res pimc.RunResult, runErr error, format string) error {
	switch strings.ToLower(format) {
	case "", FormatText:
		return Write(w, res, runErr)

	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(Summarize(res, runErr))

	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(Summarize(res, runErr)); err != nil {
			return err
		}
		return enc.Close()

	default:
		return fmt.Errorf("report: unknown format %q (have %s)", format, strings.Join(Formats, ", "))
	}
}

// Write prints the human readable report of res.
func Write(w io.Writer, res pimc.RunResult, runErr error) error {
	s := Summarize(res, runErr)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	line := func(label string, format string, args ...any) {
		fmt.Fprintf(tw, "%s:\t"+format+"\n", append([]any{label}, args...)...)
	}

	fmt.Fprintln(tw, rule)
	line("Run", "%s (%s)", s.RunID, s.Backend)
	line("Samples requested", "%d", s.RequestedSamples)
	line("Samples covered", "%d (%s)", s.TotalSamples, coverage(res))
	line("Samples in circle", "%d", s.HitsInside)
	if s.InsidePercent != nil {
		line("Points inside circle", "~%.3f%%", *s.InsidePercent)
	} else {
		line("Points inside circle", "undefined")
	}
	fmt.Fprintln(tw, strings.Repeat("-", len(rule)))
	if s.PiEstimate != nil {
		line("Pi (calculated)", "%v", *s.PiEstimate)
	} else {
		line("Pi (calculated)", "undefined, no samples covered")
	}
	line("Pi (math.Pi)", "%v", math.Pi)
	line("Correct digits", "%s", s.Digits)
	line("Last digit deviation", "%s", s.Digits.DeviationString())
	line("Elapsed", "%v", res.Elapsed())
	if res.CapExceeded {
		line("Warning", "per-worker cap exceeded (%s split)", res.Tier)
	}
	if res.Partial {
		line("Warning", "partial result")
	}
	if runErr != nil {
		line("Error", "%v", runErr)
	}
	fmt.Fprintln(tw, rule)
	if err := tw.Flush(); err != nil {
		return err
	}

	return writeWorkers(w, res.Workers)
}

func coverage(res pimc.RunResult) string {
	if res.RequestedSamples == 0 {
		return "nothing requested"
	}
	return fmt.Sprintf("%.3f%%", float64(res.TotalSamples)/float64(res.RequestedSamples)*100)
}

func writeWorkers(w io.Writer, workers []pimc.WorkerStats) error {
	if len(workers) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "worker\tassigned\tsamples\thits\tstate\tduration\t")
	for _, ws := range workers {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%s\t%v\t\n",
			ws.WorkerID, ws.Assigned, ws.Samples, ws.Hits, ws.State, ws.Duration.Round(time.Millisecond))
	}
	return tw.Flush()
}
