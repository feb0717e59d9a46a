package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/tahsin716/pimc"
	"github.com/tahsin716/pimc/monitor"
	"github.com/tahsin716/pimc/report"
	"github.com/tahsin716/pimc/store"
)

// DefaultSamples is the sample budget of a run without --samples.
const DefaultSamples uint64 = 40_000_000_000

var progressModes = []string{"log", "bar", "none"}

func newRunCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one estimation and print the report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd)
		},
	}

	f := cmd.Flags()
	f.Uint64("samples", DefaultSamples, "total number of samples")
	f.Uint64("accuracy", pimc.DefaultAccuracy, "coordinate bound and circle radius")
	f.Int("workers", 0, "number of workers, 0 for the number of logical CPUs")
	f.Uint64("cap", pimc.DefaultPerWorkerCap, "per-worker sample cap")
	f.Duration("timeout", pimc.DefaultTimeout, "run timeout, 0 to disable")
	f.Uint64("flush", pimc.DefaultFlushThreshold, "hits buffered by a worker before flushing")
	f.Duration("interval", pimc.DefaultProgressInterval, "progress poll interval")
	f.Uint64("seed", 0, "sampler seed, 0 for a time based seed")
	f.String("backend", "cpu", "sampling backend ("+strings.Join(pimc.BackendNames(), ", ")+")")
	f.Bool("sequential", false, "run the single threaded reference instead of the engine")
	f.String("progress", "log", "progress display ("+strings.Join(progressModes, ", ")+")")
	f.Int("monitor-port", 0, "serve progress over HTTP on this port, 0 to disable")
	f.Bool("open", false, "open the monitor in a browser")
	f.String("output", report.FormatText, "report format ("+strings.Join(report.Formats, ", ")+")")
	f.String("db", "", "SQLite run history, empty to disable")

	return cmd
}

func (a *app) run(cmd *cobra.Command) error {
	samples := a.v.GetUint64("samples")
	if samples == 0 {
		return errors.New("--samples must be greater than 0")
	}

	output := a.v.GetString("output")
	if !slices.Contains(report.Formats, output) {
		return fmt.Errorf("unknown output format %q", output)
	}

	reporters, err := a.reporters(cmd)
	if err != nil {
		return err
	}

	var srv *monitor.Server
	if port := a.v.GetInt("monitor-port"); port != 0 {
		srv = monitor.NewServer().WithLogger(a.log).WithPortNumber(port)
		reporters = append(reporters, srv)
	}

	// Configuration errors end the command here, before the monitor listens
	// or the history database is touched.
	estimate, err := a.newEstimator(reporters)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if srv != nil {
		monitorCtx, cancel := context.WithCancel(ctx)
		url, err := srv.Start(monitorCtx)
		if err != nil {
			cancel()
			return err
		}
		defer func() {
			cancel()
			if err := srv.Wait(); err != nil {
				a.log.WithError(err).Warn("Monitor shut down with error")
			}
		}()

		if a.v.GetBool("open") {
			if err := monitor.OpenBrowser(url); err != nil {
				a.log.WithError(err).Warn("Failed to open browser")
			}
		}
	}

	history, err := a.openHistory()
	if err != nil {
		return err
	}
	if history != nil {
		defer history.Close()
	}

	res, runErr := estimate(ctx, samples)
	if runErr != nil && res.RunID == "" {
		// the run never started, so there is nothing to report or record
		return runErr
	}

	if history != nil {
		if err := history.Record(res, runErr); err != nil {
			a.log.WithError(err).Error("Failed to record run")
		}
	}

	if err := report.Encode(cmd.OutOrStdout(), res, runErr, output); err != nil {
		return err
	}

	return runErr
}

type estimateFunc func(ctx context.Context, samples uint64) (pimc.RunResult, error)

// newEstimator validates the run flags and returns the function performing
// the run. Every error it returns wraps pimc.ErrInvalidConfig.
func (a *app) newEstimator(reporters pimc.MultiReporter) (estimateFunc, error) {
	flush := a.v.GetUint64("flush")
	backend, err := pimc.BackendByName(a.v.GetString("backend"), flush)
	if err != nil {
		return nil, err
	}

	engine, err := pimc.New(
		pimc.WithAccuracy(a.v.GetUint64("accuracy")),
		pimc.WithNumWorkers(a.v.GetInt("workers")),
		pimc.WithPerWorkerCap(a.v.GetUint64("cap")),
		pimc.WithTimeout(a.v.GetDuration("timeout")),
		pimc.WithFlushThreshold(flush),
		pimc.WithProgressInterval(a.v.GetDuration("interval")),
		pimc.WithSeed(a.v.GetUint64("seed")),
		pimc.WithBackend(backend),
		pimc.WithReporter(reporters),
		pimc.WithLogger(a.log),
	)
	if err != nil {
		return nil, err
	}

	cfg := engine.Config()
	if a.v.GetBool("sequential") {
		domain := cfg.Domain()
		return func(ctx context.Context, samples uint64) (pimc.RunResult, error) {
			a.log.WithFields(logrus.Fields{
				"samples":  samples,
				"accuracy": domain.Accuracy,
			}).Info("Starting sequential Monte Carlo π approximation")
			return pimc.RunSequential(ctx, samples, domain, cfg.Seed)
		}, nil
	}

	return func(ctx context.Context, samples uint64) (pimc.RunResult, error) {
		a.log.WithFields(logrus.Fields{
			"samples":  samples,
			"backend":  backend.Name(),
			"accuracy": cfg.Accuracy,
			"workers":  cfg.NumWorkers,
		}).Info("Starting Monte Carlo π approximation")
		return engine.Run(ctx, samples)
	}, nil
}

func (a *app) reporters(cmd *cobra.Command) (pimc.MultiReporter, error) {
	reporters := pimc.MultiReporter{}

	switch mode := a.v.GetString("progress"); mode {
	case "log":
		reporters = append(reporters, pimc.NewLogReporter(a.log))
	case "bar":
		reporters = append(reporters, report.NewBarReporter(cmd.ErrOrStderr()))
	case "none":
	default:
		return nil, fmt.Errorf("unknown progress mode %q", mode)
	}

	return reporters, nil
}

// openHistory opens the run history named by --db and makes sure buffered
// rows are written even when the process exits through atexit.
func (a *app) openHistory() (*store.Store, error) {
	path := a.v.GetString("db")
	if path == "" {
		return nil, nil
	}

	history, err := store.Open(path, store.WithLogger(a.log))
	if err != nil {
		return nil, err
	}

	atexit.Register(func() {
		if err := history.Flush(); err != nil {
			a.log.WithError(err).Error("Failed to flush run history")
		}
	})

	return history, nil
}
