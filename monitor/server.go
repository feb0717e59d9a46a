// Package monitor serves the progress of running estimations over HTTP.
//
// The server exposes a small JSON API:
//
//	GET /api/progress          every progress bar
//	GET /api/progress/{id}     the bar of one run
//	GET /api/resource          CPU and memory use of this process
//	GET /api/profile?seconds=N a CPU profile, summarized by function
//
// Server implements pimc.ProgressReporter, so it can be passed to
// pimc.WithReporter directly or combined with other reporters in a
// pimc.MultiReporter.
package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"runtime"
	"runtime/pprof"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/shirou/gopsutil/process"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Limits of the profile endpoint.
const (
	DefaultProfileSeconds = 1
	MaxProfileSeconds     = 30
	DefaultProfileTop     = 20
)

const shutdownTimeout = 5 * time.Second

// Server turns a run into a web server that can be polled for progress.
type Server struct {
	portNumber int
	log        logrus.FieldLogger

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar

	profileLock sync.Mutex

	group *errgroup.Group
}

// NewServer creates a new Server listening on a random port.
func NewServer() *Server {
	return &Server{
		log: logrus.StandardLogger(),
	}
}

// WithPortNumber sets the port number of the server. Privileged ports are
// refused and replaced by a random one.
func (s *Server) WithPortNumber(portNumber int) *Server {
	if portNumber < 1000 {
		s.log.WithField("port", portNumber).
			Warn("Port is not allowed for the monitoring server, using a random port instead")
		portNumber = 0
	}

	s.portNumber = portNumber

	return s
}

// WithLogger sets the logger.
func (s *Server) WithLogger(l logrus.FieldLogger) *Server {
	s.log = l
	return s
}

// Handler returns the router serving the API.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/progress", s.listProgressBars).Methods(http.MethodGet)
	r.HandleFunc("/api/progress/{id}", s.progressBar).Methods(http.MethodGet)
	r.HandleFunc("/api/resource", s.listResources).Methods(http.MethodGet)
	r.HandleFunc("/api/profile", s.collectProfile).Methods(http.MethodGet)

	return r
}

// Start listens on the configured port and serves until ctx is done. It
// returns the base URL of the server.
func (s *Server) Start(ctx context.Context) (string, error) {
	if s.group != nil {
		return "", errors.New("monitor: server already started")
	}

	listener, err := net.Listen("tcp", ":"+strconv.Itoa(s.portNumber))
	if err != nil {
		return "", fmt.Errorf("monitor: listen: %w", err)
	}

	url := fmt.Sprintf("http://localhost:%d", listener.Addr().(*net.TCPAddr).Port)
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("monitor: serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	})
	s.group = g

	s.log.WithField("url", url).Info("Monitoring run")

	return url, nil
}

// Wait blocks until a started server has shut down and returns the first
// serve or shutdown error.
func (s *Server) Wait() error {
	if s.group == nil {
		return nil
	}
	return s.group.Wait()
}

// OpenBrowser opens url in the default browser.
func OpenBrowser(url string) error {
	browser.Stdout = os.Stderr
	return browser.OpenURL(url)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Warn("Failed to write monitor response")
	}
}

func (s *Server) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.ProgressBars())
}

func (s *Server) progressBar(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	for _, b := range s.ProgressBars() {
		if b.ID == id {
			s.writeJSON(w, b)
			return
		}
	}

	http.Error(w, "Progress bar not found", http.StatusNotFound)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
	Goroutines int     `json:"goroutines"`
}

func (s *Server) listResources(w http.ResponseWriter, _ *http.Request) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		s.internalError(w, err)
		return
	}

	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		s.internalError(w, err)
		return
	}

	memoryInfo, err := proc.MemoryInfo()
	if err != nil {
		s.internalError(w, err)
		return
	}

	s.writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memoryInfo.RSS,
		Goroutines: runtime.NumGoroutine(),
	})
}

// FunctionCost is the CPU time spent in one function during a profile.
type FunctionCost struct {
	Function    string  `json:"function"`
	FlatNanos   int64   `json:"flat_ns"`
	FlatPercent float64 `json:"flat_percent"`
}

// ProfileSummary is the response of /api/profile.
type ProfileSummary struct {
	DurationNanos int64          `json:"duration_ns"`
	Samples       int            `json:"samples"`
	TotalNanos    int64          `json:"total_ns"`
	Top           []FunctionCost `json:"top"`
}

func (s *Server) collectProfile(w http.ResponseWriter, r *http.Request) {
	seconds, err := queryInt(r, "seconds", DefaultProfileSeconds, 1, MaxProfileSeconds)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	top, err := queryInt(r, "top", DefaultProfileTop, 1, 1000)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if !s.profileLock.TryLock() {
		http.Error(w, "A profile is already being collected", http.StatusConflict)
		return
	}
	defer s.profileLock.Unlock()

	buf := bytes.NewBuffer(nil)
	if err := pprof.StartCPUProfile(buf); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	select {
	case <-time.After(time.Duration(seconds) * time.Second):
	case <-r.Context().Done():
	}
	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	if err != nil {
		s.internalError(w, err)
		return
	}

	s.writeJSON(w, summarize(prof, top))
}

// summarize attributes every sample to the innermost function of its stack.
func summarize(prof *profile.Profile, top int) ProfileSummary {
	summary := ProfileSummary{
		DurationNanos: prof.DurationNanos,
		Samples:       len(prof.Sample),
		Top:           []FunctionCost{},
	}
	if len(prof.SampleType) == 0 {
		return summary
	}

	valueIndex := len(prof.SampleType) - 1
	flat := make(map[string]int64)
	for _, sample := range prof.Sample {
		v := sample.Value[valueIndex]
		summary.TotalNanos += v

		name := "unknown"
		if len(sample.Location) > 0 && len(sample.Location[0].Line) > 0 {
			if fn := sample.Location[0].Line[0].Function; fn != nil {
				name = fn.Name
			}
		}
		flat[name] += v
	}

	for name, v := range flat {
		cost := FunctionCost{Function: name, FlatNanos: v}
		if summary.TotalNanos > 0 {
			cost.FlatPercent = float64(v) * 100 / float64(summary.TotalNanos)
		}
		summary.Top = append(summary.Top, cost)
	}

	sort.Slice(summary.Top, func(i, j int) bool {
		if summary.Top[i].FlatNanos != summary.Top[j].FlatNanos {
			return summary.Top[i].FlatNanos > summary.Top[j].FlatNanos
		}
		return summary.Top[i].Function < summary.Top[j].Function
	})
	if len(summary.Top) > top {
		summary.Top = summary.Top[:top]
	}

	return summary
}

func queryInt(r *http.Request, key string, def, lo, hi int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}

	v, err := strconv.Atoi(raw)
	if err != nil || v < lo || v > hi {
		return 0, fmt.Errorf("%s must be an integer in [%d, %d]", key, lo, hi)
	}

	return v, nil
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.log.WithError(err).Error("Monitor request failed")
	http.Error(w, err.Error(), http.StatusInternalServerError)
}
