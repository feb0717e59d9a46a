package monitor

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/google/pprof/profile"
	"github.com/sirupsen/logrus/hooks/test"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tahsin716/pimc"
)

var _ = Describe("Server", func() {
	var (
		s *Server
	)

	BeforeEach(func() {
		logger, _ := test.NewNullLogger()
		s = NewServer().WithLogger(logger)
	})

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		s.Handler().ServeHTTP(rec, req)
		return rec
	}

	It("should list no progress bars before any run", func() {
		rec := get("/api/progress")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(MatchJSON(`[]`))
	})

	It("should track progress per run", func() {
		s.ReportProgress(pimc.Progress{RunID: "a", Requested: 100, Samples: 10, Hits: 8, Fraction: 0.1})
		s.ReportProgress(pimc.Progress{RunID: "b", Requested: 50})
		s.ReportProgress(pimc.Progress{RunID: "a", Requested: 100, Samples: 40, Hits: 31, Fraction: 0.4})

		var bars []ProgressBar
		rec := get("/api/progress")
		Expect(json.Unmarshal(rec.Body.Bytes(), &bars)).To(Succeed())

		Expect(bars).To(HaveLen(2))
		Expect(bars[0].ID).To(Equal("a"))
		Expect(bars[0].Finished).To(Equal(uint64(40)))
		Expect(bars[0].Hits).To(Equal(uint64(31)))
		Expect(bars[0].Done).To(BeFalse())
		Expect(bars[1].ID).To(Equal("b"))
	})

	It("should mark finished runs done", func() {
		s.ReportProgress(pimc.Progress{RunID: "a", Requested: 100, Samples: 10})
		s.FinishProgress(pimc.Progress{RunID: "a", Requested: 100, Samples: 100, Hits: 79})

		var bar ProgressBar
		rec := get("/api/progress/a")
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(json.Unmarshal(rec.Body.Bytes(), &bar)).To(Succeed())

		Expect(bar.Done).To(BeTrue())
		Expect(bar.Finished).To(Equal(uint64(100)))
		Expect(bar.Total).To(Equal(uint64(100)))
	})

	It("should return 404 for an unknown run", func() {
		rec := get("/api/progress/missing")

		Expect(rec.Code).To(Equal(http.StatusNotFound))
	})

	It("should reject other methods", func() {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/progress", nil)
		s.Handler().ServeHTTP(rec, req)

		Expect(rec.Code).To(Equal(http.StatusMethodNotAllowed))
	})

	It("should report resources of the process", func() {
		rec := get("/api/resource")

		Expect(rec.Code).To(Equal(http.StatusOK))

		var rsp map[string]any
		Expect(json.Unmarshal(rec.Body.Bytes(), &rsp)).To(Succeed())
		Expect(rsp).To(HaveKey("cpu_percent"))
		Expect(rsp["memory_size"]).To(BeNumerically(">", 0))
		Expect(rsp["goroutines"]).To(BeNumerically(">", 0))
	})

	It("should reject invalid profile durations", func() {
		Expect(get("/api/profile?seconds=abc").Code).To(Equal(http.StatusBadRequest))
		Expect(get("/api/profile?seconds=0").Code).To(Equal(http.StatusBadRequest))
		Expect(get("/api/profile?seconds=31").Code).To(Equal(http.StatusBadRequest))
		Expect(get("/api/profile?top=-1").Code).To(Equal(http.StatusBadRequest))
	})

	It("should collect a CPU profile", func() {
		rec := get("/api/profile?seconds=1&top=5")

		Expect(rec.Code).To(Equal(http.StatusOK))

		var summary ProfileSummary
		Expect(json.Unmarshal(rec.Body.Bytes(), &summary)).To(Succeed())
		Expect(summary.DurationNanos).To(BeNumerically(">", 0))
		Expect(len(summary.Top)).To(BeNumerically("<=", 5))
	})

	It("should serve until the context is done", func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		s.ReportProgress(pimc.Progress{RunID: "live", Requested: 1})

		url, err := s.WithPortNumber(0).Start(ctx)
		Expect(err).NotTo(HaveOccurred())

		rsp, err := http.Get(url + "/api/progress/live")
		Expect(err).NotTo(HaveOccurred())
		body, err := io.ReadAll(rsp.Body)
		rsp.Body.Close()
		Expect(err).NotTo(HaveOccurred())
		Expect(rsp.StatusCode).To(Equal(http.StatusOK))
		Expect(string(body)).To(ContainSubstring(`"id":"live"`))

		_, err = s.Start(ctx)
		Expect(err).To(HaveOccurred())

		cancel()

		done := make(chan error, 1)
		go func() { done <- s.Wait() }()
		Eventually(done, 5*time.Second).Should(Receive(BeNil()))
	})

	It("should not block Wait when never started", func() {
		Expect(s.Wait()).To(Succeed())
	})
})

var _ = Describe("Profile summary", func() {
	fn := func(name string) *profile.Location {
		return &profile.Location{Line: []profile.Line{{Function: &profile.Function{Name: name}}}}
	}

	It("should rank functions by flat time", func() {
		prof := &profile.Profile{
			SampleType: []*profile.ValueType{
				{Type: "samples", Unit: "count"},
				{Type: "cpu", Unit: "nanoseconds"},
			},
			Sample: []*profile.Sample{
				{Location: []*profile.Location{fn("hot"), fn("main")}, Value: []int64{3, 30}},
				{Location: []*profile.Location{fn("cold")}, Value: []int64{1, 10}},
				{Location: []*profile.Location{fn("hot")}, Value: []int64{6, 60}},
				{Value: []int64{1, 0}},
			},
			DurationNanos: 1_000,
		}

		summary := summarize(prof, 2)

		Expect(summary.Samples).To(Equal(4))
		Expect(summary.TotalNanos).To(Equal(int64(100)))
		Expect(summary.Top).To(HaveLen(2))
		Expect(summary.Top[0]).To(Equal(FunctionCost{Function: "hot", FlatNanos: 90, FlatPercent: 90}))
		Expect(summary.Top[1].Function).To(Equal("cold"))
	})

	It("should handle an empty profile", func() {
		summary := summarize(&profile.Profile{}, 10)

		Expect(summary.Samples).To(BeZero())
		Expect(summary.Top).To(BeEmpty())
	})
})
