package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterIdempotentAndCountersWork(t *testing.T) {
	regOK.Store(false)
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("first register: %v", err)
	}
	// idempotent: calling again should be no-op
	if err := Register(reg); err != nil {
		t.Fatalf("second register: %v", err)
	}

	IncStart("worker", "initial")
	IncStart("worker", "crash")
	IncExit("worker", 1)
	IncScan()
	IncAlert("private", "queued")
	SetQueueDepth(2)
	SetProcessSample("worker", Sample{CPUPercent: 1.5, RSS: 1024})

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	wantNames := map[string]bool{
		"dutywatch_process_starts_total":  false,
		"dutywatch_process_exits_total":   false,
		"dutywatch_process_cpu_percent":   false,
		"dutywatch_process_rss_bytes":     false,
		"dutywatch_collector_scans_total": false,
		"dutywatch_alerts_total":          false,
		"dutywatch_queue_depth":           false,
	}
	for _, mf := range mfs {
		n := mf.GetName()
		if _, ok := wantNames[n]; ok {
			wantNames[n] = true
			if len(mf.GetMetric()) == 0 {
				t.Fatalf("metric %s has no samples", n)
			}
		}
	}
	for n, ok := range wantNames {
		if !ok {
			t.Fatalf("expected to find metric %s", n)
		}
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	regOK.Store(false)
	if err := Register(prometheus.DefaultRegisterer); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	IncStart("collector", "initial")

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != 200 {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	b, _ := io.ReadAll(resp.Body)
	s := string(b)
	if !strings.Contains(s, "dutywatch_process_starts_total") {
		t.Fatalf("metrics output missing starts_total: %s", s[:min(200, len(s))])
	}
}

func TestConcurrentIncrementsAreCounted(t *testing.T) {
	regOK.Store(false)
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatal(err)
	}
	before := testutil.ToFloat64(processStarts.WithLabelValues("concurrent", "crash"))
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			IncStart("concurrent", "crash")
			IncExit("concurrent", 41)
		}()
	}
	wg.Wait()
	if got := testutil.ToFloat64(processStarts.WithLabelValues("concurrent", "crash")) - before; got != 50 {
		t.Fatalf("starts: got %v want 50", got)
	}
	if got := testutil.ToFloat64(processExits.WithLabelValues("concurrent", "41")); got < 50 {
		t.Fatalf("exits: got %v want >= 50", got)
	}
}

func TestQueueDepthAndSampleGauges(t *testing.T) {
	regOK.Store(false)
	if err := Register(prometheus.NewRegistry()); err != nil {
		t.Fatal(err)
	}
	SetQueueDepth(3)
	if got := testutil.ToFloat64(queueDepth); got != 3 {
		t.Fatalf("queue depth: got %v", got)
	}
	SetProcessSample("gauge-test", Sample{CPUPercent: 12.5, RSS: 4096})
	if got := testutil.ToFloat64(processRSS.WithLabelValues("gauge-test")); got != 4096 {
		t.Fatalf("rss: got %v", got)
	}
	ClearProcessSample("gauge-test")
	if processCPU.DeleteLabelValues("gauge-test") {
		t.Fatal("cpu gauge survived ClearProcessSample")
	}
}

func TestMetricsBeforeRegister(t *testing.T) {
	originalState := regOK.Load()
	regOK.Store(false)
	defer regOK.Store(originalState)

	// These should be no-ops and not panic when called before Register
	IncStart("test", "manual")
	IncExit("test", 0)
	IncScan()
	IncAlert("private", "sent")
	SetQueueDepth(5)
	SetProcessSample("test", Sample{})
	ClearProcessSample("test")
}

func TestRegisterError(t *testing.T) {
	originalState := regOK.Load()
	regOK.Store(false)
	defer regOK.Store(originalState)

	err := Register(&errorRegisterer{})
	if err == nil {
		t.Fatal("Register should return error from failing registerer")
	}
	if err.Error() != "test registration error" {
		t.Fatalf("unexpected error: %v", err)
	}
}

type errorRegisterer struct{}

func (e *errorRegisterer) Register(prometheus.Collector) error {
	return errors.New("test registration error")
}

func (e *errorRegisterer) MustRegister(...prometheus.Collector) {}
func (e *errorRegisterer) Unregister(prometheus.Collector) bool { return false }
