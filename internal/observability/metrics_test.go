package observability

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/edgetask/internal/testutil/testlog"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	before := testutil.ToFloat64(taskEvents.WithLabelValues("task_start", "generic_analysis"))
	RecordTaskEvent("task_start", "generic_analysis")
	if got := testutil.ToFloat64(taskEvents.WithLabelValues("task_start", "generic_analysis")); got != before+1 {
		t.Fatalf("task event counter=%v want %v", got, before+1)
	}

	RecordTaskRun("GenericAnalysis", OutcomeSucceeded)
	RecordHeartbeat("sent")
	RecordHandshake("task_to_agent", 3*time.Millisecond)
	if got := testutil.ToFloat64(heartbeatSends.WithLabelValues("sent")); got < 1 {
		t.Fatalf("heartbeat counter not recorded: %v", got)
	}
}

func TestServerRoutes(t *testing.T) {
	testlog.Start(t)
	s := NewServer("task-1")
	RecordTaskRun("LibFuzzerMerge", OutcomeFailed)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"task":"task-1"`) {
		t.Fatalf("health status=%d body=%s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "edgetask_task_runs_total") {
		t.Fatalf("metrics status=%d missing run counter", w.Code)
	}
}

func TestServerStartAndShutdown(t *testing.T) {
	testlog.Start(t)
	s := NewServer("task-2")
	if err := s.Start("127.0.0.1:0"); err != nil {
		t.Fatalf("start: %v", err)
	}
	resp, err := http.Get("http://" + s.Addr() + "/health")
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "ok") {
		t.Fatalf("unexpected health response %d %s", resp.StatusCode, body)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
