package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/atlas-erp/atlas/internal/metrics"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *metrics.Metrics

	m.ObserveExecution("graph", "completed")
	m.ObserveStep("action", "failed", time.Second)
	m.AgentRunStarted()
	m.AgentRunFinished("legacy", "succeeded")
	m.ObserveRequest("GET", 200, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := metrics.New()
	m.ObserveExecution("graph", "completed")
	m.ObserveExecution("graph", "completed")
	m.ObserveStep("transformation", "completed", 20*time.Millisecond)
	m.AgentRunStarted()
	m.AgentRunFinished("a2a", "failed")
	m.ObserveRequest("POST", 201, 5*time.Millisecond)

	count, err := testutil.GatherAndCount(m.Registry(), "atlas_executions_total")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if count != 1 {
		t.Errorf("series = %d, want 1", count)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	body := rec.Body.String()
	for _, want := range []string{
		`atlas_executions_total{engine="graph",status="completed"} 2`,
		`atlas_agent_runs_total{protocol="a2a",status="failed"} 1`,
		`atlas_agent_runs_in_flight 0`,
		`atlas_step_duration_seconds_count{kind="transformation",status="completed"} 1`,
		`atlas_http_request_duration_seconds_count{code="201",method="POST"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q", want)
		}
	}
}
