package telemetry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCollectorDisabledRecordsNothing(t *testing.T) {
	c := NewCollector(false)
	c.Counter(InstallStarted, 1, nil)
	if n := len(c.GetMetrics()); n != 0 {
		t.Fatalf("expected no metrics, got %d", n)
	}
}

func TestCollectorRecordsAndFlushes(t *testing.T) {
	c := NewCollector(true)
	defer c.Shutdown()

	c.Counter(InstallStarted, 1, map[string]string{"key": "vlc"})
	c.StartTimer(InstallDuration, nil).End()
	metrics := c.GetMetrics()
	if len(metrics) != 2 {
		t.Fatalf("expected 2 metrics, got %d", len(metrics))
	}
	if metrics[1].Type != Timer || metrics[1].Unit != "ms" {
		t.Fatalf("unexpected timer: %+v", metrics[1])
	}
	if err := c.FlushMetrics(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if n := len(c.GetMetrics()); n != 0 {
		t.Fatalf("expected empty after flush, got %d", n)
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	c.Counter(InstallStarted, 1, nil)
}

func TestMetricsHandler(t *testing.T) {
	c := NewCollector(true)
	defer c.Shutdown()
	c.Counter(InstallCompleted, 1, map[string]string{"key": "vlc", "exit_code": "0"})

	rr := httptest.NewRecorder()
	NewMonitor(c).MetricsHandler(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rr.Body.String()
	if !strings.Contains(body, `appstore_install_completed{exit_code="0",key="vlc"} 1.000000`) {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestHealthHandler(t *testing.T) {
	m := NewMonitor(NewCollector(false))
	m.RegisterHealthCheck("catalog", func() HealthCheck {
		return HealthCheck{Name: "catalog", Status: HealthStatusHealthy}
	})
	rr := httptest.NewRecorder()
	m.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}

	m.RegisterHealthCheck("slow", func() HealthCheck {
		time.Sleep(time.Millisecond)
		return HealthCheck{Name: "slow", Status: HealthStatusUnhealthy}
	})
	rr = httptest.NewRecorder()
	m.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status %d", rr.Code)
	}
}
