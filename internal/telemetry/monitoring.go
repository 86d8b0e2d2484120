package telemetry

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

// HealthStatus represents the health status of a component
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck represents a health check result
type HealthCheck struct {
	Name        string            `json:"name"`
	Status      HealthStatus      `json:"status"`
	Message     string            `json:"message"`
	LastChecked time.Time         `json:"last_checked"`
	Duration    time.Duration     `json:"duration"`
	Details     map[string]string `json:"details,omitempty"`
}

// Monitor serves health and metrics endpoints for a collector.
type Monitor struct {
	collector *Collector

	mu           sync.RWMutex
	healthChecks map[string]func() HealthCheck
}

func NewMonitor(collector *Collector) *Monitor {
	return &Monitor{collector: collector, healthChecks: map[string]func() HealthCheck{}}
}

// RegisterHealthCheck registers a health check function
func (m *Monitor) RegisterHealthCheck(name string, checkFn func() HealthCheck) {
	m.mu.Lock()
	m.healthChecks[name] = checkFn
	m.mu.Unlock()
}

// HealthHandler reports 200 when every check is healthy, 503 otherwise.
func (m *Monitor) HealthHandler(w http.ResponseWriter, r *http.Request) {
	checks := m.runHealthChecks()

	overallStatus := HealthStatusHealthy
	for _, check := range checks {
		if check.Status == HealthStatusUnhealthy {
			overallStatus = HealthStatusUnhealthy
			break
		} else if check.Status == HealthStatusDegraded {
			overallStatus = HealthStatusDegraded
		}
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now(),
		"checks":    checks,
	}

	w.Header().Set("Content-Type", "application/json")
	if overallStatus != HealthStatusHealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(response)
}

// MetricsHandler renders retained samples in a Prometheus-like text form.
func (m *Monitor) MetricsHandler(w http.ResponseWriter, r *http.Request) {
	metrics := m.collector.GetMetrics()

	w.Header().Set("Content-Type", "text/plain")
	for _, metric := range metrics {
		labelStr := ""
		if len(metric.Labels) > 0 {
			pairs := make([]string, 0, len(metric.Labels))
			for k, v := range metric.Labels {
				pairs = append(pairs, fmt.Sprintf(`%s="%s"`, k, v))
			}
			sort.Strings(pairs)
			labelStr = "{" + strings.Join(pairs, ",") + "}"
		}

		fmt.Fprintf(w, "# TYPE %s %s\n", metric.Name, metric.Type)
		fmt.Fprintf(w, "%s%s %f %d\n", metric.Name, labelStr, metric.Value, metric.Timestamp.Unix())
	}
}

func (m *Monitor) runHealthChecks() []HealthCheck {
	m.mu.RLock()
	names := make([]string, 0, len(m.healthChecks))
	for name := range m.healthChecks {
		names = append(names, name)
	}
	fns := make(map[string]func() HealthCheck, len(m.healthChecks))
	for k, v := range m.healthChecks {
		fns[k] = v
	}
	m.mu.RUnlock()
	sort.Strings(names)

	checks := make([]HealthCheck, 0, len(names))
	for _, name := range names {
		start := time.Now()
		check := fns[name]()
		check.Duration = time.Since(start)
		check.LastChecked = time.Now()
		checks = append(checks, check)
	}
	return checks
}
