package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// MetricType represents the type of metric
type MetricType string

const (
	Counter   MetricType = "counter"
	Gauge     MetricType = "gauge"
	Histogram MetricType = "histogram"
	Timer     MetricType = "timer"
)

// Metric names recorded by the installer.
const (
	InstallStarted     = "appstore_install_started"
	InstallStartFailed = "appstore_install_start_failed"
	InstallAttached    = "appstore_install_attached"
	InstallCompleted   = "appstore_install_completed"
	InstallDuration    = "appstore_install_duration"
	InstallOutputLines = "appstore_install_output_lines"
	StreamSubscribers  = "appstore_stream_subscribers"
	DetectDuration     = "appstore_detect_duration"
)

// maxRetained bounds how many samples a collector keeps between flushes.
const maxRetained = 1000

// Metric represents a telemetry metric
type Metric struct {
	Name      string            `json:"name"`
	Type      MetricType        `json:"type"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels"`
	Timestamp time.Time         `json:"timestamp"`
	Unit      string            `json:"unit,omitempty"`
}

// Collector keeps recent samples in memory and periodically logs them.
type Collector struct {
	mu      sync.RWMutex
	metrics []Metric
	enabled bool
	flushCh chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewCollector creates a new telemetry collector
func NewCollector(enabled bool) *Collector {
	ctx, cancel := context.WithCancel(context.Background())

	c := &Collector{
		metrics: make([]Metric, 0),
		enabled: enabled,
		flushCh: make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
	}

	if enabled {
		go c.periodicFlush()
	}

	return c
}

// Counter increments a counter metric
func (c *Collector) Counter(name string, value float64, labels map[string]string) {
	c.addMetric(Metric{Name: name, Type: Counter, Value: value, Labels: labels, Timestamp: time.Now()})
}

// Gauge sets a gauge metric value
func (c *Collector) Gauge(name string, value float64, labels map[string]string) {
	c.addMetric(Metric{Name: name, Type: Gauge, Value: value, Labels: labels, Timestamp: time.Now()})
}

// Histogram records a histogram value
func (c *Collector) Histogram(name string, value float64, labels map[string]string) {
	c.addMetric(Metric{Name: name, Type: Histogram, Value: value, Labels: labels, Timestamp: time.Now()})
}

// Timer records a duration measurement
func (c *Collector) Timer(name string, duration time.Duration, labels map[string]string) {
	c.addMetric(Metric{
		Name:      name,
		Type:      Timer,
		Value:     float64(duration.Milliseconds()),
		Labels:    labels,
		Timestamp: time.Now(),
		Unit:      "ms",
	})
}

func (c *Collector) addMetric(metric Metric) {
	if c == nil || !c.enabled {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.metrics = append(c.metrics, metric)
	if len(c.metrics) > maxRetained {
		c.metrics = c.metrics[len(c.metrics)-maxRetained:]
	}

	if len(c.metrics) >= 100 {
		select {
		case c.flushCh <- struct{}{}:
		default:
		}
	}
}

// GetMetrics returns a copy of current metrics
func (c *Collector) GetMetrics() []Metric {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]Metric, len(c.metrics))
	copy(result, c.metrics)
	return result
}

// FlushMetrics logs and clears the retained samples.
func (c *Collector) FlushMetrics() error {
	c.mu.Lock()
	metrics := make([]Metric, len(c.metrics))
	copy(metrics, c.metrics)
	c.metrics = c.metrics[:0]
	c.mu.Unlock()

	if len(metrics) == 0 {
		return nil
	}

	log.Debug().Int("count", len(metrics)).Msg("Flushing telemetry metrics")
	for _, metric := range metrics {
		log.Debug().
			Str("name", metric.Name).
			Str("type", string(metric.Type)).
			Float64("value", metric.Value).
			Interface("labels", metric.Labels).
			Time("timestamp", metric.Timestamp).
			Msg("telemetry_metric")
	}
	return nil
}

func (c *Collector) periodicFlush() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			_ = c.FlushMetrics()
		case <-c.flushCh:
			_ = c.FlushMetrics()
		}
	}
}

// Shutdown stops the collector
func (c *Collector) Shutdown() error {
	if c.cancel != nil {
		c.cancel()
	}
	return c.FlushMetrics()
}

// TimerScope measures one operation and records it on End.
type TimerScope struct {
	collector *Collector
	name      string
	labels    map[string]string
	start     time.Time
}

func (c *Collector) StartTimer(name string, labels map[string]string) *TimerScope {
	return &TimerScope{collector: c, name: name, labels: labels, start: time.Now()}
}

func (ts *TimerScope) End() time.Duration {
	d := time.Since(ts.start)
	ts.collector.Timer(ts.name, d, ts.labels)
	return d
}
