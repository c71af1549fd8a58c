package telemetry

import (
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mohammad-safakhou/smartsummary/config"
)

var (
	analysisRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smartsummary_analysis_requests_total",
		Help: "Analysis requests by outcome (completed, cached, invalid)",
	}, []string{"outcome"})

	capabilityCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smartsummary_capability_calls_total",
		Help: "Provider capability calls by capability and outcome",
	}, []string{"capability", "outcome"})

	capabilityLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "smartsummary_capability_latency_seconds",
		Help:    "Provider capability call latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"capability"})
)

// Telemetry tracks request and capability metrics for the analysis pipeline.
type Telemetry struct {
	config  config.TelemetryConfig
	logger  *log.Logger
	metrics *Metrics
	mu      sync.RWMutex
}

// Metrics holds various performance metrics
type Metrics struct {
	TotalAnalyses       int64
	CachedAnalyses      int64
	FailedAnalyses      int64
	AverageAnalysisTime time.Duration

	CapabilityCalls        map[string]int64
	CapabilitySuccessRates map[string]float64
	CapabilityAverageTimes map[string]time.Duration
}

// CapabilityEvent records a single provider capability call.
type CapabilityEvent struct {
	Capability string
	Provider   string
	Duration   time.Duration
	Success    bool
	Error      string
}

// NewTelemetry creates a new telemetry instance
func NewTelemetry(cfg config.TelemetryConfig) *Telemetry {
	t := &Telemetry{
		config: cfg,
		logger: log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags),
		metrics: &Metrics{
			CapabilityCalls:        make(map[string]int64),
			CapabilitySuccessRates: make(map[string]float64),
			CapabilityAverageTimes: make(map[string]time.Duration),
		},
	}

	if cfg.Enabled && cfg.PeriodicLogs {
		go t.startMetricsCollection()
	}

	return t
}

// RecordAnalysis records a completed analysis request.
func (t *Telemetry) RecordAnalysis(duration time.Duration, cached bool) {
	if !t.config.Enabled {
		return
	}

	outcome := "completed"
	if cached {
		outcome = "cached"
	}
	analysisRequests.WithLabelValues(outcome).Inc()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.metrics.TotalAnalyses++
	if cached {
		t.metrics.CachedAnalyses++
		return
	}

	// Average only full pipeline runs; cache hits would drag it toward zero.
	completed := t.metrics.TotalAnalyses - t.metrics.CachedAnalyses
	if completed == 1 {
		t.metrics.AverageAnalysisTime = duration
	} else {
		total := t.metrics.AverageAnalysisTime * time.Duration(completed-1)
		t.metrics.AverageAnalysisTime = (total + duration) / time.Duration(completed)
	}
}

// RecordAnalysisFailure records an analysis that hit an internal fault.
func (t *Telemetry) RecordAnalysisFailure() {
	if !t.config.Enabled {
		return
	}
	analysisRequests.WithLabelValues("failed").Inc()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.metrics.FailedAnalyses++
}

// RecordInvalidRequest records a request rejected at the boundary.
func (t *Telemetry) RecordInvalidRequest() {
	if !t.config.Enabled {
		return
	}
	analysisRequests.WithLabelValues("invalid").Inc()
}

// RecordCapabilityEvent records a provider capability call
func (t *Telemetry) RecordCapabilityEvent(event CapabilityEvent) {
	if !t.config.Enabled {
		return
	}

	outcome := "success"
	if !event.Success {
		outcome = "failure"
	}
	capabilityCalls.WithLabelValues(event.Capability, outcome).Inc()
	capabilityLatency.WithLabelValues(event.Capability).Observe(event.Duration.Seconds())

	t.mu.Lock()
	defer t.mu.Unlock()

	t.metrics.CapabilityCalls[event.Capability]++
	calls := t.metrics.CapabilityCalls[event.Capability]

	currentSuccess := t.metrics.CapabilitySuccessRates[event.Capability] * float64(calls-1)
	if event.Success {
		currentSuccess += 1.0
	}
	t.metrics.CapabilitySuccessRates[event.Capability] = currentSuccess / float64(calls)

	currentAvg := t.metrics.CapabilityAverageTimes[event.Capability]
	if calls == 1 {
		t.metrics.CapabilityAverageTimes[event.Capability] = event.Duration
	} else {
		total := currentAvg * time.Duration(calls-1)
		t.metrics.CapabilityAverageTimes[event.Capability] = (total + event.Duration) / time.Duration(calls)
	}

	if !event.Success {
		t.logger.Printf("Capability Event: Capability=%s, Provider=%s, Duration=%v, Error=%s",
			event.Capability, event.Provider, event.Duration, event.Error)
	}
}

// GetMetrics returns a snapshot of current metrics
func (t *Telemetry) GetMetrics() Metrics {
	t.mu.RLock()
	defer t.mu.RUnlock()

	metrics := *t.metrics
	metrics.CapabilityCalls = make(map[string]int64)
	metrics.CapabilitySuccessRates = make(map[string]float64)
	metrics.CapabilityAverageTimes = make(map[string]time.Duration)

	for k, v := range t.metrics.CapabilityCalls {
		metrics.CapabilityCalls[k] = v
	}
	for k, v := range t.metrics.CapabilitySuccessRates {
		metrics.CapabilitySuccessRates[k] = v
	}
	for k, v := range t.metrics.CapabilityAverageTimes {
		metrics.CapabilityAverageTimes[k] = v
	}

	return metrics
}

// startMetricsCollection starts periodic metrics logging
func (t *Telemetry) startMetricsCollection() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		metrics := t.GetMetrics()
		t.logger.Printf("Metrics Snapshot: Analyses=%d (cached=%d), AvgTime=%v",
			metrics.TotalAnalyses, metrics.CachedAnalyses, metrics.AverageAnalysisTime)
	}
}
