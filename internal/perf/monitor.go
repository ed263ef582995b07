package perf

import (
	"log"
	"sort"
	"sync"
	"time"
)

// Operations tracked by the monitor.
const (
	OpSave            = "save"
	OpSync            = "sync"
	OpCompress        = "compress"
	OpConflictResolve = "conflict-resolve"
)

// Alert severities.
const (
	AlertWarning = "warning"
	AlertError   = "error"
)

const (
	maxMetrics         = 1000
	maxAlerts          = 100
	successRateWindow  = 20 // most recent operations considered
	successRateMinimum = 10 // samples required before alerting
)

// Thresholds for degraded-service warnings.
type Thresholds struct {
	SaveTime    time.Duration
	SyncTime    time.Duration
	SuccessRate float64 // percentage, e.g. 99.5
}

type Metric struct {
	Operation string        `json:"operation"`
	Duration  time.Duration `json:"duration"`
	Success   bool          `json:"success"`
	Timestamp time.Time     `json:"timestamp"`
}

type Alert struct {
	Severity    string    `json:"severity"`
	Operation   string    `json:"operation"`
	Message     string    `json:"message"`
	Threshold   float64   `json:"threshold"`
	ActualValue float64   `json:"actual_value"`
	Timestamp   time.Time `json:"timestamp"`
}

// Snapshot is the rolling view served to operators and to the autosave
// tracker for interval adaptation.
type Snapshot struct {
	TotalOperations int     `json:"total_operations"`
	SuccessRate     float64 `json:"success_rate"`
	AverageTimeMs   float64 `json:"average_time_ms"`
	P95TimeMs       float64 `json:"p95_time_ms"`
	Healthy         bool    `json:"healthy"`
	RecentAlerts    []Alert `json:"recent_alerts"`
}

// Monitor observes every save/sync attempt's (duration, success) pair and
// raises warnings when service health degrades. Bounded in-process state;
// old samples roll off.
type Monitor struct {
	mu         sync.Mutex
	metrics    []Metric
	alerts     []Alert
	thresholds Thresholds
	now        func() time.Time
}

func NewMonitor(thresholds Thresholds) *Monitor {
	return &Monitor{
		thresholds: thresholds,
		now:        time.Now,
	}
}

// Record stores one observation and checks thresholds.
func (m *Monitor) Record(operation string, duration time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.metrics = append(m.metrics, Metric{
		Operation: operation,
		Duration:  duration,
		Success:   success,
		Timestamp: m.now(),
	})
	if len(m.metrics) > maxMetrics {
		m.metrics = m.metrics[len(m.metrics)-maxMetrics:]
	}

	m.checkDuration(operation, duration)
	m.checkSuccessRate(operation)
}

func (m *Monitor) checkDuration(operation string, duration time.Duration) {
	var threshold time.Duration
	switch operation {
	case OpSave:
		threshold = m.thresholds.SaveTime
	case OpSync, OpConflictResolve:
		threshold = m.thresholds.SyncTime
	default:
		return
	}

	if threshold > 0 && duration > threshold {
		m.addAlert(Alert{
			Severity:    AlertWarning,
			Operation:   operation,
			Message:     operation + " response time over threshold",
			Threshold:   float64(threshold.Milliseconds()),
			ActualValue: float64(duration.Milliseconds()),
			Timestamp:   m.now(),
		})
	}
}

func (m *Monitor) checkSuccessRate(operation string) {
	recent := make([]Metric, 0, successRateWindow)
	for i := len(m.metrics) - 1; i >= 0 && len(recent) < successRateWindow; i-- {
		if m.metrics[i].Operation == operation {
			recent = append(recent, m.metrics[i])
		}
	}
	if len(recent) < successRateMinimum {
		return
	}

	succeeded := 0
	for _, metric := range recent {
		if metric.Success {
			succeeded++
		}
	}
	rate := float64(succeeded) / float64(len(recent)) * 100

	if rate < m.thresholds.SuccessRate {
		m.addAlert(Alert{
			Severity:    AlertError,
			Operation:   operation,
			Message:     operation + " success rate below threshold",
			Threshold:   m.thresholds.SuccessRate,
			ActualValue: rate,
			Timestamp:   m.now(),
		})
	}
}

func (m *Monitor) addAlert(alert Alert) {
	m.alerts = append(m.alerts, alert)
	if len(m.alerts) > maxAlerts {
		m.alerts = m.alerts[len(m.alerts)-maxAlerts:]
	}
	log.Printf("[PERF %s] %s (%.2f > %.2f)", alert.Severity, alert.Message, alert.ActualValue, alert.Threshold)
}

// Snapshot computes the rolling success rate and latency percentiles over
// the retained window.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		TotalOperations: len(m.metrics),
		SuccessRate:     100,
		Healthy:         true,
	}

	if len(m.metrics) > 0 {
		succeeded := 0
		var totalMs float64
		durations := make([]float64, 0, len(m.metrics))
		for _, metric := range m.metrics {
			if metric.Success {
				succeeded++
			}
			ms := float64(metric.Duration.Microseconds()) / 1000
			totalMs += ms
			durations = append(durations, ms)
		}
		snap.SuccessRate = float64(succeeded) / float64(len(m.metrics)) * 100
		snap.AverageTimeMs = totalMs / float64(len(m.metrics))

		sort.Float64s(durations)
		idx := int(float64(len(durations))*0.95) - 1
		if idx < 0 {
			idx = 0
		}
		snap.P95TimeMs = durations[idx]
	}

	if len(m.metrics) >= successRateMinimum && snap.SuccessRate < m.thresholds.SuccessRate {
		snap.Healthy = false
	}
	if m.thresholds.SyncTime > 0 && snap.P95TimeMs > float64(m.thresholds.SyncTime.Milliseconds()) {
		snap.Healthy = false
	}

	if n := len(m.alerts); n > 0 {
		start := n - 20
		if start < 0 {
			start = 0
		}
		snap.RecentAlerts = append(snap.RecentAlerts, m.alerts[start:]...)
	}

	return snap
}

// Healthy reports whether the rolling window is within thresholds.
func (m *Monitor) Healthy() bool {
	return m.Snapshot().Healthy
}
