package perf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testThresholds() Thresholds {
	return Thresholds{
		SaveTime:    300 * time.Millisecond,
		SyncTime:    2 * time.Second,
		SuccessRate: 99.5,
	}
}

// TestMonitor_HealthyByDefault tests the empty monitor
func TestMonitor_HealthyByDefault(t *testing.T) {
	monitor := NewMonitor(testThresholds())

	snap := monitor.Snapshot()
	assert.True(t, snap.Healthy)
	assert.Equal(t, 0, snap.TotalOperations)
	assert.Equal(t, float64(100), snap.SuccessRate)
}

// TestMonitor_SlowSaveRaisesWarning tests the duration threshold alert
func TestMonitor_SlowSaveRaisesWarning(t *testing.T) {
	monitor := NewMonitor(testThresholds())

	monitor.Record(OpSave, 500*time.Millisecond, true)

	snap := monitor.Snapshot()
	assert.Len(t, snap.RecentAlerts, 1)
	assert.Equal(t, AlertWarning, snap.RecentAlerts[0].Severity)
	assert.Equal(t, OpSave, snap.RecentAlerts[0].Operation)
}

// TestMonitor_FastOperationsNoAlerts tests that in-threshold operations
// stay quiet
func TestMonitor_FastOperationsNoAlerts(t *testing.T) {
	monitor := NewMonitor(testThresholds())

	monitor.Record(OpSave, 100*time.Millisecond, true)
	monitor.Record(OpSync, time.Second, true)

	snap := monitor.Snapshot()
	assert.Empty(t, snap.RecentAlerts)
	assert.True(t, snap.Healthy)
}

// TestMonitor_SuccessRateNeedsMinimumSamples tests that failures below the
// sample minimum raise no success-rate alert
func TestMonitor_SuccessRateNeedsMinimumSamples(t *testing.T) {
	monitor := NewMonitor(testThresholds())

	for i := 0; i < 9; i++ {
		monitor.Record(OpSave, 10*time.Millisecond, false)
	}

	snap := monitor.Snapshot()
	for _, alert := range snap.RecentAlerts {
		assert.NotEqual(t, AlertError, alert.Severity)
	}
	// below the minimum sample count the monitor withholds judgment
	assert.True(t, snap.Healthy)
}

// TestMonitor_SuccessRateAlert tests the rolling-window success rate
func TestMonitor_SuccessRateAlert(t *testing.T) {
	monitor := NewMonitor(testThresholds())

	for i := 0; i < 19; i++ {
		monitor.Record(OpSave, 10*time.Millisecond, true)
	}
	monitor.Record(OpSave, 10*time.Millisecond, false)

	// 19/20 = 95% < 99.5%
	snap := monitor.Snapshot()
	assert.False(t, snap.Healthy)

	var sawError bool
	for _, alert := range snap.RecentAlerts {
		if alert.Severity == AlertError && alert.Operation == OpSave {
			sawError = true
			assert.InDelta(t, 95.0, alert.ActualValue, 0.01)
		}
	}
	assert.True(t, sawError)
}

// TestMonitor_WindowRollsOff tests that old failures age out of the
// success-rate window
func TestMonitor_WindowRollsOff(t *testing.T) {
	monitor := NewMonitor(testThresholds())

	monitor.Record(OpSave, 10*time.Millisecond, false)
	for i := 0; i < 20; i++ {
		monitor.Record(OpSave, 10*time.Millisecond, true)
	}

	// the single failure is outside the last-20 window
	snap := monitor.Snapshot()
	assert.InDelta(t, 100.0*20/21, snap.SuccessRate, 0.01)
}

// TestMonitor_SuccessRatePerOperation tests that failures in one operation
// do not trip another's window
func TestMonitor_SuccessRatePerOperation(t *testing.T) {
	monitor := NewMonitor(testThresholds())

	for i := 0; i < 15; i++ {
		monitor.Record(OpSync, 10*time.Millisecond, false)
	}
	for i := 0; i < 15; i++ {
		monitor.Record(OpSave, 10*time.Millisecond, true)
	}

	snap := monitor.Snapshot()
	for _, alert := range snap.RecentAlerts {
		if alert.Severity == AlertError {
			assert.Equal(t, OpSync, alert.Operation)
		}
	}
}

// TestMonitor_SnapshotAggregates tests the average and p95 math
func TestMonitor_SnapshotAggregates(t *testing.T) {
	monitor := NewMonitor(Thresholds{SuccessRate: 50})

	for i := 1; i <= 10; i++ {
		monitor.Record(OpSave, time.Duration(i)*10*time.Millisecond, true)
	}

	snap := monitor.Snapshot()
	assert.Equal(t, 10, snap.TotalOperations)
	assert.Equal(t, float64(100), snap.SuccessRate)
	assert.InDelta(t, 55.0, snap.AverageTimeMs, 0.01)
	assert.InDelta(t, 90.0, snap.P95TimeMs, 0.01)
}

// TestMonitor_MetricsBounded tests that retained state stays bounded
func TestMonitor_MetricsBounded(t *testing.T) {
	monitor := NewMonitor(Thresholds{})

	for i := 0; i < maxMetrics+100; i++ {
		monitor.Record(OpSave, time.Millisecond, true)
	}

	snap := monitor.Snapshot()
	assert.Equal(t, maxMetrics, snap.TotalOperations)
}
