package infrastructure

import (
	"context"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// RuntimeStats is a point-in-time view of the process, served by the health endpoint.
type RuntimeStats struct {
	Goroutines     int     `json:"goroutines"`
	HeapAllocBytes uint64  `json:"heap_alloc_bytes"`
	SysBytes       uint64  `json:"sys_bytes"`
	NumGC          uint32  `json:"num_gc"`
	NumCPU         int     `json:"num_cpu"`
	UptimeSeconds  float64 `json:"uptime_seconds"`
}

// SystemMetrics reports runtime gauges through OpenTelemetry observable instruments
type SystemMetrics struct {
	startTime    time.Time
	registration metric.Registration
}

// NewSystemMetrics registers runtime gauges on meter. Values are sampled on
// each collection, not on a timer.
func NewSystemMetrics(meter metric.Meter) (*SystemMetrics, error) {
	sm := &SystemMetrics{startTime: time.Now()}

	goroutines, err := meter.Int64ObservableGauge(
		"system_goroutines",
		metric.WithDescription("Number of active goroutines"),
	)
	if err != nil {
		return nil, err
	}

	heapAlloc, err := meter.Int64ObservableGauge(
		"system_memory_allocated_bytes",
		metric.WithDescription("Heap memory allocated by the Go runtime"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	uptime, err := meter.Float64ObservableGauge(
		"system_process_uptime_seconds",
		metric.WithDescription("Process uptime in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	reg, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		stats := sm.Snapshot()
		o.ObserveInt64(goroutines, int64(stats.Goroutines))
		o.ObserveInt64(heapAlloc, int64(stats.HeapAllocBytes))
		o.ObserveFloat64(uptime, stats.UptimeSeconds)
		return nil
	}, goroutines, heapAlloc, uptime)
	if err != nil {
		return nil, err
	}
	sm.registration = reg

	return sm, nil
}

// Snapshot samples the runtime now
func (sm *SystemMetrics) Snapshot() RuntimeStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	start := time.Now()
	if sm != nil {
		start = sm.startTime
	}

	return RuntimeStats{
		Goroutines:     runtime.NumGoroutine(),
		HeapAllocBytes: m.HeapAlloc,
		SysBytes:       m.Sys,
		NumGC:          m.NumGC,
		NumCPU:         runtime.NumCPU(),
		UptimeSeconds:  time.Since(start).Seconds(),
	}
}

// Stop unregisters the gauge callback
func (sm *SystemMetrics) Stop() error {
	if sm == nil || sm.registration == nil {
		return nil
	}
	return sm.registration.Unregister()
}
