package telemetry

import (
	"context"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const report_perf_stats = "perf_stats"

type PerfStats struct {
	tel        API
	cpu        metric.Float64Gauge
	memory     metric.Int64Gauge
	goroutines metric.Int64Gauge
}

// NewPerfStats creates the process gauges on the global meter provider, so it must be called
// after Setup.
func NewPerfStats(tel API) (PerfStats, error) {
	meter := otel.Meter("esimassist/perf_stats")
	cpuGauge, err := meter.Float64Gauge("cpu_usage")
	if err != nil {
		return PerfStats{}, err
	}
	memoryGauge, err := meter.Int64Gauge("allocated_mb")
	if err != nil {
		return PerfStats{}, err
	}
	goroutineGauge, err := meter.Int64Gauge("goroutine_count")
	if err != nil {
		return PerfStats{}, err
	}
	return PerfStats{
		tel:        tel,
		cpu:        cpuGauge,
		memory:     memoryGauge,
		goroutines: goroutineGauge,
	}, nil
}

// Record samples cpu usage over one second and records it with the current memory and
// goroutine counts.
func (p PerfStats) Record(ctx context.Context) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	usage, err := cpu.PercentWithContext(ctx, time.Second, false)
	if err != nil || len(usage) == 0 {
		p.tel.ReportWarning(report_perf_stats, "read cpu usage", err)
	} else {
		p.cpu.Record(ctx, usage[0])
	}

	allocated := int64(memStats.Alloc / 1_000_000)
	goroutines := int64(runtime.NumGoroutine())
	p.memory.Record(ctx, allocated)
	p.goroutines.Record(ctx, goroutines)

	p.tel.ReportCount("allocated_mb", allocated)
	p.tel.ReportCount("goroutine_count", goroutines)
}
