// Package sysmetrics publishes periodic process-level gauges
// (resident set size, virtual memory size, CPU percentage), ported
// directly from node/src/system_metrics.rs's spawn_process_metrics:
// same three gauges, same 5-second sample interval, same
// sample-once-then-loop shape.
package sysmetrics

import (
	"context"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v3/process"
)

// UpdateInterval matches the teacher's UPDATE_INTERVAL constant.
const UpdateInterval = 5 * time.Second

// Gauges are the three process-level Prometheus collectors,
// registered once per the teacher's observability/metrics.go pattern
// of constructing collectors at actor start.
type Gauges struct {
	RSSBytes      prometheus.Gauge
	VirtualBytes  prometheus.Gauge
	CPUPercent    prometheus.Gauge
}

// NewGauges constructs and registers the three gauges against reg.
func NewGauges(reg prometheus.Registerer) *Gauges {
	g := &Gauges{
		RSSBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "process_rss_bytes",
			Help: "Resident set size in bytes.",
		}),
		VirtualBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "process_virtual_bytes",
			Help: "Virtual memory size in bytes.",
		}),
		CPUPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "process_cpu_percent",
			Help: "Process CPU usage percentage.",
		}),
	}
	reg.MustRegister(g.RSSBytes, g.VirtualBytes, g.CPUPercent)
	return g
}

// Run samples the current process every UpdateInterval until ctx is
// cancelled, matching the teacher's "update once, then sleep-loop"
// shape.
func Run(ctx context.Context, gauges *Gauges) error {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	sample := func() {
		memInfo, err := proc.MemoryInfo()
		if err != nil || memInfo == nil {
			gauges.RSSBytes.Set(0)
			gauges.VirtualBytes.Set(0)
			gauges.CPUPercent.Set(0)
			return
		}
		gauges.RSSBytes.Set(float64(memInfo.RSS))
		gauges.VirtualBytes.Set(float64(memInfo.VMS))
		cpuPercent, err := proc.CPUPercent()
		if err != nil {
			cpuPercent = 0
		}
		gauges.CPUPercent.Set(cpuPercent)
	}

	sample()
	ticker := time.NewTicker(UpdateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			sample()
		}
	}
}
