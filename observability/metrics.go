// Package observability hosts the engine's own Prometheus collectors,
// following the teacher's lazy-singleton moduleMetrics pattern (a
// sync.Once-guarded package-level registry reached through an
// accessor function) but scoped to the consensus/economy domain this
// module actually runs, rather than the teacher's RPC/module
// request-latency metrics.
package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type engineMetrics struct {
	viewsStarted       prometheus.Counter
	blocksFinalized    prometheus.Counter
	certificatesSigned prometheus.Counter
	seedTimeouts       prometheus.Counter
	currentView        prometheus.Gauge
	lastFinalizedHeight prometheus.Gauge
}

var (
	engineMetricsOnce sync.Once
	engineRegistry    *engineMetrics
)

// Engine returns the lazily-initialized engine metrics registry.
func Engine() *engineMetrics {
	engineMetricsOnce.Do(func() {
		engineRegistry = &engineMetrics{
			viewsStarted: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "engine",
				Subsystem: "consensus",
				Name:      "views_started_total",
				Help:      "Count of consensus views entered.",
			}),
			blocksFinalized: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "engine",
				Subsystem: "consensus",
				Name:      "blocks_finalized_total",
				Help:      "Count of blocks finalized.",
			}),
			certificatesSigned: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "engine",
				Subsystem: "aggregator",
				Name:      "certificates_signed_total",
				Help:      "Count of threshold certificates recovered.",
			}),
			seedTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "engine",
				Subsystem: "seeder",
				Name:      "seed_timeouts_total",
				Help:      "Count of views that fell back to the all-zero seed.",
			}),
			currentView: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "engine",
				Subsystem: "consensus",
				Name:      "current_view",
				Help:      "The consensus engine's current view.",
			}),
			lastFinalizedHeight: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "engine",
				Subsystem: "marshal",
				Name:      "last_finalized_height",
				Help:      "Height of the most recently finalized block.",
			}),
		}
		prometheus.MustRegister(
			engineRegistry.viewsStarted,
			engineRegistry.blocksFinalized,
			engineRegistry.certificatesSigned,
			engineRegistry.seedTimeouts,
			engineRegistry.currentView,
			engineRegistry.lastFinalizedHeight,
		)
	})
	return engineRegistry
}

func (m *engineMetrics) RecordViewStarted(view uint64) {
	if m == nil {
		return
	}
	m.viewsStarted.Inc()
	m.currentView.Set(float64(view))
}

func (m *engineMetrics) RecordFinalized(height uint64) {
	if m == nil {
		return
	}
	m.blocksFinalized.Inc()
	m.lastFinalizedHeight.Set(float64(height))
}

func (m *engineMetrics) RecordCertificateSigned() {
	if m == nil {
		return
	}
	m.certificatesSigned.Inc()
}

func (m *engineMetrics) RecordSeedTimeout() {
	if m == nil {
		return
	}
	m.seedTimeouts.Inc()
}
