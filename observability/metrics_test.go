package observability

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
)

func TestEngineMetricsSingleton(t *testing.T) {
	a := Engine()
	b := Engine()
	if a != b {
		t.Fatal("expected Engine() to return the same singleton instance")
	}
}

func TestEngineMetricsNilReceiverSafe(t *testing.T) {
	var m *engineMetrics
	m.RecordViewStarted(1)
	m.RecordFinalized(1)
	m.RecordCertificateSigned()
	m.RecordSeedTimeout()
}

func TestRecordFinalizedUpdatesGauges(t *testing.T) {
	m := Engine()
	m.RecordFinalized(42)
	m.RecordSeedTimeout()
	m.RecordCertificateSigned()
	m.RecordViewStarted(7)

	var height dto.Metric
	if err := m.lastFinalizedHeight.Write(&height); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := height.GetGauge().GetValue(); got != 42 {
		t.Fatalf("expected last finalized height gauge 42, got %v", got)
	}
	var view dto.Metric
	if err := m.currentView.Write(&view); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := view.GetGauge().GetValue(); got != 7 {
		t.Fatalf("expected current view gauge 7, got %v", got)
	}
}
