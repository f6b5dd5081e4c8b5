package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewMetrics(t *testing.T) {
	m := NewMetrics()

	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}

	if m.registry == nil {
		t.Error("Registry is nil")
	}

	// Verify scan metrics
	if m.ScansTotal == nil {
		t.Error("ScansTotal is nil")
	}
	if m.ScanDuration == nil {
		t.Error("ScanDuration is nil")
	}
	if m.CandidatesFound == nil {
		t.Error("CandidatesFound is nil")
	}
	if m.ScanErrorsTotal == nil {
		t.Error("ScanErrorsTotal is nil")
	}
	if m.ScansSkippedTotal == nil {
		t.Error("ScansSkippedTotal is nil")
	}

	// Verify consolidation metrics
	if m.ConsolidationsTotal == nil {
		t.Error("ConsolidationsTotal is nil")
	}
	if m.UndosTotal == nil {
		t.Error("UndosTotal is nil")
	}

	// Verify LLM metrics
	if m.LLMCallsTotal == nil {
		t.Error("LLMCallsTotal is nil")
	}
	if m.LLMCallDuration == nil {
		t.Error("LLMCallDuration is nil")
	}

	// Verify maintenance metrics
	if m.MaintenanceRunsTotal == nil {
		t.Error("MaintenanceRunsTotal is nil")
	}
	if m.MaintenanceRunDuration == nil {
		t.Error("MaintenanceRunDuration is nil")
	}
	if m.LinksPrunedTotal == nil {
		t.Error("LinksPrunedTotal is nil")
	}
	if m.LinksEnrichedTotal == nil {
		t.Error("LinksEnrichedTotal is nil")
	}
	if m.OrphansReconnectedTotal == nil {
		t.Error("OrphansReconnectedTotal is nil")
	}

	// Verify corpus gauges
	if m.MemoriesLive == nil {
		t.Error("MemoriesLive is nil")
	}
	if m.LinksTotal == nil {
		t.Error("LinksTotal is nil")
	}
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics()

	// Record some sample metrics so they appear in output
	m.ScansTotal.Inc()
	m.ScanDuration.Observe(1.0)
	m.CandidatesFound.Add(3)
	m.ConsolidationsTotal.WithLabelValues("merge", "success").Inc()
	m.LLMCallsTotal.WithLabelValues("merge", "success").Inc()
	m.LLMCallDuration.WithLabelValues("merge").Observe(0.5)
	m.MaintenanceRunsTotal.WithLabelValues("success").Inc()

	handler := m.Handler()
	if handler == nil {
		t.Fatal("Handler returned nil")
	}

	// Test HTTP endpoint
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	body := w.Body.String()

	// Verify metrics are exposed
	expectedMetrics := []string{
		"mnemo_scans_total",
		"mnemo_scan_duration_seconds",
		"mnemo_candidates_found_total",
		"mnemo_consolidations_total",
		"mnemo_llm_calls_total",
		"mnemo_llm_call_duration_seconds",
		"mnemo_maintenance_runs_total",
		"mnemo_memories_live",
		"mnemo_links_total",
	}

	for _, metric := range expectedMetrics {
		if !strings.Contains(body, metric) {
			t.Errorf("Metrics output missing: %s", metric)
		}
	}
}

func TestMetricsRegistry(t *testing.T) {
	m := NewMetrics()

	registry := m.Registry()
	if registry == nil {
		t.Fatal("Registry returned nil")
	}

	// Record some sample metrics so they appear in gather
	m.ScansTotal.Inc()
	m.ScanDuration.Observe(1.0)
	m.ConsolidationsTotal.WithLabelValues("delete_duplicate", "success").Inc()
	m.LLMCallsTotal.WithLabelValues("classify", "fallback").Inc()
	m.LLMCallDuration.WithLabelValues("classify").Observe(0.5)
	m.MaintenanceRunsTotal.WithLabelValues("success").Inc()
	m.ScansSkippedTotal.WithLabelValues("corpus_too_small").Inc()

	// Verify metrics are registered
	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	if len(metricFamilies) == 0 {
		t.Error("No metrics registered")
	}
}

func TestConsolidationMetrics(t *testing.T) {
	m := NewMetrics()

	t.Run("increment consolidations by action", func(t *testing.T) {
		m.ConsolidationsTotal.WithLabelValues("merge", "success").Inc()
		m.ConsolidationsTotal.WithLabelValues("delete_duplicate", "success").Inc()

		metricFamilies, _ := m.registry.Gather()
		found := false
		for _, mf := range metricFamilies {
			if *mf.Name == "mnemo_consolidations_total" {
				found = true
				if len(mf.Metric) != 2 {
					t.Errorf("Expected 2 label combinations, got %d", len(mf.Metric))
				}
			}
		}
		if !found {
			t.Error("mnemo_consolidations_total metric not found")
		}
	})

	t.Run("increment undos", func(t *testing.T) {
		m.UndosTotal.Inc()

		metricFamilies, _ := m.registry.Gather()
		found := false
		for _, mf := range metricFamilies {
			if *mf.Name == "mnemo_undos_total" {
				found = true
			}
		}
		if !found {
			t.Error("mnemo_undos_total metric not found")
		}
	})
}

func TestCorpusGauges(t *testing.T) {
	m := NewMetrics()

	m.MemoriesLive.Set(42)
	m.LinksTotal.Set(17)

	metricFamilies, _ := m.registry.Gather()
	for _, mf := range metricFamilies {
		switch *mf.Name {
		case "mnemo_memories_live":
			if *mf.Metric[0].Gauge.Value != 42 {
				t.Errorf("Expected value 42, got %f", *mf.Metric[0].Gauge.Value)
			}
		case "mnemo_links_total":
			if *mf.Metric[0].Gauge.Value != 17 {
				t.Errorf("Expected value 17, got %f", *mf.Metric[0].Gauge.Value)
			}
		}
	}
}

func TestMetricsIsolation(t *testing.T) {
	// Create two separate metrics instances
	m1 := NewMetrics()
	m2 := NewMetrics()

	// Increment metrics in m1
	m1.ScansTotal.Inc()
	m1.ScansTotal.Inc()

	// Increment metrics in m2
	m2.ScansTotal.Inc()

	// Verify m1 has 2
	metricFamilies1, _ := m1.registry.Gather()
	for _, mf := range metricFamilies1 {
		if *mf.Name == "mnemo_scans_total" {
			if len(mf.Metric) > 0 && *mf.Metric[0].Counter.Value != 2 {
				t.Errorf("m1: Expected value 2, got %f", *mf.Metric[0].Counter.Value)
			}
		}
	}

	// Verify m2 has 1
	metricFamilies2, _ := m2.registry.Gather()
	for _, mf := range metricFamilies2 {
		if *mf.Name == "mnemo_scans_total" {
			if len(mf.Metric) > 0 && *mf.Metric[0].Counter.Value != 1 {
				t.Errorf("m2: Expected value 1, got %f", *mf.Metric[0].Counter.Value)
			}
		}
	}
}
