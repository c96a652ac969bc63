package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandlerServesPrometheusTextByDefault(t *testing.T) {
	TreesTotal.Set(3)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "acorndb_trees_total") {
		t.Fatalf("expected text exposition to include acorndb_trees_total")
	}
}

func TestHandlerServesOTelJSONWhenRequested(t *testing.T) {
	TreesTotal.Set(5)

	req := httptest.NewRequest(http.MethodGet, "/metrics?format=json", nil)
	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected application/json, got %s", ct)
	}

	var doc otelDocument
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode json exposition: %v", err)
	}
	if len(doc.ResourceMetrics) != 1 {
		t.Fatalf("expected one resourceMetrics entry, got %d", len(doc.ResourceMetrics))
	}

	var found bool
	for _, m := range doc.ResourceMetrics[0].ScopeMetrics[0].Metrics {
		if m.Name != "acorndb_trees_total" {
			continue
		}
		found = true
		if m.Gauge == nil || len(m.Gauge.DataPoints) != 1 {
			t.Fatalf("expected a single gauge data point, got %+v", m)
		}
		if m.Gauge.DataPoints[0].AsDouble != 5 {
			t.Fatalf("expected gauge value 5, got %v", m.Gauge.DataPoints[0].AsDouble)
		}
	}
	if !found {
		t.Fatalf("expected acorndb_trees_total in json exposition")
	}
}

func TestJSONExpositionShapesCountersAsMonotonicSums(t *testing.T) {
	TrunkFlushesTotal.Inc()

	req := httptest.NewRequest(http.MethodGet, "/metrics?format=json", nil)
	w := httptest.NewRecorder()
	JSONHandler()(w, req)

	var doc otelDocument
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode json exposition: %v", err)
	}
	for _, m := range doc.ResourceMetrics[0].ScopeMetrics[0].Metrics {
		if m.Name != "acorndb_trunk_flushes_total" {
			continue
		}
		if m.Sum == nil || !m.Sum.IsMonotonic {
			t.Fatalf("expected counter exported as monotonic sum, got %+v", m)
		}
		if m.Sum.AggregationTemporality != "AGGREGATION_TEMPORALITY_CUMULATIVE" {
			t.Fatalf("unexpected temporality %q", m.Sum.AggregationTemporality)
		}
		return
	}
	t.Fatalf("expected acorndb_trunk_flushes_total in json exposition")
}
