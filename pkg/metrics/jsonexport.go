package metrics

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// The JSON exposition mirrors the Prometheus registry in an
// OpenTelemetry-shaped document: resourceMetrics -> scopeMetrics ->
// metrics, with counters as monotonic cumulative sums and gauges as
// gauges. Histograms surface their cumulative count/sum plus bucket
// boundaries.

type otelDocument struct {
	ResourceMetrics []otelResourceMetrics `json:"resourceMetrics"`
}

type otelResourceMetrics struct {
	Resource     otelResource       `json:"resource"`
	ScopeMetrics []otelScopeMetrics `json:"scopeMetrics"`
}

type otelResource struct {
	Attributes []otelAttribute `json:"attributes"`
}

type otelScopeMetrics struct {
	Scope   otelScope    `json:"scope"`
	Metrics []otelMetric `json:"metrics"`
}

type otelScope struct {
	Name string `json:"name"`
}

type otelAttribute struct {
	Key   string        `json:"key"`
	Value otelAttrValue `json:"value"`
}

type otelAttrValue struct {
	StringValue string `json:"stringValue"`
}

type otelMetric struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Gauge       *otelGauge     `json:"gauge,omitempty"`
	Sum         *otelSum       `json:"sum,omitempty"`
	Histogram   *otelHistogram `json:"histogram,omitempty"`
}

type otelGauge struct {
	DataPoints []otelNumberPoint `json:"dataPoints"`
}

type otelSum struct {
	DataPoints             []otelNumberPoint `json:"dataPoints"`
	AggregationTemporality string            `json:"aggregationTemporality"`
	IsMonotonic            bool              `json:"isMonotonic"`
}

type otelHistogram struct {
	DataPoints             []otelHistogramPoint `json:"dataPoints"`
	AggregationTemporality string               `json:"aggregationTemporality"`
}

type otelNumberPoint struct {
	Attributes   []otelAttribute `json:"attributes,omitempty"`
	TimeUnixNano int64           `json:"timeUnixNano"`
	AsDouble     float64         `json:"asDouble"`
}

type otelHistogramPoint struct {
	Attributes      []otelAttribute `json:"attributes,omitempty"`
	TimeUnixNano    int64           `json:"timeUnixNano"`
	Count           uint64          `json:"count"`
	Sum             float64         `json:"sum"`
	BucketCounts    []uint64        `json:"bucketCounts,omitempty"`
	ExplicitBounds  []float64       `json:"explicitBounds,omitempty"`
}

func labelAttributes(pairs []*dto.LabelPair) []otelAttribute {
	if len(pairs) == 0 {
		return nil
	}
	out := make([]otelAttribute, 0, len(pairs))
	for _, lp := range pairs {
		out = append(out, otelAttribute{
			Key:   lp.GetName(),
			Value: otelAttrValue{StringValue: lp.GetValue()},
		})
	}
	return out
}

func gatherJSON(now time.Time) (*otelDocument, error) {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return nil, err
	}
	ts := now.UnixNano()

	metrics := make([]otelMetric, 0, len(families))
	for _, mf := range families {
		m := otelMetric{Name: mf.GetName(), Description: mf.GetHelp()}

		switch mf.GetType() {
		case dto.MetricType_GAUGE:
			g := &otelGauge{}
			for _, pm := range mf.GetMetric() {
				g.DataPoints = append(g.DataPoints, otelNumberPoint{
					Attributes:   labelAttributes(pm.GetLabel()),
					TimeUnixNano: ts,
					AsDouble:     pm.GetGauge().GetValue(),
				})
			}
			m.Gauge = g
		case dto.MetricType_COUNTER:
			s := &otelSum{AggregationTemporality: "AGGREGATION_TEMPORALITY_CUMULATIVE", IsMonotonic: true}
			for _, pm := range mf.GetMetric() {
				s.DataPoints = append(s.DataPoints, otelNumberPoint{
					Attributes:   labelAttributes(pm.GetLabel()),
					TimeUnixNano: ts,
					AsDouble:     pm.GetCounter().GetValue(),
				})
			}
			m.Sum = s
		case dto.MetricType_HISTOGRAM:
			h := &otelHistogram{AggregationTemporality: "AGGREGATION_TEMPORALITY_CUMULATIVE"}
			for _, pm := range mf.GetMetric() {
				hist := pm.GetHistogram()
				point := otelHistogramPoint{
					Attributes:   labelAttributes(pm.GetLabel()),
					TimeUnixNano: ts,
					Count:        hist.GetSampleCount(),
					Sum:          hist.GetSampleSum(),
				}
				for _, b := range hist.GetBucket() {
					point.BucketCounts = append(point.BucketCounts, b.GetCumulativeCount())
					point.ExplicitBounds = append(point.ExplicitBounds, b.GetUpperBound())
				}
				h.DataPoints = append(h.DataPoints, point)
			}
			m.Histogram = h
		default:
			continue
		}
		metrics = append(metrics, m)
	}

	return &otelDocument{
		ResourceMetrics: []otelResourceMetrics{{
			Resource: otelResource{
				Attributes: []otelAttribute{{
					Key:   "service.name",
					Value: otelAttrValue{StringValue: "acorndb"},
				}},
			},
			ScopeMetrics: []otelScopeMetrics{{
				Scope:   otelScope{Name: "github.com/acorndb/acorndb/pkg/metrics"},
				Metrics: metrics,
			}},
		}},
	}, nil
}

// JSONHandler serves the registry as an OpenTelemetry-shaped JSON
// document, the ?format=json face of the metrics endpoint.
func JSONHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc, err := gatherJSON(time.Now())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(doc)
	}
}
