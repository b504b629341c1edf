package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// MetricType classifies a metric.
type MetricType string

const (
	MetricCounter   MetricType = "counter"
	MetricGauge     MetricType = "gauge"
	MetricHistogram MetricType = "histogram"
)

// ParseMetricType converts a type name (any case) to a MetricType.
func ParseMetricType(s string) (MetricType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "counter":
		return MetricCounter, nil
	case "gauge":
		return MetricGauge, nil
	case "histogram":
		return MetricHistogram, nil
	default:
		return "", fmt.Errorf("unknown metric type %q", s)
	}
}

// HistogramData holds histogram buckets with cumulative counts.
// Bounds are upper bucket boundaries and must be strictly increasing;
// Counts[i] is the cumulative count of observations <= Bounds[i], with one
// trailing count for the overflow bucket.
type HistogramData struct {
	Bounds []float64 `json:"bounds"`
	Counts []uint64  `json:"counts"`
	Sum    float64   `json:"sum"`
	Count  uint64    `json:"count"`
}

// Metric is a single metric sample. Its value is either a scalar (Value)
// or histogram data (Histogram), never both.
type Metric struct {
	// Name identifies the metric (required).
	Name string `json:"name"`

	// Type is counter, gauge or histogram.
	Type MetricType `json:"type"`

	// Value is the scalar sample value. Ignored when Histogram is set.
	Value float64 `json:"value"`

	// Histogram is set for histogram metrics and nil otherwise.
	Histogram *HistogramData `json:"histogram,omitempty"`

	// Timestamp is the sample time.
	Timestamp time.Time `json:"timestamp"`

	// Labels are the metric's dimensions.
	Labels map[string]string `json:"labels,omitempty"`

	// Description and Unit are optional metadata from the producer.
	Description string `json:"description,omitempty"`
	Unit        string `json:"unit,omitempty"`
}

// IsHistogram reports whether the metric carries histogram data
// instead of a scalar value.
func (m *Metric) IsHistogram() bool {
	return m.Histogram != nil
}

// Validate checks the structural invariants of the metric.
func (m *Metric) Validate() error {
	if m.Name == "" {
		return errors.New("metric name cannot be empty")
	}
	if m.Histogram != nil {
		for i := 1; i < len(m.Histogram.Bounds); i++ {
			if m.Histogram.Bounds[i] <= m.Histogram.Bounds[i-1] {
				return fmt.Errorf("histogram buckets must be strictly increasing: bound[%d]=%v <= bound[%d]=%v",
					i, m.Histogram.Bounds[i], i-1, m.Histogram.Bounds[i-1])
			}
		}
	}
	return nil
}
