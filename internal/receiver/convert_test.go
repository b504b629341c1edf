package receiver

import (
	"testing"
	"time"

	"github.com/hklund/signaldb/pkg/models"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	logspb "go.opentelemetry.io/proto/otlp/logs/v1"
	metricspb "go.opentelemetry.io/proto/otlp/metrics/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
)

func serviceResource(name string) *resourcepb.Resource {
	return &resourcepb.Resource{
		Attributes: []*commonpb.KeyValue{
			{Key: "service.name", Value: &commonpb.AnyValue{
				Value: &commonpb.AnyValue_StringValue{StringValue: name},
			}},
		},
	}
}

func stringBody(s string) *commonpb.AnyValue {
	return &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: s}}
}

func TestExtractServiceName(t *testing.T) {
	if got := extractServiceName(nil); got != "unknown" {
		t.Errorf("nil resource: expected unknown, got %q", got)
	}
	if got := extractServiceName(&resourcepb.Resource{}); got != "unknown" {
		t.Errorf("empty resource: expected unknown, got %q", got)
	}
	if got := extractServiceName(serviceResource("checkout")); got != "checkout" {
		t.Errorf("expected checkout, got %q", got)
	}
}

func TestConvertSeverity(t *testing.T) {
	tests := []struct {
		num  logspb.SeverityNumber
		text string
		want models.LogLevel
	}{
		{logspb.SeverityNumber_SEVERITY_NUMBER_TRACE, "", models.LevelTrace},
		{logspb.SeverityNumber_SEVERITY_NUMBER_DEBUG2, "", models.LevelDebug},
		{logspb.SeverityNumber_SEVERITY_NUMBER_INFO, "", models.LevelInfo},
		{logspb.SeverityNumber_SEVERITY_NUMBER_WARN4, "", models.LevelWarn},
		{logspb.SeverityNumber_SEVERITY_NUMBER_ERROR, "", models.LevelError},
		{logspb.SeverityNumber_SEVERITY_NUMBER_FATAL, "", models.LevelFatal},
		// Unspecified number falls back to the text, then to info.
		{logspb.SeverityNumber_SEVERITY_NUMBER_UNSPECIFIED, "warning", models.LevelWarn},
		{logspb.SeverityNumber_SEVERITY_NUMBER_UNSPECIFIED, "ERROR", models.LevelError},
		{logspb.SeverityNumber_SEVERITY_NUMBER_UNSPECIFIED, "", models.LevelInfo},
		{logspb.SeverityNumber_SEVERITY_NUMBER_UNSPECIFIED, "bogus", models.LevelInfo},
	}
	for _, tt := range tests {
		if got := convertSeverity(tt.num, tt.text); got != tt.want {
			t.Errorf("convertSeverity(%v, %q) = %v, expected %v", tt.num, tt.text, got, tt.want)
		}
	}
}

func TestConvertLogsDropsInvalid(t *testing.T) {
	ts := uint64(time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC).UnixNano())
	resourceLogs := []*logspb.ResourceLogs{
		{
			Resource: serviceResource("api"),
			ScopeLogs: []*logspb.ScopeLogs{
				{
					LogRecords: []*logspb.LogRecord{
						{TimeUnixNano: ts, Body: stringBody("request ok"),
							SeverityNumber: logspb.SeverityNumber_SEVERITY_NUMBER_INFO},
						// Empty body fails validation.
						{TimeUnixNano: ts,
							SeverityNumber: logspb.SeverityNumber_SEVERITY_NUMBER_INFO},
					},
				},
			},
		},
	}

	entries, rejected := convertLogs(resourceLogs)
	if len(entries) != 1 || rejected != 1 {
		t.Fatalf("expected 1 accepted and 1 rejected, got %d accepted, %d rejected", len(entries), rejected)
	}
	e := entries[0]
	if e.Service != "api" || e.Message != "request ok" || e.Level != models.LevelInfo {
		t.Errorf("unexpected entry: %+v", e)
	}
	if !e.Timestamp.Equal(time.Unix(0, int64(ts)).UTC()) {
		t.Errorf("unexpected timestamp: %v", e.Timestamp)
	}
}

func TestConvertLogsDefaultsTimestamp(t *testing.T) {
	resourceLogs := []*logspb.ResourceLogs{
		{
			ScopeLogs: []*logspb.ScopeLogs{
				{LogRecords: []*logspb.LogRecord{{Body: stringBody("no time")}}},
			},
		},
	}
	entries, rejected := convertLogs(resourceLogs)
	if len(entries) != 1 || rejected != 0 {
		t.Fatalf("expected 1 entry, got %d (rejected %d)", len(entries), rejected)
	}
	if entries[0].Timestamp.IsZero() {
		t.Error("expected a defaulted timestamp, got zero")
	}
	if entries[0].Service != "unknown" {
		t.Errorf("expected unknown service, got %q", entries[0].Service)
	}
}

func TestConvertHistogramCumulativeCounts(t *testing.T) {
	sum := 180.0
	dp := &metricspb.HistogramDataPoint{
		Count:          6,
		Sum:            &sum,
		ExplicitBounds: []float64{10, 100},
		BucketCounts:   []uint64{2, 3, 1},
	}

	hist := convertHistogram(dp)
	if hist.Count != 6 || hist.Sum != 180 {
		t.Errorf("unexpected count/sum: %d / %v", hist.Count, hist.Sum)
	}
	want := []uint64{2, 5, 6}
	if len(hist.Counts) != len(want) {
		t.Fatalf("expected %d cumulative counts, got %d", len(want), len(hist.Counts))
	}
	for i := range want {
		if hist.Counts[i] != want[i] {
			t.Errorf("count[%d] = %d, expected %d", i, hist.Counts[i], want[i])
		}
	}
}

func TestConvertMetricsSumBecomesCounter(t *testing.T) {
	ts := uint64(time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC).UnixNano())
	resourceMetrics := []*metricspb.ResourceMetrics{
		{
			ScopeMetrics: []*metricspb.ScopeMetrics{
				{
					Metrics: []*metricspb.Metric{
						{
							Name: "requests_total",
							Data: &metricspb.Metric_Sum{Sum: &metricspb.Sum{
								DataPoints: []*metricspb.NumberDataPoint{
									{TimeUnixNano: ts, Value: &metricspb.NumberDataPoint_AsInt{AsInt: 42}},
								},
							}},
						},
						{
							Name: "cpu_usage",
							Data: &metricspb.Metric_Gauge{Gauge: &metricspb.Gauge{
								DataPoints: []*metricspb.NumberDataPoint{
									{TimeUnixNano: ts, Value: &metricspb.NumberDataPoint_AsDouble{AsDouble: 0.7}},
								},
							}},
						},
					},
				},
			},
		},
	}

	metrics, rejected := convertMetrics(resourceMetrics)
	if rejected != 0 {
		t.Fatalf("expected no rejections, got %d", rejected)
	}
	if len(metrics) != 2 {
		t.Fatalf("expected 2 metrics, got %d", len(metrics))
	}
	if metrics[0].Type != models.MetricCounter || metrics[0].Value != 42 {
		t.Errorf("unexpected counter: %+v", metrics[0])
	}
	if metrics[1].Type != models.MetricGauge || metrics[1].Value != 0.7 {
		t.Errorf("unexpected gauge: %+v", metrics[1])
	}
}

func TestConvertSpans(t *testing.T) {
	start := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	traceID := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10}
	spanID := []byte{0x11, 0x12, 0x13, 0x14, 0x15, 0x16, 0x17, 0x18}

	resourceSpans := []*tracepb.ResourceSpans{
		{
			Resource: serviceResource("api"),
			ScopeSpans: []*tracepb.ScopeSpans{
				{
					Spans: []*tracepb.Span{
						{
							TraceId:           traceID,
							SpanId:            spanID,
							Name:              "GET /checkout",
							Kind:              tracepb.Span_SPAN_KIND_SERVER,
							StartTimeUnixNano: uint64(start.UnixNano()),
							EndTimeUnixNano:   uint64(start.Add(50 * time.Millisecond).UnixNano()),
							Status:            &tracepb.Status{Code: tracepb.Status_STATUS_CODE_ERROR},
						},
						// Missing span id fails validation.
						{
							TraceId:           traceID,
							Name:              "broken",
							StartTimeUnixNano: uint64(start.UnixNano()),
							EndTimeUnixNano:   uint64(start.UnixNano()),
						},
					},
				},
			},
		},
	}

	spans, rejected := convertSpans(resourceSpans)
	if len(spans) != 1 || rejected != 1 {
		t.Fatalf("expected 1 accepted and 1 rejected, got %d accepted, %d rejected", len(spans), rejected)
	}
	s := spans[0]
	if s.TraceID != "0102030405060708090a0b0c0d0e0f10" || s.SpanID != "1112131415161718" {
		t.Errorf("unexpected ids: %s / %s", s.TraceID, s.SpanID)
	}
	if s.Kind != models.KindServer || s.Status != models.StatusError {
		t.Errorf("unexpected kind/status: %s / %s", s.Kind, s.Status)
	}
	if !s.IsRoot() {
		t.Error("expected a root span")
	}
	if s.Duration() != 50*time.Millisecond {
		t.Errorf("unexpected duration: %v", s.Duration())
	}
}
