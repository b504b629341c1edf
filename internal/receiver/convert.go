package receiver

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/hklund/signaldb/pkg/models"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	logspb "go.opentelemetry.io/proto/otlp/logs/v1"
	metricspb "go.opentelemetry.io/proto/otlp/metrics/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
)

// The ingestion boundary owns entity validation: it defaults missing
// timestamps, maps OTLP enums onto the core's enums, and drops records
// that fail structural validation before they reach a store. Stores
// never see invalid entities.

// extractServiceName extracts the service.name attribute from an OTLP
// resource. Returns "unknown" if the service name is not found.
func extractServiceName(resource *resourcepb.Resource) string {
	if resource == nil {
		return "unknown"
	}
	for _, attr := range resource.Attributes {
		if attr.Key == "service.name" {
			if sv := attr.Value.GetStringValue(); sv != "" {
				return sv
			}
		}
	}
	return "unknown"
}

// convertAnyValue maps an OTLP AnyValue onto the closed attribute union.
// Structured values (lists, maps) are stringified.
func convertAnyValue(v *commonpb.AnyValue) models.AttrValue {
	if v == nil {
		return models.NullValue()
	}
	switch val := v.Value.(type) {
	case *commonpb.AnyValue_StringValue:
		return models.StringValue(val.StringValue)
	case *commonpb.AnyValue_IntValue:
		return models.IntValue(val.IntValue)
	case *commonpb.AnyValue_DoubleValue:
		return models.FloatValue(val.DoubleValue)
	case *commonpb.AnyValue_BoolValue:
		return models.BoolValue(val.BoolValue)
	default:
		return models.StringValue(fmt.Sprintf("%v", v))
	}
}

func convertAttributes(kvs []*commonpb.KeyValue) map[string]models.AttrValue {
	if len(kvs) == 0 {
		return nil
	}
	attrs := make(map[string]models.AttrValue, len(kvs))
	for _, kv := range kvs {
		attrs[kv.Key] = convertAnyValue(kv.Value)
	}
	return attrs
}

// convertSeverity maps an OTLP severity number (and text fallback) onto
// the core's level enum. OTLP groups numbers in bands of four per level.
func convertSeverity(num logspb.SeverityNumber, text string) models.LogLevel {
	if num != logspb.SeverityNumber_SEVERITY_NUMBER_UNSPECIFIED {
		switch {
		case num <= logspb.SeverityNumber_SEVERITY_NUMBER_TRACE4:
			return models.LevelTrace
		case num <= logspb.SeverityNumber_SEVERITY_NUMBER_DEBUG4:
			return models.LevelDebug
		case num <= logspb.SeverityNumber_SEVERITY_NUMBER_INFO4:
			return models.LevelInfo
		case num <= logspb.SeverityNumber_SEVERITY_NUMBER_WARN4:
			return models.LevelWarn
		case num <= logspb.SeverityNumber_SEVERITY_NUMBER_ERROR4:
			return models.LevelError
		default:
			return models.LevelFatal
		}
	}
	if level, err := models.ParseLevel(text); err == nil {
		return level
	}
	return models.LevelInfo
}

// extractLogBody extracts the string body from an AnyValue, stringifying
// structured bodies.
func extractLogBody(body *commonpb.AnyValue) string {
	if body == nil {
		return ""
	}
	if sv := body.GetStringValue(); sv != "" {
		return sv
	}
	return fmt.Sprintf("%v", body)
}

func idToString(id []byte) string {
	if len(id) == 0 {
		return ""
	}
	return hex.EncodeToString(id)
}

func nanoToTime(ns uint64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, int64(ns)).UTC()
}

// convertLogs maps OTLP resource logs onto log entries. Records failing
// validation are dropped; the rejected count feeds the OTLP partial
// success response.
func convertLogs(resourceLogs []*logspb.ResourceLogs) (entries []models.LogEntry, rejected int64) {
	now := time.Now().UTC()

	for _, rl := range resourceLogs {
		service := extractServiceName(rl.Resource)
		for _, sl := range rl.ScopeLogs {
			for _, record := range sl.LogRecords {
				entry := models.LogEntry{
					Timestamp:  nanoToTime(record.TimeUnixNano),
					Level:      convertSeverity(record.SeverityNumber, record.SeverityText),
					Message:    extractLogBody(record.Body),
					Service:    service,
					Attributes: convertAttributes(record.Attributes),
					TraceID:    idToString(record.TraceId),
					SpanID:     idToString(record.SpanId),
				}
				if entry.Timestamp.IsZero() {
					entry.Timestamp = now
				}
				if err := entry.Validate(); err != nil {
					rejected++
					continue
				}
				entries = append(entries, entry)
			}
		}
	}

	return entries, rejected
}

// convertMetrics maps OTLP resource metrics onto metric samples, one per
// data point. Sums become counters; exponential histograms and summaries
// are not stored.
func convertMetrics(resourceMetrics []*metricspb.ResourceMetrics) (metrics []models.Metric, rejected int64) {
	for _, rm := range resourceMetrics {
		for _, sm := range rm.ScopeMetrics {
			for _, m := range sm.Metrics {
				converted, dropped := convertMetric(m)
				metrics = append(metrics, converted...)
				rejected += dropped
			}
		}
	}
	return metrics, rejected
}

func convertMetric(m *metricspb.Metric) (metrics []models.Metric, rejected int64) {
	base := models.Metric{
		Name:        m.Name,
		Description: m.Description,
		Unit:        m.Unit,
	}

	appendScalar := func(metricType models.MetricType, dp *metricspb.NumberDataPoint) {
		metric := base
		metric.Type = metricType
		metric.Timestamp = nanoToTime(dp.TimeUnixNano)
		metric.Labels = labelMap(dp.Attributes)
		switch v := dp.Value.(type) {
		case *metricspb.NumberDataPoint_AsDouble:
			metric.Value = v.AsDouble
		case *metricspb.NumberDataPoint_AsInt:
			metric.Value = float64(v.AsInt)
		}
		if metric.Timestamp.IsZero() {
			metric.Timestamp = time.Now().UTC()
		}
		if err := metric.Validate(); err != nil {
			rejected++
			return
		}
		metrics = append(metrics, metric)
	}

	switch data := m.Data.(type) {
	case *metricspb.Metric_Gauge:
		for _, dp := range data.Gauge.DataPoints {
			appendScalar(models.MetricGauge, dp)
		}

	case *metricspb.Metric_Sum:
		for _, dp := range data.Sum.DataPoints {
			appendScalar(models.MetricCounter, dp)
		}

	case *metricspb.Metric_Histogram:
		for _, dp := range data.Histogram.DataPoints {
			metric := base
			metric.Type = models.MetricHistogram
			metric.Timestamp = nanoToTime(dp.TimeUnixNano)
			metric.Labels = labelMap(dp.Attributes)
			metric.Histogram = convertHistogram(dp)
			if metric.Timestamp.IsZero() {
				metric.Timestamp = time.Now().UTC()
			}
			if err := metric.Validate(); err != nil {
				rejected++
				continue
			}
			metrics = append(metrics, metric)
		}
	}

	return metrics, rejected
}

// convertHistogram turns OTLP per-bucket counts into the cumulative
// counts the core's histogram representation uses.
func convertHistogram(dp *metricspb.HistogramDataPoint) *models.HistogramData {
	hist := &models.HistogramData{
		Bounds: dp.ExplicitBounds,
		Count:  dp.Count,
	}
	if dp.Sum != nil {
		hist.Sum = *dp.Sum
	}

	var cumulative uint64
	hist.Counts = make([]uint64, len(dp.BucketCounts))
	for i, c := range dp.BucketCounts {
		cumulative += c
		hist.Counts[i] = cumulative
	}
	return hist
}

func labelMap(kvs []*commonpb.KeyValue) map[string]string {
	if len(kvs) == 0 {
		return nil
	}
	labels := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		labels[kv.Key] = convertAnyValue(kv.Value).String()
	}
	return labels
}

// convertSpans maps OTLP resource spans onto spans, dropping any that
// fail validation.
func convertSpans(resourceSpans []*tracepb.ResourceSpans) (spans []models.Span, rejected int64) {
	for _, rs := range resourceSpans {
		service := extractServiceName(rs.Resource)
		for _, ss := range rs.ScopeSpans {
			for _, span := range ss.Spans {
				converted := models.Span{
					TraceID:      idToString(span.TraceId),
					SpanID:       idToString(span.SpanId),
					ParentSpanID: idToString(span.ParentSpanId),
					Name:         span.Name,
					Service:      service,
					Kind:         convertSpanKind(span.Kind),
					Status:       convertSpanStatus(span.Status),
					StartTime:    nanoToTime(span.StartTimeUnixNano),
					EndTime:      nanoToTime(span.EndTimeUnixNano),
					Attributes:   convertAttributes(span.Attributes),
					Events:       convertEvents(span.Events),
				}
				if err := converted.Validate(); err != nil {
					rejected++
					continue
				}
				spans = append(spans, converted)
			}
		}
	}
	return spans, rejected
}

func convertSpanKind(kind tracepb.Span_SpanKind) models.SpanKind {
	switch kind {
	case tracepb.Span_SPAN_KIND_SERVER:
		return models.KindServer
	case tracepb.Span_SPAN_KIND_CLIENT:
		return models.KindClient
	case tracepb.Span_SPAN_KIND_PRODUCER:
		return models.KindProducer
	case tracepb.Span_SPAN_KIND_CONSUMER:
		return models.KindConsumer
	default:
		return models.KindInternal
	}
}

func convertSpanStatus(status *tracepb.Status) models.SpanStatus {
	if status != nil && status.Code == tracepb.Status_STATUS_CODE_ERROR {
		return models.StatusError
	}
	return models.StatusOK
}

func convertEvents(events []*tracepb.Span_Event) []models.SpanEvent {
	if len(events) == 0 {
		return nil
	}
	converted := make([]models.SpanEvent, 0, len(events))
	for _, ev := range events {
		converted = append(converted, models.SpanEvent{
			Name:       ev.Name,
			Timestamp:  nanoToTime(ev.TimeUnixNano),
			Attributes: convertAttributes(ev.Attributes),
		})
	}
	return converted
}
