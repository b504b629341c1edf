package models

import (
	"sort"
	"time"
)

// Trace is the set of spans sharing one trace ID. Everything beyond the
// span collection itself is derived on access: traces are never persisted
// as their own records, they are assembled from spans each time.
type Trace struct {
	TraceID string `json:"trace_id"`
	Spans   []Span `json:"spans"`
}

// AssembleTrace groups a list of spans, already known to share one trace ID,
// into a Trace. The trace ID is adopted from the first span. Returns nil for
// an empty span list.
func AssembleTrace(spans []Span) *Trace {
	if len(spans) == 0 {
		return nil
	}
	return &Trace{
		TraceID: spans[0].TraceID,
		Spans:   spans,
	}
}

// RootSpan returns the first span with no parent, or nil when every span
// has a parent. A missing root is valid for partial traces.
func (t *Trace) RootSpan() *Span {
	for i := range t.Spans {
		if t.Spans[i].IsRoot() {
			return &t.Spans[i]
		}
	}
	return nil
}

// Duration is the wall-clock extent of the whole trace:
// max end time minus min start time over all spans.
func (t *Trace) Duration() time.Duration {
	if len(t.Spans) == 0 {
		return 0
	}
	minStart := t.Spans[0].StartTime
	maxEnd := t.Spans[0].EndTime
	for _, s := range t.Spans[1:] {
		if s.StartTime.Before(minStart) {
			minStart = s.StartTime
		}
		if s.EndTime.After(maxEnd) {
			maxEnd = s.EndTime
		}
	}
	return maxEnd.Sub(minStart)
}

// SpanCount returns the number of spans in the trace.
func (t *Trace) SpanCount() int {
	return len(t.Spans)
}

// Services returns the sorted, de-duplicated set of services that
// participated in the trace.
func (t *Trace) Services() []string {
	seen := make(map[string]struct{}, len(t.Spans))
	for _, s := range t.Spans {
		seen[s.Service] = struct{}{}
	}

	services := make([]string, 0, len(seen))
	for svc := range seen {
		services = append(services, svc)
	}
	sort.Strings(services)
	return services
}
