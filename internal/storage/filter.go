package storage

import (
	"time"

	"github.com/hklund/signaldb/pkg/models"
)

// MatchTrace applies the trace filter contract shared by every backend:
// exact service match against any span, inclusive millisecond duration
// bounds, and a start-inclusive end-exclusive time range over the trace's
// earliest span start. Trace-level predicates operate on derived values,
// so backends filter after assembly rather than pushing them into storage.
func MatchTrace(t *models.Trace, q TraceQuery) bool {
	if q.Service != "" && !traceHasService(t, q.Service) {
		return false
	}

	durationMs := t.Duration().Milliseconds()
	if q.MinDurationMs > 0 && durationMs < q.MinDurationMs {
		return false
	}
	if q.MaxDurationMs > 0 && durationMs > q.MaxDurationMs {
		return false
	}

	start := TraceStart(t)
	if !q.Start.IsZero() && start.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && !start.Before(q.End) {
		return false
	}
	return true
}

// TraceStart returns the earliest span start time in t.
func TraceStart(t *models.Trace) time.Time {
	var min time.Time
	for i, span := range t.Spans {
		if i == 0 || span.StartTime.Before(min) {
			min = span.StartTime
		}
	}
	return min
}

// traceHasService reports whether any span in t belongs to service
// (exact match, not substring).
func traceHasService(t *models.Trace, service string) bool {
	for _, span := range t.Spans {
		if span.Service == service {
			return true
		}
	}
	return false
}

// GroupSpans groups spans into assembled traces, preserving the
// first-seen order of trace IDs.
func GroupSpans(spans []models.Span) []*models.Trace {
	grouped := make(map[string][]models.Span)
	order := make([]string, 0)
	for _, span := range spans {
		if _, seen := grouped[span.TraceID]; !seen {
			order = append(order, span.TraceID)
		}
		grouped[span.TraceID] = append(grouped[span.TraceID], span)
	}

	traces := make([]*models.Trace, 0, len(order))
	for _, id := range order {
		traces = append(traces, models.AssembleTrace(grouped[id]))
	}
	return traces
}
