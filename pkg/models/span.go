package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// SpanKind mirrors the OTLP span kind enum.
type SpanKind string

const (
	KindInternal SpanKind = "internal"
	KindServer   SpanKind = "server"
	KindClient   SpanKind = "client"
	KindProducer SpanKind = "producer"
	KindConsumer SpanKind = "consumer"
)

// SpanStatus is the terminal status of a span.
type SpanStatus string

const (
	StatusOK        SpanStatus = "ok"
	StatusError     SpanStatus = "error"
	StatusCancelled SpanStatus = "cancelled"
)

// ParseSpanKind converts a kind name (any case) to a SpanKind.
// Unrecognized names map to internal, matching OTLP's unspecified kind.
func ParseSpanKind(s string) SpanKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "server":
		return KindServer
	case "client":
		return KindClient
	case "producer":
		return KindProducer
	case "consumer":
		return KindConsumer
	default:
		return KindInternal
	}
}

// SpanEvent is a timestamped event attached to a span.
type SpanEvent struct {
	Name       string               `json:"name"`
	Timestamp  time.Time            `json:"timestamp"`
	Attributes map[string]AttrValue `json:"attributes,omitempty"`
}

// Span is a single timed operation within a trace.
type Span struct {
	// TraceID and SpanID identify the span (both required).
	TraceID string `json:"trace_id"`
	SpanID  string `json:"span_id"`

	// ParentSpanID is empty for root spans.
	ParentSpanID string `json:"parent_span_id,omitempty"`

	// Name is the operation name.
	Name string `json:"name"`

	// Service is the emitting service.
	Service string `json:"service"`

	// Kind and Status classify the span.
	Kind   SpanKind   `json:"kind"`
	Status SpanStatus `json:"status"`

	// StartTime and EndTime bound the operation; EndTime >= StartTime.
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	// Attributes holds open key-value metadata.
	Attributes map[string]AttrValue `json:"attributes,omitempty"`

	// Events are the span's timestamped events, in recording order.
	Events []SpanEvent `json:"events,omitempty"`
}

// IsRoot reports whether the span has no parent.
func (s *Span) IsRoot() bool {
	return s.ParentSpanID == ""
}

// Duration returns the span's own elapsed time.
func (s *Span) Duration() time.Duration {
	return s.EndTime.Sub(s.StartTime)
}

// Validate checks the structural invariants of the span.
func (s *Span) Validate() error {
	if s.TraceID == "" {
		return errors.New("span trace_id cannot be empty")
	}
	if s.SpanID == "" {
		return errors.New("span span_id cannot be empty")
	}
	if s.EndTime.Before(s.StartTime) {
		return fmt.Errorf("span end time %v before start time %v", s.EndTime, s.StartTime)
	}
	return nil
}
