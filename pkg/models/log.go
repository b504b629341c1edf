// Package models defines the core telemetry entities: log entries, metrics,
// spans and traces. Entities are constructed and validated at the ingestion
// boundary and are immutable once handed to a store.
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when a requested item is not found.
// Storage implementations wrap this error when an item doesn't exist.
var ErrNotFound = errors.New("not found")

// LogLevel is the severity of a log entry. Levels form a total order
// (trace < debug < info < warn < error < fatal) so queries can use
// relational comparisons like level >= 'warn'.
type LogLevel int

const (
	LevelTrace LogLevel = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// String returns the lowercase level name.
func (l LogLevel) String() string {
	switch l {
	case LevelTrace:
		return "trace"
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	case LevelFatal:
		return "fatal"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// ParseLevel converts a level name (any case) to a LogLevel.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	case "fatal":
		return LevelFatal, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// MarshalJSON encodes the level as its name.
func (l LogLevel) MarshalJSON() ([]byte, error) {
	return []byte(`"` + l.String() + `"`), nil
}

// UnmarshalJSON decodes a level name.
func (l *LogLevel) UnmarshalJSON(data []byte) error {
	parsed, err := ParseLevel(strings.Trim(string(data), `"`))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// LogEntry is a single log record.
type LogEntry struct {
	// Timestamp is when the event occurred. The ingestion layer defaults
	// it to the receive time when the producer omitted it.
	Timestamp time.Time `json:"timestamp"`

	// Level is the severity of the entry.
	Level LogLevel `json:"level"`

	// Message is the log body (required).
	Message string `json:"message"`

	// Service is the name of the emitting service (required).
	Service string `json:"service"`

	// Attributes holds open key-value metadata attached to the entry.
	Attributes map[string]AttrValue `json:"attributes,omitempty"`

	// TraceID and SpanID correlate the entry with a distributed trace.
	TraceID string `json:"trace_id,omitempty"`
	SpanID  string `json:"span_id,omitempty"`
}

// Validate checks the structural invariants of the entry. Stores do not
// call this; the ingestion boundary rejects invalid entries before insert.
func (e *LogEntry) Validate() error {
	if e.Message == "" {
		return errors.New("log entry message cannot be empty")
	}
	if e.Service == "" {
		return errors.New("log entry service cannot be empty")
	}
	return nil
}
