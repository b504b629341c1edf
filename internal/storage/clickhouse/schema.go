package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const logsTableDDL = `
	CREATE TABLE IF NOT EXISTS logs (
		seq        UInt64,
		timestamp  DateTime64(9),
		level      Int8,
		message    String,
		service    LowCardinality(String),
		attributes String,
		trace_id   String,
		span_id    String
	) ENGINE = MergeTree()
	ORDER BY seq
`

const metricsTableDDL = `
	CREATE TABLE IF NOT EXISTS metrics (
		seq         UInt64,
		name        LowCardinality(String),
		type        LowCardinality(String),
		value       Float64,
		histogram   String,
		timestamp   DateTime64(9),
		labels      String,
		description String,
		unit        LowCardinality(String)
	) ENGINE = MergeTree()
	ORDER BY seq
`

const spansTableDDL = `
	CREATE TABLE IF NOT EXISTS spans (
		seq            UInt64,
		trace_id       String,
		span_id        String,
		parent_span_id String,
		name           LowCardinality(String),
		service        LowCardinality(String),
		kind           LowCardinality(String),
		status         LowCardinality(String),
		start_time     DateTime64(9),
		end_time       DateTime64(9),
		attributes     String,
		events         String
	) ENGINE = MergeTree()
	ORDER BY seq
`

// initializeSchema creates all required tables if they don't exist.
// The seq column carries the insertion sequence so queries can preserve
// the same pagination ordering as the reference store.
func initializeSchema(ctx context.Context, conn driver.Conn) error {
	tables := []struct {
		name string
		ddl  string
	}{
		{"logs", logsTableDDL},
		{"metrics", metricsTableDDL},
		{"spans", spansTableDDL},
	}

	for _, table := range tables {
		if err := conn.Exec(ctx, table.ddl); err != nil {
			return fmt.Errorf("creating table %s: %w", table.name, err)
		}
	}

	return nil
}
