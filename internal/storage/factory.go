package storage

import (
	"fmt"
	"strings"
)

// Backend names a storage backend implementation. Backend packages
// import this package for the store contracts, so the construction
// switch itself lives with the server wiring.
type Backend string

const (
	BackendMemory     Backend = "memory"
	BackendSQLite     Backend = "sqlite"
	BackendClickHouse Backend = "clickhouse"
)

// ParseBackend converts a backend name (any case) to a Backend.
func ParseBackend(s string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "memory":
		return BackendMemory, nil
	case "sqlite":
		return BackendSQLite, nil
	case "clickhouse":
		return BackendClickHouse, nil
	default:
		return "", fmt.Errorf("unknown storage backend: %s (supported: memory, sqlite, clickhouse)", s)
	}
}
