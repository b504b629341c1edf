// Package config loads server configuration from an optional YAML file
// with environment-variable overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the full server configuration.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	OTLP    OTLPConfig    `yaml:"otlp"`
	API     APIConfig     `yaml:"api"`
	Pprof   PprofConfig   `yaml:"pprof"`
}

// StorageConfig selects and configures the storage backend.
type StorageConfig struct {
	// Backend is "memory", "sqlite" or "clickhouse".
	Backend string `yaml:"backend"`

	// SQLitePath is the database file for the sqlite backend.
	SQLitePath string `yaml:"sqlite_path"`

	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

// ClickHouseConfig holds connection settings for the clickhouse backend.
type ClickHouseConfig struct {
	Addr     string `yaml:"addr"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// OTLPConfig holds the ingestion listener addresses.
type OTLPConfig struct {
	HTTPAddr string `yaml:"http_addr"`
	GRPCAddr string `yaml:"grpc_addr"`
}

// APIConfig holds the REST API listener address.
type APIConfig struct {
	Addr string `yaml:"addr"`
}

// PprofConfig holds the profiling listener address.
type PprofConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration used when no file or overrides
// are present.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Backend:    "memory",
			SQLitePath: "signaldb.db",
			ClickHouse: ClickHouseConfig{
				Addr:     "localhost:9000",
				Database: "default",
				Username: "default",
			},
		},
		OTLP: OTLPConfig{
			HTTPAddr: "0.0.0.0:4318",
			GRPCAddr: "0.0.0.0:4317",
		},
		API: APIConfig{
			Addr: "0.0.0.0:8080",
		},
		Pprof: PprofConfig{
			Addr: "localhost:6060",
		},
	}
}

// Load reads the YAML file at path (skipped when path is empty or the
// file doesn't exist), then applies environment overrides on top of
// the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config YAML: %w", err)
			}
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

// applyEnv overrides config values from the environment.
func applyEnv(cfg *Config) {
	setFromEnv(&cfg.Storage.Backend, "STORAGE_BACKEND")
	setFromEnv(&cfg.Storage.SQLitePath, "SQLITE_PATH")
	setFromEnv(&cfg.Storage.ClickHouse.Addr, "CLICKHOUSE_ADDR")
	setFromEnv(&cfg.Storage.ClickHouse.Database, "CLICKHOUSE_DATABASE")
	setFromEnv(&cfg.Storage.ClickHouse.Username, "CLICKHOUSE_USERNAME")
	setFromEnv(&cfg.Storage.ClickHouse.Password, "CLICKHOUSE_PASSWORD")
	setFromEnv(&cfg.OTLP.HTTPAddr, "OTLP_HTTP_ADDR")
	setFromEnv(&cfg.OTLP.GRPCAddr, "OTLP_GRPC_ADDR")
	setFromEnv(&cfg.API.Addr, "API_ADDR")
	setFromEnv(&cfg.Pprof.Addr, "PPROF_ADDR")
}

func setFromEnv(dst *string, key string) {
	if value := os.Getenv(key); value != "" {
		*dst = value
	}
}
