// Package main is the entry point for the signaldb server.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hklund/signaldb/internal/api"
	"github.com/hklund/signaldb/internal/config"
	"github.com/hklund/signaldb/internal/receiver"
	"github.com/hklund/signaldb/internal/storage"
	"github.com/hklund/signaldb/internal/storage/clickhouse"
	"github.com/hklund/signaldb/internal/storage/memory"
	"github.com/hklund/signaldb/internal/storage/sqlite"
)

func main() {
	log.Println("Starting signaldb...")

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/server.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	store, err := newStore(cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to create storage: %v", err)
	}

	// OTLP receivers and REST API
	httpReceiver := receiver.NewHTTPReceiver(cfg.OTLP.HTTPAddr, store)
	grpcReceiver := receiver.NewGRPCReceiver(cfg.OTLP.GRPCAddr, store)
	apiServer := api.NewServer(cfg.API.Addr, store)

	// Start pprof server for profiling (separate port)
	go func() {
		log.Printf("Starting pprof server on http://%s/debug/pprof", cfg.Pprof.Addr)
		if err := http.ListenAndServe(cfg.Pprof.Addr, nil); err != nil {
			log.Printf("pprof server error: %v", err)
		}
	}()

	// Start servers in goroutines
	errChan := make(chan error, 3)

	go func() {
		log.Printf("Starting OTLP HTTP receiver on %s", cfg.OTLP.HTTPAddr)
		if err := httpReceiver.Start(); err != nil {
			errChan <- fmt.Errorf("OTLP HTTP receiver error: %w", err)
		}
	}()

	go func() {
		log.Printf("Starting OTLP gRPC receiver on %s", cfg.OTLP.GRPCAddr)
		if err := grpcReceiver.Start(); err != nil {
			errChan <- fmt.Errorf("OTLP gRPC receiver error: %w", err)
		}
	}()

	go func() {
		log.Printf("Starting REST API server on %s", cfg.API.Addr)
		if err := apiServer.Start(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	log.Println("OTLP endpoints:")
	log.Printf("  - HTTP: http://%s/v1/{logs,metrics,traces}", cfg.OTLP.HTTPAddr)
	log.Printf("  - gRPC: %s", cfg.OTLP.GRPCAddr)
	log.Println("API endpoints:")
	log.Printf("  - Logs: http://%s/api/v1/logs", cfg.API.Addr)
	log.Printf("  - Metrics: http://%s/api/v1/metrics", cfg.API.Addr)
	log.Printf("  - Traces: http://%s/api/v1/traces", cfg.API.Addr)
	log.Printf("  - Query: http://%s/api/v1/query", cfg.API.Addr)
	log.Printf("  - Health: http://%s/health", cfg.API.Addr)

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		log.Fatalf("Server error: %v", err)
	case sig := <-sigChan:
		log.Printf("Received signal: %v, shutting down...", sig)
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log.Println("Shutting down servers...")
	if err := httpReceiver.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error shutting down OTLP HTTP receiver: %v", err)
	}
	if err := grpcReceiver.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error shutting down OTLP gRPC receiver: %v", err)
	}
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error shutting down API server: %v", err)
	}

	log.Println("Closing storage...")
	if err := store.Close(); err != nil {
		log.Printf("Error closing storage: %v", err)
	}

	log.Println("Shutdown complete")
}

// newStore constructs the configured storage backend.
func newStore(cfg config.StorageConfig) (storage.Store, error) {
	backend, err := storage.ParseBackend(cfg.Backend)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	switch backend {
	case storage.BackendMemory:
		log.Println("Using in-memory storage")
		return memory.New(), nil

	case storage.BackendSQLite:
		log.Printf("Using SQLite storage: %s", cfg.SQLitePath)
		return sqlite.New(sqlite.Config{DBPath: cfg.SQLitePath}, logger)

	case storage.BackendClickHouse:
		log.Printf("Using ClickHouse storage: %s", cfg.ClickHouse.Addr)
		chCfg := clickhouse.DefaultConfig()
		chCfg.Addr = cfg.ClickHouse.Addr
		chCfg.Database = cfg.ClickHouse.Database
		chCfg.Username = cfg.ClickHouse.Username
		chCfg.Password = cfg.ClickHouse.Password

		store, err := clickhouse.NewStore(context.Background(), chCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("creating ClickHouse store: %w", err)
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}
