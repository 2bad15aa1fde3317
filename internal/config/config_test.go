package config

import (
	"testing"
	"time"
)

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "INGEST_API_KEY", "MONGODB_URI", "DATABASE_NAME",
		"COLLECTION_NAME", "TEMP_DIR", "WORKER_COUNT", "CHUNK_SIZE_BYTES",
		"QUEUE_SIZE", "BULK_TIMEOUT_SECONDS",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.MongoURI != "mongodb://localhost:27017" {
		t.Errorf("MongoURI = %q", cfg.MongoURI)
	}
	if cfg.Database != "mongolog_analyzer" {
		t.Errorf("Database = %q", cfg.Database)
	}
	if cfg.Collection != "log_entries" {
		t.Errorf("Collection = %q", cfg.Collection)
	}
	if cfg.WorkerCount != 4 {
		t.Errorf("WorkerCount = %d, want 4", cfg.WorkerCount)
	}
	if cfg.ChunkSizeBytes != 16*1024*1024 {
		t.Errorf("ChunkSizeBytes = %d", cfg.ChunkSizeBytes)
	}
	if cfg.QueueSize != 100 {
		t.Errorf("QueueSize = %d, want 100", cfg.QueueSize)
	}
	if cfg.BulkTimeout != 120*time.Second {
		t.Errorf("BulkTimeout = %v, want 120s", cfg.BulkTimeout)
	}
	if cfg.APIKey != "" {
		t.Errorf("APIKey = %q, want empty default", cfg.APIKey)
	}
}

func TestLoadOverrides(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("WORKER_COUNT", "8")
	t.Setenv("BULK_TIMEOUT_SECONDS", "30")
	t.Setenv("INGEST_API_KEY", "secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != "9090" {
		t.Errorf("Port = %q, want 9090", cfg.Port)
	}
	if cfg.WorkerCount != 8 {
		t.Errorf("WorkerCount = %d, want 8", cfg.WorkerCount)
	}
	if cfg.BulkTimeout != 30*time.Second {
		t.Errorf("BulkTimeout = %v, want 30s", cfg.BulkTimeout)
	}
	if cfg.APIKey != "secret" {
		t.Errorf("APIKey = %q, want secret", cfg.APIKey)
	}
}

func TestLoadInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "non-numeric worker count", key: "WORKER_COUNT", value: "many"},
		{name: "zero worker count", key: "WORKER_COUNT", value: "0"},
		{name: "negative chunk size", key: "CHUNK_SIZE_BYTES", value: "-1"},
		{name: "non-numeric queue size", key: "QUEUE_SIZE", value: "x"},
		{name: "zero queue size", key: "QUEUE_SIZE", value: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearConfigEnv(t)
			t.Setenv(tt.key, tt.value)

			if _, err := Load(); err == nil {
				t.Errorf("Load() should fail with %s=%s", tt.key, tt.value)
			}
		})
	}
}
