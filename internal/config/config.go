package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	// this will automatically load your .env file:
	_ "github.com/joho/godotenv/autoload"
)

// Config holds the server configuration, read from environment variables.
type Config struct {
	Port       string
	APIKey     string
	MongoURI   string
	Database   string
	Collection string

	// TempDir is where uploaded payloads are spooled before processing.
	TempDir string

	// WorkerCount bounds how many files of a batch are processed concurrently.
	WorkerCount int

	// ChunkSizeBytes bounds a single read from a (decompressed) byte stream.
	ChunkSizeBytes int

	// BulkTimeout bounds the bulk insert of one batch.
	BulkTimeout time.Duration

	// QueueSize bounds how many batches may wait for the worker loop.
	QueueSize int
}

// Load reads configuration from the environment, applying defaults for
// anything unset. It fails only on values that are set but unparsable.
func Load() (*Config, error) {
	cfg := &Config{
		Port:       getEnv("PORT", "8080"),
		APIKey:     os.Getenv("INGEST_API_KEY"),
		MongoURI:   getEnv("MONGODB_URI", "mongodb://localhost:27017"),
		Database:   getEnv("DATABASE_NAME", "mongolog_analyzer"),
		Collection: getEnv("COLLECTION_NAME", "log_entries"),
		TempDir:    getEnv("TEMP_DIR", os.TempDir()),
	}

	var err error
	if cfg.WorkerCount, err = getEnvInt("WORKER_COUNT", 4); err != nil {
		return nil, err
	}
	if cfg.ChunkSizeBytes, err = getEnvInt("CHUNK_SIZE_BYTES", 16*1024*1024); err != nil {
		return nil, err
	}
	if cfg.QueueSize, err = getEnvInt("QUEUE_SIZE", 100); err != nil {
		return nil, err
	}

	bulkTimeoutSec, err := getEnvInt("BULK_TIMEOUT_SECONDS", 120)
	if err != nil {
		return nil, err
	}
	cfg.BulkTimeout = time.Duration(bulkTimeoutSec) * time.Second

	if cfg.WorkerCount < 1 {
		return nil, fmt.Errorf("WORKER_COUNT must be >= 1, got %d", cfg.WorkerCount)
	}
	if cfg.ChunkSizeBytes < 1 {
		return nil, fmt.Errorf("CHUNK_SIZE_BYTES must be >= 1, got %d", cfg.ChunkSizeBytes)
	}
	if cfg.QueueSize < 1 {
		return nil, fmt.Errorf("QUEUE_SIZE must be >= 1, got %d", cfg.QueueSize)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
