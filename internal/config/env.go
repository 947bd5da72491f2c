package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
}

// AssemblyConfig controls the assembly engine.
type AssemblyConfig struct {
	RasterFallback bool
	RasterDPI      float64
	RasterQuality  int
	OptimizeOutput bool
	OutputName     string
	MaxFiles       int
	MaxUploadBytes int64
}

// ConverterConfig controls LibreOffice spreadsheet conversion.
type ConverterConfig struct {
	Enabled    bool
	Binary     string
	MaxWorkers int
	Timeout    time.Duration
}

// WorkerConfig defines worker behavior and limits.
type WorkerConfig struct {
	Enabled            bool
	Concurrency        int
	RunTimeout         time.Duration
	JobMaxAttempts     int
	RetryBaseDelay     time.Duration
	RetryJitter        time.Duration
	RetryBackoffFactor float64
	CancelPoll         time.Duration
}

// QueueConfig defines queue connectivity and names.
type QueueConfig struct {
	RedisURL     string
	Stream       string
	Group        string
	PollInterval time.Duration
	StatusTTL    time.Duration
}

// StorageConfig selects where uploads and merged documents are kept.
type StorageConfig struct {
	Backend       string // "local" or "s3"
	LocalDir      string
	Bucket        string
	Region        string
	Prefix        string
	EncryptionKey string
	// Static credentials and a custom endpoint for S3-compatible servers;
	// empty values fall back to the default AWS chain.
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// HTTPConfig holds the HTTP listener settings.
type HTTPConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// Config is the top-level configuration.
type Config struct {
	ServiceName string
	Logging     LoggingConfig
	Axiom       AxiomConfig
	Assembly    AssemblyConfig
	Converter   ConverterConfig
	Worker      WorkerConfig
	Queue       QueueConfig
	Storage     StorageConfig
	HTTP        HTTPConfig
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
	cfg := Config{
		ServiceName: getEnv("SERVICE_NAME", "pdfassembler"),
	}

	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", "logs/pdfassembler.log"),
		MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_" + cfg.ServiceName,
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
	}

	cfg.Assembly = AssemblyConfig{
		RasterFallback: parseBool(getEnv("RASTER_FALLBACK", "true")),
		RasterDPI:      parseFloat(getEnv("RASTER_DPI", "150"), 150),
		RasterQuality:  parseInt(getEnv("RASTER_JPEG_QUALITY", "85"), 85),
		OptimizeOutput: parseBool(getEnv("OPTIMIZE_OUTPUT", "false")),
		OutputName:     getEnv("OUTPUT_NAME", "merged-document.pdf"),
		MaxFiles:       parseInt(getEnv("MAX_FILES", "50"), 50),
		MaxUploadBytes: int64(parseInt(getEnv("MAX_UPLOAD_MB", "200"), 200)) << 20,
	}

	cfg.Converter = ConverterConfig{
		Enabled:    parseBool(getEnv("LIBREOFFICE_ENABLED", "true")),
		Binary:     getEnv("LIBREOFFICE_BIN", "libreoffice"),
		MaxWorkers: parseInt(getEnv("LIBREOFFICE_MAX_WORKERS", "2"), 2),
		Timeout:    parseDuration(getEnv("LIBREOFFICE_TIMEOUT", "180s"), 180*time.Second),
	}

	cfg.Worker = WorkerConfig{
		Enabled:            parseBool(getEnv("RUN_DISPATCHER", "true")),
		Concurrency:        parseInt(getEnv("WORKER_CONCURRENCY", "4"), 4),
		RunTimeout:         parseDuration(getEnv("RUN_TIMEOUT", "10m"), 10*time.Minute),
		JobMaxAttempts:     parseInt(getEnv("JOB_MAX_ATTEMPTS", "3"), 3),
		RetryBaseDelay:     parseDuration(getEnv("RETRY_BASE_DELAY", "2s"), 2*time.Second),
		RetryJitter:        parseDuration(getEnv("RETRY_JITTER", "200ms"), 200*time.Millisecond),
		RetryBackoffFactor: parseFloat(getEnv("RETRY_BACKOFF_FACTOR", "2.0"), 2.0),
		CancelPoll:         parseDuration(getEnv("CANCEL_POLL_INTERVAL", "500ms"), 500*time.Millisecond),
	}
	if cfg.Worker.Concurrency < 1 {
		cfg.Worker.Concurrency = 1
	}

	cfg.Queue = QueueConfig{
		RedisURL:     getEnv("REDIS_URL", "redis://localhost:6379"),
		Stream:       getEnv("QUEUE_STREAM", "jobs:assembly"),
		Group:        getEnv("QUEUE_GROUP", "workers:assembly"),
		PollInterval: parseDuration(getEnv("QUEUE_POLL_INTERVAL", "100ms"), 100*time.Millisecond),
		StatusTTL:    parseDuration(getEnv("STATUS_TTL", "168h"), 7*24*time.Hour),
	}

	cfg.Storage = StorageConfig{
		Backend:       strings.ToLower(getEnv("STORAGE_BACKEND", "local")),
		LocalDir:      getEnv("STORAGE_DIR", "data"),
		Bucket:        getEnv("S3_BUCKET", ""),
		Region:        getEnv("AWS_REGION", "us-east-1"),
		Prefix:        getEnv("S3_PREFIX", "assemble/"),
		EncryptionKey: getEnv("STORAGE_ENCRYPTION_KEY", ""),

		Endpoint:        getEnv("S3_ENDPOINT", ""),
		AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
	}

	cfg.HTTP = HTTPConfig{
		Addr:            getEnv("HTTP_ADDR", ":8080"),
		ShutdownTimeout: parseDuration(getEnv("SHUTDOWN_TIMEOUT", "30s"), 30*time.Second),
	}

	return cfg
}

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseFloat(s string, def float64) float64 {
	if s == "" {
		return def
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}
