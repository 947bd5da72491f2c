package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/local/pdfassembler/internal/config"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("blob not found")

// Metadata travels with a stored blob.
type Metadata struct {
	Name        string            `json:"name"`
	ContentType string            `json:"content_type"`
	Size        int64             `json:"size"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// BlobStore keeps uploaded sources and merged documents.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, meta Metadata) error
	Get(ctx context.Context, key string) ([]byte, Metadata, error)
	Delete(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
	Backend() string
}

// UploadKey is the key of the i-th uploaded source of a run.
func UploadKey(runID string, i int) string { return path.Join("runs", runID, "inputs", fmt.Sprintf("%03d", i)) }

// OutputKey is the key of the merged document of a run.
func OutputKey(runID string) string { return path.Join("runs", runID, "output.pdf") }

// Open builds the configured store.
func Open(ctx context.Context, cfg config.StorageConfig) (BlobStore, error) {
	sealer := NewSealer(cfg.EncryptionKey)
	switch strings.ToLower(cfg.Backend) {
	case "", "local":
		return NewLocalStore(cfg.LocalDir, sealer)
	case "s3":
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("s3 storage requires S3_BUCKET")
		}
		return NewS3Store(ctx, S3Options{
			Bucket:          cfg.Bucket,
			Region:          cfg.Region,
			Prefix:          cfg.Prefix,
			Endpoint:        cfg.Endpoint,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
		}, sealer)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
