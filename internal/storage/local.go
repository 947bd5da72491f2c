package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// LocalStore keeps blobs under a directory, with metadata in a sidecar file.
type LocalStore struct {
	root   string
	sealer Sealer
}

// NewLocalStore creates the root directory if needed.
func NewLocalStore(root string, sealer Sealer) (*LocalStore, error) {
	if root == "" {
		root = "data"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &LocalStore{root: root, sealer: sealer}, nil
}

func (s *LocalStore) Backend() string { return "local" }

func (s *LocalStore) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return filepath.Join(s.root, clean), nil
}

func (s *LocalStore) Put(_ context.Context, key string, data []byte, meta Metadata) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	sealed, err := s.sealer.Seal(data)
	if err != nil {
		return fmt.Errorf("failed to encrypt data: %w", err)
	}
	if meta.Size == 0 {
		meta.Size = int64(len(data))
	}
	mb, err := json.Marshal(meta)
	if err != nil {
		return err
	}

	if err := os.WriteFile(p, sealed, 0o600); err != nil {
		return fmt.Errorf("write blob: %w", err)
	}
	if err := os.WriteFile(p+".meta.json", mb, 0o600); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	log.Debug().Str("key", key).Int("size", len(data)).Bool("encrypted", s.sealer.Enabled()).Msg("stored blob")
	return nil
}

func (s *LocalStore) Get(_ context.Context, key string) ([]byte, Metadata, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, Metadata{}, err
	}
	sealed, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, Metadata{}, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("read blob: %w", err)
	}
	data, err := s.sealer.Open(sealed)
	if err != nil {
		return nil, Metadata{}, err
	}

	var meta Metadata
	if mb, err := os.ReadFile(p + ".meta.json"); err == nil {
		_ = json.Unmarshal(mb, &meta)
	}
	return data, meta, nil
}

func (s *LocalStore) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		p, err := s.path(key)
		if err != nil {
			return err
		}
		for _, f := range []string{p, p + ".meta.json"} {
			if err := os.Remove(f); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("delete %s: %w", key, err)
			}
		}
	}
	return nil
}

// Ping checks the root directory is writable.
func (s *LocalStore) Ping(_ context.Context) error {
	f, err := os.CreateTemp(s.root, ".ping-")
	if err != nil {
		return fmt.Errorf("storage dir not writable: %w", err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
