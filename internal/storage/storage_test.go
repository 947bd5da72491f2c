package storage

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/pbkdf2"

	"github.com/local/pdfassembler/internal/config"
)

// TestSealer_RoundTrip tests GCM encryption and decryption
func TestSealer_RoundTrip(t *testing.T) {
	s := NewSealer("correct horse")
	plain := []byte("%PDF-1.4 merged output")

	sealed, err := s.Seal(plain)
	require.NoError(t, err)
	assert.Equal(t, magicGCM, string(sealed[:8]))
	assert.NotContains(t, string(sealed), "merged output")

	opened, err := s.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, plain, opened)

	_, err = NewSealer("wrong").Open(sealed)
	assert.ErrorIs(t, err, ErrDecrypt)
}

// TestSealer_Disabled tests pass-through without a password
func TestSealer_Disabled(t *testing.T) {
	var s Sealer
	assert.False(t, s.Enabled())
	out, err := s.Seal([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), out)
	out, err = s.Open([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), out)
}

// TestSealer_LegacyCBC tests reading blobs written in the legacy CBC format
func TestSealer_LegacyCBC(t *testing.T) {
	password := "legacy"
	plain := []byte("written by an older uploader")

	salt := make([]byte, 16)
	iv := make([]byte, 16)
	_, _ = io.ReadFull(rand.Reader, salt)
	_, _ = io.ReadFull(rand.Reader, iv)
	block, err := aes.NewCipher(pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, keySize, sha256.New))
	require.NoError(t, err)

	pad := aes.BlockSize - len(plain)%aes.BlockSize
	padded := append(append([]byte{}, plain...), bytes.Repeat([]byte{byte(pad)}, pad)...)
	ct := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ct, padded)

	encrypted := append(append(append([]byte{}, salt...), iv...), ct...)
	hash := sha256.Sum256(encrypted)
	length := make([]byte, 8)
	binary.BigEndian.PutUint64(length, uint64(len(encrypted)))
	blob := append(append(append([]byte(magicCBC), hash[:]...), length...), encrypted...)

	opened, err := NewSealer(password).Open(blob)
	require.NoError(t, err)
	assert.Equal(t, plain, opened)

	blob[len(blob)-1] ^= 0xff
	_, err = NewSealer(password).Open(blob)
	assert.ErrorIs(t, err, ErrDecrypt)
}

// TestSealer_Malformed tests rejection of unknown and short inputs
func TestSealer_Malformed(t *testing.T) {
	s := NewSealer("pw")
	_, err := s.Open([]byte("short"))
	assert.ErrorIs(t, err, ErrDecrypt)
	_, err = s.Open([]byte("NOTMAGIC and more bytes"))
	assert.ErrorIs(t, err, ErrDecrypt)
	_, err = s.Open([]byte(magicGCM + "tiny"))
	assert.ErrorIs(t, err, ErrDecrypt)
}

// TestLocalStore tests put, get and delete with encryption
func TestLocalStore(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir(), NewSealer("secret"))
	require.NoError(t, err)
	require.NoError(t, store.Ping(ctx))
	assert.Equal(t, "local", store.Backend())

	key := UploadKey("run-1", 0)
	meta := Metadata{Name: "a.pdf", ContentType: "application/pdf", Extra: map[string]string{"kind": "pdf"}}
	require.NoError(t, store.Put(ctx, key, []byte("%PDF-1.4"), meta))

	data, got, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4"), data)
	assert.Equal(t, "a.pdf", got.Name)
	assert.Equal(t, int64(8), got.Size)
	assert.Equal(t, "pdf", got.Extra["kind"])

	require.NoError(t, store.Delete(ctx, key, OutputKey("run-1")))
	_, _, err = store.Get(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestLocalStore_InvalidKeys tests that keys cannot escape the root
func TestLocalStore_InvalidKeys(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), Sealer{})
	require.NoError(t, err)
	for _, key := range []string{"../escape", "/etc/passwd", "", "."} {
		err := store.Put(context.Background(), key, []byte("x"), Metadata{})
		assert.Error(t, err, key)
	}
}

// TestKeys tests key layout
func TestKeys(t *testing.T) {
	assert.Equal(t, "runs/abc/inputs/007", UploadKey("abc", 7))
	assert.Equal(t, "runs/abc/output.pdf", OutputKey("abc"))
}

// TestOpen tests backend selection
func TestOpen(t *testing.T) {
	store, err := Open(context.Background(), config.StorageConfig{Backend: "local", LocalDir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, "local", store.Backend())

	_, err = Open(context.Background(), config.StorageConfig{Backend: "s3"})
	assert.Error(t, err)

	_, err = Open(context.Background(), config.StorageConfig{Backend: "ftp"})
	assert.Error(t, err)
}
