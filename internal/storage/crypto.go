package storage

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/pbkdf2"
)

const (
	magicGCM = "GCM3NCR0"
	magicCBC = "3NCR0PTD"

	saltSize         = 16
	gcmNonceSize     = 12
	pbkdf2Iterations = 100000
	keySize          = 32
)

// ErrDecrypt is returned when a sealed blob cannot be opened.
var ErrDecrypt = errors.New("decryption failed")

// Sealer encrypts blobs at rest with AES-256-GCM under a PBKDF2 derived key.
// A zero Sealer (empty password) passes data through unchanged.
type Sealer struct {
	password string
}

// NewSealer returns a sealer for password.
func NewSealer(password string) Sealer { return Sealer{password: password} }

// Enabled reports whether blobs are encrypted.
func (s Sealer) Enabled() bool { return s.password != "" }

func (s Sealer) key(salt []byte) []byte {
	return pbkdf2.Key([]byte(s.password), salt, pbkdf2Iterations, keySize, sha256.New)
}

// Seal encrypts data.
// Format: magic(8) + salt(16) + nonce(12) + ciphertext + tag(16)
func (s Sealer) Seal(data []byte) ([]byte, error) {
	if !s.Enabled() {
		return data, nil
	}

	salt := make([]byte, saltSize)
	nonce := make([]byte, gcmNonceSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	gcm, err := newGCM(s.key(salt))
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(magicGCM)+saltSize+gcmNonceSize+len(data)+gcm.Overhead())
	out = append(out, magicGCM...)
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, data, nil), nil
}

// Open decrypts a blob written by Seal. Blobs in the legacy CBC format are
// also accepted. With encryption disabled data is returned unchanged.
func (s Sealer) Open(data []byte) ([]byte, error) {
	if !s.Enabled() {
		return data, nil
	}
	if len(data) < 8 {
		return nil, fmt.Errorf("%w: data too short: %d bytes", ErrDecrypt, len(data))
	}

	switch string(data[:8]) {
	case magicGCM:
		return s.openGCM(data)
	case magicCBC:
		log.Debug().Msg("detected legacy CBC format encryption")
		return s.openCBC(data)
	default:
		return nil, fmt.Errorf("%w: unknown format", ErrDecrypt)
	}
}

func (s Sealer) openGCM(data []byte) ([]byte, error) {
	if len(data) < 8+saltSize+gcmNonceSize+16 {
		return nil, fmt.Errorf("%w: GCM data too short: %d bytes", ErrDecrypt, len(data))
	}
	salt := data[8 : 8+saltSize]
	nonce := data[8+saltSize : 8+saltSize+gcmNonceSize]
	ciphertext := data[8+saltSize+gcmNonceSize:]

	gcm, err := newGCM(s.key(salt))
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return plaintext, nil
}

// openCBC reads magic(8) + hash(32) + length(8) + salt(16) + iv(16) + ciphertext
func (s Sealer) openCBC(data []byte) ([]byte, error) {
	if len(data) < 8+32+8+16+16 {
		return nil, fmt.Errorf("%w: CBC data too short: %d bytes", ErrDecrypt, len(data))
	}
	storedHash := data[8:40]
	length := binary.BigEndian.Uint64(data[40:48])
	encrypted := data[48:]
	if uint64(len(encrypted)) != length {
		return nil, fmt.Errorf("%w: length mismatch: expected %d, got %d", ErrDecrypt, length, len(encrypted))
	}
	sum := sha256.Sum256(encrypted)
	if !bytes.Equal(storedHash, sum[:]) {
		return nil, fmt.Errorf("%w: hash verification failed", ErrDecrypt)
	}

	salt := encrypted[:16]
	iv := encrypted[16:32]
	ciphertext := encrypted[32:]
	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext is not a multiple of block size", ErrDecrypt)
	}

	block, err := aes.NewCipher(s.key(salt))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)
	return removePKCS7Padding(plaintext)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

func removePKCS7Padding(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty data", ErrDecrypt)
	}
	n := int(data[len(data)-1])
	if n == 0 || n > aes.BlockSize || n > len(data) {
		return nil, fmt.Errorf("%w: invalid padding length: %d", ErrDecrypt, n)
	}
	for i := len(data) - n; i < len(data); i++ {
		if data[i] != byte(n) {
			return nil, fmt.Errorf("%w: invalid padding at position %d", ErrDecrypt, i)
		}
	}
	return data[:len(data)-n], nil
}
