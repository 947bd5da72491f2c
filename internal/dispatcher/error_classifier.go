package dispatcher

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/local/pdfassembler/internal/assembly"
	"github.com/local/pdfassembler/internal/queue"
	"github.com/local/pdfassembler/internal/storage"
)

// isTransientError checks if a failed job is worth another attempt
func isTransientError(err error) bool {
	if err == nil || isFatalError(err) {
		return false
	}

	// Run timeout
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// Blob store hiccups
	var storageErr *StorageError
	if errors.As(err, &storageErr) {
		return true
	}

	// Network errors (connection issues, timeouts)
	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "network") ||
		strings.Contains(errStr, "eof") {
		return true
	}

	return false
}

// isFatalError checks if error is fatal and should not be retried
func isFatalError(err error) bool {
	if err == nil {
		return false
	}

	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return true
	}

	switch {
	case errors.Is(err, ErrCancelled),
		errors.Is(err, storage.ErrNotFound),
		errors.Is(err, storage.ErrDecrypt),
		errors.Is(err, assembly.ErrEmptyAssembly),
		errors.Is(err, assembly.ErrSerialization),
		errors.Is(err, assembly.ErrUnsupportedKind),
		queue.IsInvalidJob(err):
		return true
	}
	return false
}

// retryDelay returns the backoff before the given attempt (2 = first retry).
func retryDelay(attempt int, base, jitter time.Duration, factor float64) time.Duration {
	if attempt < 2 {
		attempt = 2
	}
	if factor < 1 {
		factor = 1
	}
	d := time.Duration(float64(base) * math.Pow(factor, float64(attempt-2)))
	if jitter > 0 {
		d += time.Duration(rand.Int64N(int64(jitter)))
	}
	return d
}
