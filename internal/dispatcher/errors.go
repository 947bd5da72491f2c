package dispatcher

import (
	"errors"
	"fmt"
)

// ErrCancelled is the cause attached to a run context when the run was
// cancelled through the queue.
var ErrCancelled = errors.New("run cancelled")

// StorageError represents a blob store failure while loading sources or
// storing the merged document.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// ValidationError represents a fatal job error
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s", e.Message)
}
