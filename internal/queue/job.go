package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SourceRef points at one uploaded file of a run, in queue order.
type SourceRef struct {
	Key      string `json:"key"`
	Name     string `json:"name"`
	MIMEType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

// Job is one assembly run waiting for a worker.
type Job struct {
	RunID      string      `json:"run_id"`
	Sources    []SourceRef `json:"sources"`
	OutputName string      `json:"output_name"`
	Attempt    int         `json:"attempt"`
	EnqueuedAt time.Time   `json:"enqueued_at"`
}

var errInvalidJob = errors.New("invalid job")

// Encode marshals the job for the stream.
func (j Job) Encode() ([]byte, error) {
	if err := j.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(j)
}

// Validate checks the fields every worker relies on.
func (j Job) Validate() error {
	if j.RunID == "" {
		return fmt.Errorf("%w: missing run_id", errInvalidJob)
	}
	if len(j.Sources) == 0 {
		return fmt.Errorf("%w: run %s has no sources", errInvalidJob, j.RunID)
	}
	return nil
}

// DecodeJob parses a stream payload.
func DecodeJob(data []byte) (*Job, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", errInvalidJob)
	}
	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidJob, err)
	}
	if err := j.Validate(); err != nil {
		return nil, err
	}
	return &j, nil
}

// IsInvalidJob reports whether err came from a malformed payload.
func IsInvalidJob(err error) bool { return errors.Is(err, errInvalidJob) }
