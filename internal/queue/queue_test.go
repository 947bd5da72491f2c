package queue

import (
	"errors"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestJob_EncodeDecode tests that a job survives the stream payload
func TestJob_EncodeDecode(t *testing.T) {
	job := Job{
		RunID:      "run-1",
		Sources:    []SourceRef{{Key: "runs/run-1/inputs/000", Name: "a.pdf", MIMEType: "application/pdf", Size: 10}},
		OutputName: "merged-document.pdf",
		Attempt:    2,
		EnqueuedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	b, err := job.Encode()
	require.NoError(t, err)

	got, err := DecodeJob(b)
	require.NoError(t, err)
	assert.True(t, job.EnqueuedAt.Equal(got.EnqueuedAt))
	got.EnqueuedAt = job.EnqueuedAt
	assert.Equal(t, job, *got)
}

// TestJob_Invalid tests payload validation
func TestJob_Invalid(t *testing.T) {
	_, err := Job{}.Encode()
	assert.True(t, IsInvalidJob(err))

	_, err = Job{RunID: "x"}.Encode()
	assert.True(t, IsInvalidJob(err))

	for _, payload := range []string{"", "{not json", `{"run_id":"x","sources":[]}`} {
		_, err := DecodeJob([]byte(payload))
		assert.True(t, IsInvalidJob(err), payload)
	}
	assert.False(t, IsInvalidJob(errors.New("other")))
}

// TestNewRedisQueue_Keys tests derived key names
func TestNewRedisQueue_Keys(t *testing.T) {
	q := newRedisQueue(redis.NewClient(&redis.Options{Addr: "localhost:0"}), "jobs:assembly", "workers", time.Second)
	defer q.client.Close()
	assert.Equal(t, "jobs:assembly:delayed", q.DelayedKey)
	assert.Equal(t, "jobs:assembly:dlq", q.DLQStream)
	assert.Equal(t, "jobs:assembly:cancelled", q.CancelKey)
	assert.Equal(t, "jobs:assembly:done:", q.IdemDoneKey)
}

// TestIsBusyGroupErr tests BUSYGROUP detection
func TestIsBusyGroupErr(t *testing.T) {
	assert.False(t, isBusyGroupErr(nil))
	assert.True(t, isBusyGroupErr(errors.New("BUSYGROUP Consumer Group name already exists")))
	assert.False(t, isBusyGroupErr(errors.New("ERR unknown command")))
}
