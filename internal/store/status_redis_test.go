package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestStatus_HashRoundTrip tests the redis hash encoding of a status
func TestStatus_HashRoundTrip(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	end := start.Add(3 * time.Second)
	st := Status{
		Status:   StatusSuccess,
		Progress: 100,
		Message:  "completed",
		Start:    &start,
		End:      &end,
		Metadata: map[string]any{"page_count": 4, "output_name": "merged-document.pdf"},
	}

	h := toHash(st)
	raw := make(map[string]string, len(h))
	for k, v := range h {
		raw[k] = fmt.Sprint(v)
	}

	got := fromHash(raw)
	assert.Equal(t, StatusSuccess, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, "completed", got.Message)
	require.NotNil(t, got.Start)
	require.NotNil(t, got.End)
	assert.True(t, start.Equal(*got.Start))
	assert.True(t, end.Equal(*got.End))
	assert.Equal(t, float64(4), got.Metadata["page_count"])
	assert.Equal(t, "merged-document.pdf", got.Metadata["output_name"])
}

// TestStatus_FromHashPartial tests tolerance of missing and malformed fields
func TestStatus_FromHashPartial(t *testing.T) {
	got := fromHash(map[string]string{"status": StatusQueued, "progress": "x", "start": "yesterday"})
	assert.Equal(t, StatusQueued, got.Status)
	assert.Equal(t, 0, got.Progress)
	assert.Nil(t, got.Start)
	assert.Nil(t, got.Metadata)
}

// TestStatus_Terminal tests terminal state detection
func TestStatus_Terminal(t *testing.T) {
	tests := []struct {
		status   string
		terminal bool
	}{
		{StatusQueued, false},
		{StatusProcessing, false},
		{StatusSuccess, true},
		{StatusFailed, true},
		{StatusCancelled, true},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			assert.Equal(t, tt.terminal, Status{Status: tt.status}.Terminal())
		})
	}
}

// TestRedisStatus_Key tests the key layout
func TestRedisStatus_Key(t *testing.T) {
	s := NewRedisStatusFromClient(redis.NewClient(&redis.Options{Addr: "localhost:0"}), time.Hour)
	defer s.Close()
	assert.Equal(t, "run:abc:status", s.key("abc"))
}

// TestRedisStatus_SetGet tests storage, overwrite and expiry of run status
func TestRedisStatus_SetGet(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := NewRedisStatus("redis://"+mr.Addr(), time.Hour)
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()
	require.NoError(t, s.Ping(ctx))

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	start := time.Now().UTC()
	require.NoError(t, s.Set(ctx, "r1", Status{
		Status:   StatusProcessing,
		Progress: 45,
		Message:  "processed 1 of 2",
		Start:    &start,
		Metadata: map[string]any{"total_sources": 2},
	}))

	got, ok, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StatusProcessing, got.Status)
	assert.Equal(t, 45, got.Progress)
	require.NotNil(t, got.Start)
	assert.True(t, start.Equal(*got.Start))
	assert.Equal(t, float64(2), got.Metadata["total_sources"])
	assert.Equal(t, time.Hour, mr.TTL("run:r1:status"))

	// a later Set replaces every field, including ones it leaves empty
	require.NoError(t, s.Set(ctx, "r1", Status{Status: StatusFailed, Message: "blob not found"}))
	got, ok, err = s.Get(ctx, "r1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Nil(t, got.Start)
	assert.Nil(t, got.Metadata)

	mr.FastForward(2 * time.Hour)
	_, ok, err = s.Get(ctx, "r1")
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestRedisStatus_NoTTL tests that a zero ttl keeps the status
func TestRedisStatus_NoTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedisStatusFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), 0)
	defer s.Close()

	require.NoError(t, s.Set(context.Background(), "r2", Status{Status: StatusQueued}))
	assert.Equal(t, time.Duration(0), mr.TTL("run:r2:status"))
	assert.Equal(t, StatusQueued, mr.HGet("run:r2:status", "status"))
}
