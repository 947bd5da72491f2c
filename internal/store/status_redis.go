package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Run states as reported to clients.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusSuccess    = "success"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
)

// Status is the client-visible state of an assembly run.
type Status struct {
	Status   string         `json:"status"`
	Progress int            `json:"progress"`
	Message  string         `json:"message"`
	Start    *time.Time     `json:"start_time,omitempty"`
	End      *time.Time     `json:"end_time,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Terminal reports whether the run will not change state again.
func (s Status) Terminal() bool {
	switch s.Status {
	case StatusSuccess, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

type RedisStatus struct {
	client *redis.Client
	keyNS  string
	ttl    time.Duration
}

func NewRedisStatus(redisURL string, ttl time.Duration) (*RedisStatus, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	c := redis.NewClient(opt)
	if err := c.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	return NewRedisStatusFromClient(c, ttl), nil
}

// NewRedisStatusFromClient shares an existing connection pool.
func NewRedisStatusFromClient(c *redis.Client, ttl time.Duration) *RedisStatus {
	return &RedisStatus{client: c, keyNS: "run", ttl: ttl}
}

func (s *RedisStatus) key(runID string) string { return fmt.Sprintf("%s:%s:status", s.keyNS, runID) }

// Set overwrites the status of a run and refreshes its expiry.
func (s *RedisStatus) Set(ctx context.Context, runID string, st Status) error {
	k := s.key(runID)
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, k)
	pipe.HSet(ctx, k, toHash(st))
	if s.ttl > 0 {
		pipe.Expire(ctx, k, s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStatus) Get(ctx context.Context, runID string) (Status, bool, error) {
	res, err := s.client.HGetAll(ctx, s.key(runID)).Result()
	if err != nil {
		return Status{}, false, err
	}
	if len(res) == 0 {
		return Status{}, false, nil
	}
	return fromHash(res), true, nil
}

func (s *RedisStatus) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

func (s *RedisStatus) Close() error { return s.client.Close() }

// Client returns the underlying Redis client
func (s *RedisStatus) Client() *redis.Client { return s.client }

func toHash(st Status) map[string]any {
	m := map[string]any{
		"status":   st.Status,
		"progress": st.Progress,
		"message":  st.Message,
	}
	if st.Start != nil {
		m["start"] = st.Start.Format(time.RFC3339Nano)
	}
	if st.End != nil {
		m["end"] = st.End.Format(time.RFC3339Nano)
	}
	if st.Metadata != nil {
		b, _ := json.Marshal(st.Metadata)
		m["metadata"] = string(b)
	}
	return m
}

func fromHash(res map[string]string) Status {
	st := Status{Status: res["status"], Message: res["message"]}
	if p, err := strconv.Atoi(res["progress"]); err == nil {
		st.Progress = p
	}
	if v := res["start"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			st.Start = &t
		}
	}
	if v := res["end"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			st.End = &t
		}
	}
	if v := res["metadata"]; v != "" {
		_ = json.Unmarshal([]byte(v), &st.Metadata)
	}
	return st
}
