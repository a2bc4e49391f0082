package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/df07/go-batch-renderer/pkg/config"
)

// Status is the lifecycle state of a render job
type Status string

const (
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// EventsChannel is the Redis channel that receives every status change
const EventsChannel = "render:events"

// statusTTL bounds how long a finished job's status is kept
const statusTTL = 7 * 24 * time.Hour

// Event is published on every status change
type Event struct {
	ID      string    `json:"id"`
	Mode    string    `json:"mode"`
	Status  Status    `json:"status"`
	Outputs []string  `json:"outputs,omitempty"`
	Error   string    `json:"error,omitempty"`
	Time    time.Time `json:"time"`
}

// Reporter records job progress for the rest of the pipeline
type Reporter interface {
	Report(ctx context.Context, ev Event) error
	Close() error
}

// StatusKey is the Redis key holding a job's latest status
func StatusKey(id string) string {
	return "render:status:" + id
}

// RedisReporter stores and publishes status events in Redis
type RedisReporter struct {
	client *redis.Client
}

// NewRedisReporter connects to Redis and checks the connection
func NewRedisReporter(ctx context.Context, cfg config.RedisConfig) (*RedisReporter, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       0,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to Redis: %w", err)
	}
	return &RedisReporter{client: client}, nil
}

// Report sets the status key and publishes the event
func (r *RedisReporter) Report(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	ttl := time.Duration(0)
	if ev.Status != StatusRunning {
		ttl = statusTTL
	}
	if err := r.client.Set(ctx, StatusKey(ev.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("storing status for %s: %w", ev.ID, err)
	}
	if err := r.client.Publish(ctx, EventsChannel, data).Err(); err != nil {
		return fmt.Errorf("publishing status for %s: %w", ev.ID, err)
	}
	return nil
}

// Close releases the Redis connection
func (r *RedisReporter) Close() error {
	return r.client.Close()
}

// NopReporter discards every event
type NopReporter struct{}

func (NopReporter) Report(ctx context.Context, ev Event) error { return nil }
func (NopReporter) Close() error                               { return nil }

// NewEvent builds an event stamped with the current time
func NewEvent(id, mode string, status Status, outputs []string, err error) Event {
	ev := Event{ID: id, Mode: mode, Status: status, Outputs: outputs, Time: time.Now().UTC()}
	if err != nil {
		ev.Error = err.Error()
	}
	return ev
}
