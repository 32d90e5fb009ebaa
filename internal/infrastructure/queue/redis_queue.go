// Package queue implements the work queue carrying tasks from the queue
// bridge to the worker pool, backed by a Redis list.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ErrEmpty is returned by Pop when no task arrived within the wait window
var ErrEmpty = errors.New("queue empty")

// TaskEnvelope is the wire format of a queued task. TraceContext carries
// the W3C headers so worker spans join the producing trace.
type TaskEnvelope struct {
	Handle       string                 `json:"handle"`
	TaskName     string                 `json:"task_name"`
	Args         []string               `json:"args"`
	Kwargs       map[string]interface{} `json:"kwargs,omitempty"`
	TraceContext map[string]string      `json:"trace_context,omitempty"`
	EnqueuedAt   time.Time              `json:"enqueued_at"`
}

// Queue is a Redis-list-backed FIFO work queue
type Queue struct {
	client *redis.Client
	name   string
}

// New creates a queue on the given Redis list key
func New(client *redis.Client, name string) *Queue {
	return &Queue{client: client, name: name}
}

// Push enqueues a task and returns the queue handle assigned to it
func (q *Queue) Push(ctx context.Context, task *TaskEnvelope) (string, error) {
	if task.Handle == "" {
		task.Handle = uuid.NewString()
	}
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = time.Now().UTC()
	}

	data, err := json.Marshal(task)
	if err != nil {
		return "", fmt.Errorf("failed to marshal task: %w", err)
	}

	if err := q.client.LPush(ctx, q.name, data).Err(); err != nil {
		return "", fmt.Errorf("failed to push task: %w", err)
	}
	return task.Handle, nil
}

// Pop blocks up to wait for a task. Returns ErrEmpty on timeout so pollers
// can distinguish an idle queue from a broker failure.
func (q *Queue) Pop(ctx context.Context, wait time.Duration) (*TaskEnvelope, error) {
	res, err := q.client.BRPop(ctx, wait, q.name).Result()
	if err == redis.Nil {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pop task: %w", err)
	}
	// BRPop returns [key, value]
	if len(res) != 2 {
		return nil, fmt.Errorf("unexpected BRPOP reply length %d", len(res))
	}

	var task TaskEnvelope
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	return &task, nil
}

// Depth returns the current queue length
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.name).Result()
}
