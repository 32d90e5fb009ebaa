package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client, "test:tasks")
}

func TestPushAndPop(t *testing.T) {
	q := newTestQueue(t)

	handle, err := q.Push(context.Background(), &TaskEnvelope{
		TaskName: "process_credit_application",
		Args:     []string{"7d9f1a2b-0000-0000-0000-000000000001"},
		Kwargs:   map[string]interface{}{"triggered_by": "database_trigger"},
		TraceContext: map[string]string{
			"traceparent": "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
		},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, handle)

	task, err := q.Pop(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, handle, task.Handle)
	assert.Equal(t, "process_credit_application", task.TaskName)
	assert.Equal(t, []string{"7d9f1a2b-0000-0000-0000-000000000001"}, task.Args)
	assert.Equal(t, "database_trigger", task.Kwargs["triggered_by"])
	assert.Contains(t, task.TraceContext, "traceparent")
	assert.False(t, task.EnqueuedAt.IsZero())
}

func TestPopOrdering(t *testing.T) {
	q := newTestQueue(t)

	first, err := q.Push(context.Background(), &TaskEnvelope{TaskName: "process_credit_application", Args: []string{"a"}})
	require.NoError(t, err)
	second, err := q.Push(context.Background(), &TaskEnvelope{TaskName: "process_credit_application", Args: []string{"b"}})
	require.NoError(t, err)

	task, err := q.Pop(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, first, task.Handle, "queue must be FIFO")

	task, err = q.Pop(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, second, task.Handle)
}

func TestPopEmptyReturnsErrEmpty(t *testing.T) {
	q := newTestQueue(t)

	_, err := q.Pop(context.Background(), 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestDepth(t *testing.T) {
	q := newTestQueue(t)

	depth, err := q.Depth(context.Background())
	require.NoError(t, err)
	assert.Zero(t, depth)

	for i := 0; i < 3; i++ {
		_, err := q.Push(context.Background(), &TaskEnvelope{TaskName: "process_credit_application"})
		require.NoError(t, err)
	}

	depth, err = q.Depth(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 3, depth)
}
