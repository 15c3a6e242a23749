package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryJobQueueRoundTrip(t *testing.T) {
	q := NewMemoryJobQueue(4)
	defer q.Close()

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, "job-1"))
	require.NoError(t, q.Enqueue(ctx, "job-2"))
	assert.Equal(t, 2, q.Size())

	id, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "job-1", id)

	id, err = q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "job-2", id)
}

func TestMemoryJobQueueRejectsEmptyID(t *testing.T) {
	q := NewMemoryJobQueue(1)
	defer q.Close()
	require.Error(t, q.Enqueue(context.Background(), ""))
}

func TestMemoryJobQueueFullFailsFast(t *testing.T) {
	q := NewMemoryJobQueue(1)
	defer q.Close()

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, "job-1"))
	err := q.Enqueue(ctx, "job-2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "full")
}

func TestMemoryJobQueueDequeueHonoursContext(t *testing.T) {
	q := NewMemoryJobQueue(1)
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := q.Dequeue(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemoryJobQueueClosedRejectsOperations(t *testing.T) {
	q := NewMemoryJobQueue(1)
	require.NoError(t, q.Close())
	require.Error(t, q.Enqueue(context.Background(), "job-1"))
	require.NoError(t, q.Close()) // 幂等
}
