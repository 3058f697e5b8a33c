package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/warriorguo/flowexec/types"
)

func TestInMemoryQueue(t *testing.T) {
	ctx := context.Background()
	q := NewInMemoryQueue(4)

	task, err := q.Dequeue(ctx, 0)
	assert.Nil(t, err)
	assert.Nil(t, task)

	assert.Nil(t, q.Enqueue(ctx, &Task{RunID: "r1"}))
	assert.Nil(t, q.Enqueue(ctx, &Task{RunID: "r2"}))
	assert.Equal(t, 2, q.Len())

	task, err = q.Dequeue(ctx, 0)
	assert.Nil(t, err)
	assert.Equal(t, "r1", task.RunID)

	task, err = q.Dequeue(ctx, 10*time.Millisecond)
	assert.Nil(t, err)
	assert.Equal(t, "r2", task.RunID)

	task, err = q.Dequeue(ctx, 10*time.Millisecond)
	assert.Nil(t, err)
	assert.Nil(t, task)
}

func TestInMemoryQueueFull(t *testing.T) {
	q := NewInMemoryQueue(1)
	assert.Nil(t, q.Enqueue(context.Background(), &Task{RunID: "r1"}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.NotNil(t, q.Enqueue(ctx, &Task{RunID: "r2"}))
}

func TestTaskCodec(t *testing.T) {
	in := &Task{
		ID:           "t1",
		RunID:        "r1",
		ExecuteLogID: "log",
		FlowCode:     "flow",
		FlowVersion:  "v1",
		TriggerType:  types.TriggerAPI,
		Snapshot:     []byte(`{"run_id":"r1"}`),
		EnqueuedAt:   time.Unix(1_700_000_000, 0).UTC(),
	}
	b, err := EncodeTask(in)
	assert.Nil(t, err)

	out, err := DecodeTask(b)
	assert.Nil(t, err)
	assert.Equal(t, in, out)

	_, err = DecodeTask([]byte("nope"))
	assert.NotNil(t, err)
}
