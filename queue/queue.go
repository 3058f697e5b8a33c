// Package queue carries deferred executions from execute() to the async
// consumers.
package queue

import (
	"context"
	"time"

	"github.com/juju/errors"

	"github.com/warriorguo/flowexec/types"
	"github.com/warriorguo/flowexec/utils"
)

// Task resumes one deferred execute() call. Snapshot lets a consumer in a
// different process rebuild the ExecutionData.
type Task struct {
	ID           string            `json:"id"`
	RunID        string            `json:"run_id"`
	ExecuteLogID string            `json:"execute_log_id"`
	FlowCode     string            `json:"flow_code"`
	FlowVersion  string            `json:"flow_version"`
	TriggerType  types.TriggerType `json:"trigger_type"`
	Snapshot     []byte            `json:"snapshot,omitempty"`
	EnqueuedAt   time.Time         `json:"enqueued_at"`

	// set when the deferred run resumes a wait message
	ResumeNodeID  string `json:"resume_node_id,omitempty"`
	WaitMessageID string `json:"wait_message_id,omitempty"`
}

type Queue interface {
	Enqueue(ctx context.Context, t *Task) error
	// Dequeue waits up to wait for a task. (nil, nil) means the queue stayed empty.
	Dequeue(ctx context.Context, wait time.Duration) (*Task, error)
	Len() int
}

func EncodeTask(t *Task) ([]byte, error) {
	b, err := utils.Serialize(t)
	return b, errors.Trace(err)
}

func DecodeTask(b []byte) (*Task, error) {
	t := &Task{}
	if err := utils.Unserialize(b, t); err != nil {
		return nil, errors.Annotatef(err, "decode task")
	}
	return t, nil
}

var (
	_ Queue = &InMemoryQueue{}
)

type InMemoryQueue struct {
	ch chan *Task
}

func NewInMemoryQueue(capacity int) *InMemoryQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &InMemoryQueue{ch: make(chan *Task, capacity)}
}

func (q *InMemoryQueue) Enqueue(ctx context.Context, t *Task) error {
	select {
	case q.ch <- t:
		return nil
	case <-ctx.Done():
		return errors.Trace(ctx.Err())
	}
}

func (q *InMemoryQueue) Dequeue(ctx context.Context, wait time.Duration) (*Task, error) {
	if wait <= 0 {
		select {
		case t := <-q.ch:
			return t, nil
		default:
			return nil, nil
		}
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case t := <-q.ch:
		return t, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, errors.Trace(ctx.Err())
	}
}

func (q *InMemoryQueue) Len() int {
	return len(q.ch)
}
