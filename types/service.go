package types

import (
	"context"
	"time"
)

type FlowProvider interface {
	GetFlow(ctx context.Context, code, version string) (*FlowDefinition, error)
}

type ExecuteLogService interface {
	// Create stores the log and returns its id.
	Create(ctx context.Context, log *ExecuteLogEntity) (string, error)
	UpdateStatus(ctx context.Context, log *ExecuteLogEntity) error
	Get(ctx context.Context, id string) (*ExecuteLogEntity, error)
}

type WaitMessageService interface {
	/**
	 * GetLastWaitMessage returns the newest unhandled wait message of the
	 * conversation/flow/version, or nil when nothing is waiting.
	 */
	GetLastWaitMessage(ctx context.Context, conversationID, flowCode, flowVersion string) (*WaitMessageEntity, error)
	Save(ctx context.Context, entity *WaitMessageEntity) error
	Handled(ctx context.Context, id string) error
}

type Locker interface {
	// MutexLock tries once. false means the key is held, even when held by
	// the same token.
	MutexLock(ctx context.Context, key, token string) (bool, error)
	// SpinLock retries MutexLock until maxWait elapses.
	SpinLock(ctx context.Context, key, token string, maxWait time.Duration) (bool, error)
	// Renew pushes the expiry of a key held by token. false means the lock
	// was lost.
	Renew(ctx context.Context, key, token string) (bool, error)
	// Release only frees a key held by token; releasing a free key is not an error.
	Release(ctx context.Context, key, token string) error
}

type ArchiveSink interface {
	Put(ctx context.Context, tenant, key string, data []byte) error
}

type StreamChannel interface {
	Write(chunk any) error
	// End writes the end-of-stream marker.
	End() error
	Close() error
}

// NodeRunner is the business logic behind one (type, version). It may
// narrow vr.ChildrenIDs, set vr.Result and return a *NodeError to control
// how a failure is treated.
type NodeRunner interface {
	Execute(ctx context.Context, node *Node, vr *VertexResult, ed *ExecutionData, frontResults Data) error
}

type NodeRunnerFunc func(ctx context.Context, node *Node, vr *VertexResult, ed *ExecutionData, frontResults Data) error

func (f NodeRunnerFunc) Execute(ctx context.Context, node *Node, vr *VertexResult, ed *ExecutionData, frontResults Data) error {
	return f(ctx, node, vr, ed, frontResults)
}

type RunnerRegistry interface {
	Resolve(nodeType, version string) (NodeRunner, error)
}
