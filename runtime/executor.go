package runtime

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"

	"github.com/warriorguo/flowexec/lock"
	"github.com/warriorguo/flowexec/types"
)

// ExecutorKind prefixes the lock keys of flow runs.
const ExecutorKind = "FlowExecutor"

type resumePoint struct {
	nodeID        string
	waitMessageID string
}

// Executor drives one execute() call of a flow:
// build -> lock -> run -> finalize.
type Executor struct {
	engine *Engine
	flow   *types.FlowDefinition
	ed     *types.ExecutionData
	graph  *Graph

	token         string
	executeLogID  string
	log           *types.ExecuteLogEntity
	appointRootID string
	waitMessageID string
	replyMark     int

	// active is set while run holds the run lock.
	active atomic.Bool

	mu         sync.Mutex
	successful bool
	failedNode string
	status     types.StatusType
	summary    types.Data

	archiveMu      sync.Mutex
	pendingArchive *archivePayload
}

func (en *Engine) newExecutor(ctx context.Context, flow *types.FlowDefinition, ed *types.ExecutionData, resume *resumePoint) (*Executor, error) {
	if flow == nil || ed == nil {
		return nil, errors.BadRequestf("flow and execution data are required")
	}
	e := &Executor{
		engine:     en,
		flow:       flow.Clone(),
		ed:         ed,
		token:      uuid.NewString(),
		successful: true,
		status:     types.Pending,
	}
	if err := e.init(ctx, resume); err != nil {
		return nil, errors.Trace(err)
	}
	return e, nil
}

func (e *Executor) init(ctx context.Context, resume *resumePoint) error {
	ed := e.ed
	if resume != nil {
		e.appointRootID = resume.nodeID
		e.waitMessageID = resume.waitMessageID
		ed.ResumeNodeID = resume.nodeID
	} else if err := e.resolveWaitMessage(ctx); err != nil {
		return errors.Trace(err)
	}

	if e.flow.HasCallback() || ed.Debug {
		ed.Async = false
	}
	if ed.Async {
		ed.Stream = false
	}
	if ed.AgentID == "" {
		ed.AgentID = e.flow.AgentID
	}
	if ed.FlowCode == "" {
		ed.FlowCode = e.flow.Code
		ed.FlowVersion = e.flow.Version
	}

	if !e.flow.HasCallback() {
		g, err := BuildGraph(e.flow, e.engine.runners, e.appointRootID)
		if err != nil {
			return errors.Trace(err)
		}
		e.graph = g
	}
	e.engine.flows.Add(ed.RunID, e.flow)
	return nil
}

func (e *Executor) resolveWaitMessage(ctx context.Context) error {
	ed := e.ed
	waits := e.engine.waits
	if waits == nil || ed.IsLoopReentry() || ed.ConversationID == "" {
		return nil
	}

	w, err := waits.GetLastWaitMessage(ctx, ed.ConversationID, e.flow.Code, e.flow.Version)
	if err != nil {
		return errors.Annotatef(err, "get wait message of %s", ed.ConversationID)
	}
	if w == nil {
		return nil
	}

	if node, exists := e.flow.Node(w.NodeID); !exists || node.ParentID != "" {
		log.WithFields(e.logFields()).Warnf("wait message %s points to missing node %s, start over", w.ID, w.NodeID)
		return errors.Trace(waits.Handled(ctx, w.ID))
	}
	if err := ed.Restore(w.Snapshot); err != nil {
		return errors.Trace(err)
	}
	ed.ResumeNodeID = w.NodeID
	e.appointRootID = w.NodeID
	e.waitMessageID = w.ID
	log.WithFields(e.logFields()).Debugf("resume from wait message %s at %s", w.ID, w.NodeID)
	return nil
}

// Execute runs the flow. In async mode the run is queued and an empty
// result returns immediately.
func (e *Executor) Execute(ctx context.Context) (types.Data, error) {
	if e.executeLogID == "" {
		if err := e.createLog(ctx); err != nil {
			return nil, errors.Trace(err)
		}
	}
	if e.ed.Async {
		if err := e.engine.deferExecution(ctx, e); err != nil {
			return nil, errors.Trace(err)
		}
		return types.Data{}, nil
	}
	return e.run(ctx)
}

func (e *Executor) createLog(ctx context.Context) error {
	ed := e.ed
	entity := &types.ExecuteLogEntity{
		RunID:          ed.RunID,
		Status:         types.Pending,
		TriggerType:    ed.TriggerType,
		ConversationID: ed.ConversationID,
		TenantID:       ed.DataIsolation.TenantID,
	}
	id, err := e.engine.logs.Create(ctx, entity)
	if err != nil {
		return errors.Annotatef(err, "create execute log of %s", ed.RunID)
	}
	e.log = entity
	e.executeLogID = id
	if !ed.IsLoopReentry() {
		ed.ExecuteLogID = id
	}
	return nil
}

func (e *Executor) run(ctx context.Context) (result types.Data, retErr error) {
	ed := e.ed
	if !e.active.CompareAndSwap(false, true) {
		return nil, types.NewExecuteFailedf("%s is running", e.executeLogID)
	}
	defer e.active.Store(false)

	ok, err := e.engine.locker.MutexLock(ctx, lock.RunKey(ExecutorKind, e.executeLogID), e.token)
	if err != nil || !ok {
		// the log belongs to the attempt holding the lock, leave it as is
		e.engine.flows.Remove(ed.RunID, e.flow)
		if err != nil {
			return nil, types.NewExecuteFailed(errors.Annotatef(err, "lock %s", e.executeLogID))
		}
		return nil, types.NewExecuteFailedf("%s is running", e.executeLogID)
	}
	stopRenew := e.renewLock(ctx)
	defer func() {
		stopRenew()
		e.end(ctx, retErr)
	}()
	e.engine.flows.Add(ed.RunID, e.flow)

	e.replyMark = ed.ReplyCount()
	e.setStatus(types.Running)
	e.log.Status = types.Running
	if !ed.IsLoopReentry() {
		e.log.FlowCode = e.flow.Code
		e.log.FlowVersion = e.flow.Version
		e.log.Creator = e.flow.Creator
		e.engine.executions.Add(ed)
	}
	if err := e.engine.logs.UpdateStatus(ctx, e.log); err != nil {
		return nil, errors.Trace(err)
	}
	log.WithFields(e.logFields()).Debugf("run started from %s", e.RootID())

	if e.flow.HasCallback() {
		return e.runCallback(ctx)
	}
	if err := e.graph.Run(ctx, ed, ed.TriggerData.Clone(), e.handledNode(ctx)); err != nil {
		return nil, errors.Trace(err)
	}
	return e.result(), nil
}

func (e *Executor) runCallback(ctx context.Context) (types.Data, error) {
	result, err := e.flow.Callback(ctx, e.ed)
	if err != nil {
		e.markFailed(e.flow.EndNodeID)
		return nil, errors.Trace(err)
	}
	if len(result) > 0 {
		if e.flow.EndNodeID != "" {
			e.ed.SaveNodeContext(e.flow.EndNodeID, result)
		}
		e.ed.Result = result
	}
	return result, nil
}

func (e *Executor) result() types.Data {
	if e.flow.EndNodeID != "" {
		if d, exists := e.ed.NodeContext(e.flow.EndNodeID); exists {
			return d
		}
	}
	if e.ed.Result != nil {
		return e.ed.Result
	}
	return types.Data{}
}

func (e *Executor) handledNode(ctx context.Context) VertexHandler {
	ed := e.ed
	return func(v *Vertex, vr *types.VertexResult) error {
		debug := v.Node().Debug
		if !debug.Success {
			e.markFailed(v.ID())
			log.WithFields(e.logFields()).WithField("node", v.ID()).Warnf("node failed: %s", debug.ErrorMessage)
		}
		if !vr.HistoryVertexResult {
			e.archive(ctx)
		}
		if debug.Success {
			return nil
		}

		if ed.ExecutionType == types.ExecutionTypeAPI && ed.TriggerType != types.TriggerParamCall {
			if err := ed.EmitError(v.ID(), debug.ErrorMessage); err != nil {
				log.WithFields(e.logFields()).Errorf("emit error of %s failed: %v", v.ID(), err)
			}
		}
		if !debug.Throw {
			return nil
		}
		if debug.Unauthorized {
			return types.NewBusinessError(debug.ErrorCode, errors.New(debug.ErrorMessage))
		}
		return types.NewExecuteFailedf("%s", debug.ErrorMessage)
	}
}

// end finalizes the run. The run lock is released whatever happens before.
func (e *Executor) end(ctx context.Context, runErr error) {
	ctx = context.WithoutCancel(ctx)
	ed := e.ed

	func() {
		defer e.releaseLock(ctx)

		if runErr != nil {
			e.markFailed("")
		}
		failed := !e.Successful()

		summary := types.Data{}
		if ed.ExecutionType == types.ExecutionTypeAPI || failed {
			summary = e.buildSummary()
		}
		if !failed && e.waitMessageID != "" {
			if err := e.engine.waits.Handled(ctx, e.waitMessageID); err != nil {
				log.WithFields(e.logFields()).Errorf("mark wait message %s handled failed: %v", e.waitMessageID, err)
			}
		}

		status := types.Completed
		if failed {
			status = types.Failed
		}
		e.mu.Lock()
		e.status = status
		e.summary = summary
		e.mu.Unlock()

		e.log.Status = status
		e.log.Result = summary
		if err := e.engine.logs.UpdateStatus(ctx, e.log); err != nil {
			log.WithFields(e.logFields()).Errorf("update execute log failed: %v", err)
		}

		if !ed.IsLoopReentry() {
			e.propagateReplies()
		}
	}()

	if ed.IsLoopReentry() {
		return
	}
	e.FinalizeStream()
	e.engine.executions.Remove(ed)
	e.engine.flows.Remove(ed.RunID, e.flow)
	log.WithFields(e.logFields()).Debugf("run finished: %v", e.Status())
}

// renewLock pushes the run lock expiry every third of the lock ttl until
// the returned stop is called.
func (e *Executor) renewLock(ctx context.Context) (stop func()) {
	ttl := e.engine.opts.LockTTL()
	if ttl <= 0 {
		return func() {}
	}
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(ttl / 3)
		defer ticker.Stop()

		key := lock.RunKey(ExecutorKind, e.executeLogID)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			ok, err := e.engine.locker.Renew(ctx, key, e.token)
			if err != nil {
				log.WithFields(e.logFields()).Errorf("renew run lock failed: %v", err)
				continue
			}
			if !ok {
				log.WithFields(e.logFields()).Errorf("run lock of %s lost", e.executeLogID)
				return
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func (e *Executor) releaseLock(ctx context.Context) {
	if err := e.engine.locker.Release(ctx, lock.RunKey(ExecutorKind, e.executeLogID), e.token); err != nil {
		log.WithFields(e.logFields()).Errorf("release run lock failed: %v", err)
	}
}

func (e *Executor) buildSummary() types.Data {
	ed := e.ed
	switch ed.TriggerType {
	case types.TriggerChat:
		return types.Data{
			"reply_messages":         ed.Replies(),
			"origin_conversation_id": ed.OriginConversationID,
		}
	case types.TriggerParamCall:
		return types.Data{
			"result":                 ed.Result,
			"origin_conversation_id": ed.OriginConversationID,
		}
	default:
		return types.Data{}
	}
}

func (e *Executor) propagateReplies() {
	ed := e.ed
	if ed.ParentRunID == "" {
		return
	}
	parent, exists := e.engine.executions.Get(ed.ParentRunID)
	if !exists {
		log.WithFields(e.logFields()).Debugf("parent run %s is gone, replies not propagated", ed.ParentRunID)
		return
	}
	if replies := ed.RepliesSince(e.replyMark); len(replies) > 0 {
		parent.AddReplies(replies)
	}
}

// FinalizeStream ends a top-level stream once. API streams get the end
// marker and are closed.
func (e *Executor) FinalizeStream() {
	ed := e.ed
	if !ed.Stream || ed.StreamStatus != types.StreamProcessing || ed.Level != 0 {
		return
	}
	ed.StreamStatus = types.StreamFinished
	if ed.ExecutionType != types.ExecutionTypeAPI {
		return
	}
	ch := ed.StreamChannel()
	if ch == nil {
		return
	}
	if err := ch.End(); err != nil {
		log.WithFields(e.logFields()).Errorf("end stream failed: %v", err)
	}
	if err := ch.Close(); err != nil {
		log.WithFields(e.logFields()).Errorf("close stream failed: %v", err)
	}
}

func (e *Executor) markFailed(nodeID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.successful {
		e.successful = false
		e.failedNode = nodeID
	}
}

func (e *Executor) setStatus(status types.StatusType) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status = status
}

func (e *Executor) Successful() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.successful
}

// FailedNode is the first node that failed, "" when none did.
func (e *Executor) FailedNode() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.failedNode
}

func (e *Executor) Status() types.StatusType {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

func (e *Executor) Summary() types.Data {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.summary
}

func (e *Executor) RootID() string {
	if e.graph == nil {
		return ""
	}
	return e.graph.Root().ID()
}

func (e *Executor) ExecuteLogID() string {
	return e.executeLogID
}

func (e *Executor) ExecutionData() *types.ExecutionData {
	return e.ed
}

func (e *Executor) Flow() *types.FlowDefinition {
	return e.flow
}

// Trace returns the debug result of every node that ran, keyed by node id.
func (e *Executor) Trace() map[string]*types.NodeDebugResult {
	trace := make(map[string]*types.NodeDebugResult)
	for _, n := range e.flow.Nodes {
		if n.Executed() {
			trace[n.NodeID] = n.Debug
		}
	}
	return trace
}

func (e *Executor) logFields() log.Fields {
	return log.Fields{
		"run_id": e.ed.RunID,
		"log_id": e.executeLogID,
		"flow":   e.flow.Code,
		"level":  e.ed.Level,
	}
}
