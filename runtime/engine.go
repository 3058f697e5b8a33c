package runtime

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gammazero/workerpool"
	"github.com/google/uuid"
	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"

	"github.com/warriorguo/flowexec/queue"
	"github.com/warriorguo/flowexec/types"
	"github.com/warriorguo/flowexec/utils"
)

// Backends are the collaborators an Engine runs against. Logs, Locker and
// Queue are required; without Waits nothing is resumed and without Archive
// nothing is archived.
type Backends struct {
	Logs    types.ExecuteLogService
	Waits   types.WaitMessageService
	Locker  types.Locker
	Queue   queue.Queue
	Archive types.ArchiveSink
	Runners *RunnerRegistry

	// Closers run on Close, in order.
	Closers []func() error
}

// Engine owns the registries, the async consumers and the archive pool
// shared by every run.
type Engine struct {
	opts *types.EngineOptions

	ctx    context.Context
	cancel context.CancelFunc

	exitCh  chan struct{}
	running atomic.Bool

	logs    types.ExecuteLogService
	waits   types.WaitMessageService
	locker  types.Locker
	queue   queue.Queue
	archive types.ArchiveSink
	runners *RunnerRegistry
	closers []func() error

	executions *ExecutionRegistry
	flows      *FlowRegistry

	asyncPool   *workerpool.WorkerPool
	archivePool *workerpool.WorkerPool
	archiveWG   sync.WaitGroup

	pendingMu sync.Mutex
	pending   map[string]*Executor
}

func NewEngine(opts *types.EngineOptions, b Backends) (*Engine, error) {
	if opts == nil {
		opts = types.NewEngineOptions()
	}
	if b.Logs == nil || b.Locker == nil || b.Queue == nil {
		return nil, errors.BadRequestf("execute log service, locker and queue are required")
	}
	if b.Runners == nil {
		b.Runners = NewRunnerRegistry()
	}
	if opts.AsyncWorkers <= 0 {
		opts.AsyncWorkers = 1
	}
	if opts.ArchiveWorkers <= 0 {
		opts.ArchiveWorkers = 1
	}

	en := &Engine{
		opts:        opts,
		logs:        b.Logs,
		waits:       b.Waits,
		locker:      b.Locker,
		queue:       b.Queue,
		archive:     b.Archive,
		runners:     b.Runners,
		closers:     b.Closers,
		executions:  NewExecutionRegistry(),
		flows:       NewFlowRegistry(),
		asyncPool:   workerpool.New(opts.AsyncWorkers),
		archivePool: workerpool.New(opts.ArchiveWorkers),
		pending:     make(map[string]*Executor),
	}
	ctx := opts.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	en.ctx, en.cancel = context.WithCancel(ctx)
	en.running.Store(true)

	if opts.AutoStart {
		en.asyncRun()
	}
	return en, nil
}

// NewExecutor builds an executor for one execute() call. ValidateFailed is
// returned for a flow without a start node or with a cycle.
func (en *Engine) NewExecutor(ctx context.Context, flow *types.FlowDefinition, ed *types.ExecutionData) (*Executor, error) {
	if !en.running.Load() {
		return nil, errors.MethodNotAllowedf("not running")
	}
	return en.newExecutor(ctx, flow, ed, nil)
}

func (en *Engine) Execute(ctx context.Context, flow *types.FlowDefinition, ed *types.ExecutionData) (types.Data, error) {
	e, err := en.NewExecutor(ctx, flow, ed)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return e.Execute(ctx)
}

func (en *Engine) Runners() *RunnerRegistry {
	return en.runners
}

func (en *Engine) Executions() *ExecutionRegistry {
	return en.executions
}

func (en *Engine) Flows() *FlowRegistry {
	return en.flows
}

func (en *Engine) WaitMessages() types.WaitMessageService {
	return en.waits
}

func (en *Engine) ExecuteLogs() types.ExecuteLogService {
	return en.logs
}

func (en *Engine) FlowProvider() types.FlowProvider {
	return en.opts.FlowProvider
}

func (en *Engine) archiveFailed(runID string, err error) {
	if en.opts.ArchiveErrorHandler != nil {
		en.opts.ArchiveErrorHandler(runID, err)
		return
	}
	log.WithField("run_id", runID).Errorf("archive failed: %v", err)
}

func (en *Engine) deferExecution(ctx context.Context, e *Executor) error {
	ed := e.ed
	snapshot, err := ed.Snapshot()
	if err != nil {
		return errors.Trace(err)
	}
	task := &queue.Task{
		ID:            uuid.NewString(),
		RunID:         ed.RunID,
		ExecuteLogID:  e.executeLogID,
		FlowCode:      e.flow.Code,
		FlowVersion:   e.flow.Version,
		TriggerType:   ed.TriggerType,
		Snapshot:      snapshot,
		EnqueuedAt:    time.Now(),
		ResumeNodeID:  e.appointRootID,
		WaitMessageID: e.waitMessageID,
	}

	en.pendingMu.Lock()
	en.pending[task.ID] = e
	en.pendingMu.Unlock()

	if err := en.queue.Enqueue(ctx, task); err != nil {
		en.takePending(task.ID)
		return errors.Annotatef(err, "defer run %s", ed.RunID)
	}
	log.WithFields(e.logFields()).Debugf("run deferred as task %s", task.ID)
	return nil
}

func (en *Engine) takePending(taskID string) *Executor {
	en.pendingMu.Lock()
	defer en.pendingMu.Unlock()

	e := en.pending[taskID]
	delete(en.pending, taskID)
	return e
}

// consume re-enters a deferred execution with async off. Tasks queued by
// another process are rebuilt from their snapshot.
func (en *Engine) consume(ctx context.Context, task *queue.Task) error {
	e := en.takePending(task.ID)
	if e == nil {
		var err error
		if e, err = en.rebuild(ctx, task); err != nil {
			log.WithField("run_id", task.RunID).Errorf("rebuild deferred run failed: %v", err)
			return errors.Trace(err)
		}
	}
	e.ed.Async = false
	e.ed.TriggerType = task.TriggerType

	if _, err := e.run(ctx); err != nil {
		log.WithFields(e.logFields()).Errorf("deferred run failed: %v", err)
		return errors.Trace(err)
	}
	return nil
}

func (en *Engine) rebuild(ctx context.Context, task *queue.Task) (*Executor, error) {
	provider := en.opts.FlowProvider
	if provider == nil {
		return nil, errors.NotFoundf("flow provider for %s", task.FlowCode)
	}
	flow, err := provider.GetFlow(ctx, task.FlowCode, task.FlowVersion)
	if err != nil {
		return nil, errors.Trace(err)
	}

	ed := &types.ExecutionData{}
	if err := utils.Unserialize(task.Snapshot, ed); err != nil {
		return nil, errors.Annotatef(err, "unserialize snapshot of %s", task.RunID)
	}
	ed.Async = false

	e, err := en.newExecutor(ctx, flow, ed, &resumePoint{nodeID: task.ResumeNodeID, waitMessageID: task.WaitMessageID})
	if err != nil {
		return nil, errors.Trace(err)
	}
	e.executeLogID = task.ExecuteLogID
	if e.log, err = en.logs.Get(ctx, task.ExecuteLogID); err != nil {
		return nil, errors.Trace(err)
	}
	return e, nil
}

func (en *Engine) asyncRun() {
	readyCh := make(chan struct{})
	en.exitCh = make(chan struct{})

	go func() {
		defer close(en.exitCh)
		close(readyCh)

		runCtx := context.WithoutCancel(en.ctx)
		for en.ctx.Err() == nil {
			task, err := en.queue.Dequeue(en.ctx, en.opts.QueuePollInterval())
			if err != nil {
				if en.ctx.Err() != nil {
					return
				}
				log.Errorf("dequeue failed: %v", err)
				time.Sleep(en.opts.QueuePollInterval())
				continue
			}
			if task == nil {
				continue
			}
			en.asyncPool.Submit(func() {
				en.consume(runCtx, task)
			})
		}
	}()
	<-readyCh
}

// RunOnce consumes at most one deferred execution in the caller goroutine.
// It reports whether a task was found. Used when auto start is disabled.
func (en *Engine) RunOnce(ctx context.Context) (bool, error) {
	task, err := en.queue.Dequeue(ctx, 0)
	if err != nil {
		return false, errors.Trace(err)
	}
	if task == nil {
		return false, nil
	}
	return true, en.consume(ctx, task)
}

func (en *Engine) submitArchive(task func()) {
	if en.archivePool.Stopped() {
		log.Warnf("archive pool stopped, archive dropped")
		return
	}
	en.archiveWG.Add(1)
	en.archivePool.Submit(func() {
		defer en.archiveWG.Done()
		task()
	})
}

// WaitArchives blocks until every submitted archive write is done.
func (en *Engine) WaitArchives() {
	en.archiveWG.Wait()
}

func (en *Engine) Close(ctx context.Context) error {
	if !en.running.CompareAndSwap(true, false) {
		return nil
	}
	en.cancel()

	if en.exitCh != nil {
		<-en.exitCh
	}
	en.asyncPool.StopWait()
	en.archivePool.StopWait()

	var retErr error
	for _, closer := range en.closers {
		if err := closer(); err != nil {
			if retErr == nil {
				retErr = err
			} else {
				retErr = errors.Wrap(retErr, err)
			}
		}
	}
	return errors.Trace(retErr)
}
