package runtime

import (
	"context"
	"sync"
	"testing"

	"github.com/spf13/cast"
	"github.com/stretchr/testify/require"

	"github.com/warriorguo/flowexec/lock"
	"github.com/warriorguo/flowexec/queue"
	"github.com/warriorguo/flowexec/service"
	"github.com/warriorguo/flowexec/store/mem"
	"github.com/warriorguo/flowexec/types"
)

const stepType = "step"

type testEnv struct {
	engine  *Engine
	logs    *service.ExecuteLogService
	waits   *service.WaitMessageService
	locker  *lock.MemLocker
	queue   *queue.InMemoryQueue
	archive *service.StoreArchiveSink
	rec     *recorder

	archiveMu   sync.Mutex
	archiveErrs []error
}

func newTestEnv(t *testing.T, opts ...types.EngineOption) *testEnv {
	s := mem.NewMemStore()
	env := &testEnv{
		logs:    service.NewExecuteLogService(s),
		waits:   service.NewWaitMessageService(s),
		queue:   queue.NewInMemoryQueue(16),
		archive: service.NewStoreArchiveSink(s),
		rec:     newRecorder(),
	}

	options := types.NewEngineOptions()
	options.AutoStart = false
	options.ArchiveErrorHandler = func(runID string, err error) {
		env.archiveMu.Lock()
		defer env.archiveMu.Unlock()
		env.archiveErrs = append(env.archiveErrs, err)
	}
	for _, opt := range opts {
		opt(options)
	}
	env.locker = lock.NewMemLocker(options.LockTTL())

	en, err := NewEngine(options, Backends{
		Logs:    env.logs,
		Waits:   env.waits,
		Locker:  env.locker,
		Queue:   env.queue,
		Archive: env.archive,
	})
	require.Nil(t, err)
	require.Nil(t, en.Runners().Register(stepType, "", env.rec.runner()))
	t.Cleanup(func() { en.Close(context.Background()) })

	env.engine = en
	return env
}

func (env *testEnv) archiveErrors() []error {
	env.archiveMu.Lock()
	defer env.archiveMu.Unlock()
	return append([]error(nil), env.archiveErrs...)
}

// recorder is the runner behind every "step" node. Node config drives it:
// "children" narrows the continuation, "reply" adds a reply and streams it,
// "fail" fails with that code, "throw"/"unauthorized" make the failure
// fatal, "panic" panics. A node blocked by block() waits once for release.
type recorder struct {
	mu     sync.Mutex
	calls  []string
	fronts map[string]types.Data
	blocks map[string]chan struct{}
}

func newRecorder() *recorder {
	return &recorder{fronts: make(map[string]types.Data), blocks: make(map[string]chan struct{})}
}

func (r *recorder) block(name string) (started, release chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	started = make(chan struct{})
	release = make(chan struct{})
	r.blocks[name+".started"] = started
	r.blocks[name] = release
	return started, release
}

func (r *recorder) called() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *recorder) front(nodeID string) types.Data {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fronts[nodeID]
}

func (r *recorder) runner() types.NodeRunner {
	return types.NodeRunnerFunc(func(ctx context.Context, node *types.Node, vr *types.VertexResult, ed *types.ExecutionData, front types.Data) error {
		r.mu.Lock()
		r.calls = append(r.calls, node.NodeID)
		r.fronts[node.NodeID] = front
		started, release := r.blocks[node.NodeID+".started"], r.blocks[node.NodeID]
		delete(r.blocks, node.NodeID+".started")
		delete(r.blocks, node.NodeID)
		r.mu.Unlock()

		if release != nil {
			close(started)
			<-release
		}

		vr.Result = types.Data{node.NodeID: true}
		if children, exists := node.Config.Get("children"); exists {
			vr.ChildrenIDs = cast.ToStringSlice(children)
		}
		if reply, _ := node.Config.GetString("reply"); reply != "" {
			ed.AddReply(types.ReplyMessage{NodeID: node.NodeID, Type: types.ReplyTypeText, Content: reply})
			if err := ed.WriteStream(reply); err != nil {
				return err
			}
		}
		if _, exists := node.Config.Get("panic"); exists {
			panic("boom")
		}
		if code, _ := node.Config.GetString("fail"); code != "" {
			if unauthorized, _ := node.Config.GetBool("unauthorized"); unauthorized {
				return types.NewUnauthorizedNodeError(code, "%s is not allowed", node.NodeID)
			}
			ne := types.NewNodeErrorf(code, "%s failed", node.NodeID)
			if throw, _ := node.Config.GetBool("throw"); throw {
				ne.Fatal()
			}
			return ne
		}
		return nil
	})
}

func step(id string, next ...string) *types.Node {
	return &types.Node{NodeID: id, Type: stepType, NextNodeIDs: next}
}

func withConfig(n *types.Node, config types.Data) *types.Node {
	n.Config = config
	return n
}

// newFlow marks the first node as start.
func newFlow(nodes ...*types.Node) *types.FlowDefinition {
	nodes[0].Start = true
	return &types.FlowDefinition{Code: "test", Version: "v1", Creator: "tester", Nodes: nodes}
}

func newChatData(conversationID string, trigger types.Data) *types.ExecutionData {
	ed := types.NewExecutionData(types.TriggerChat, trigger)
	ed.ConversationID = conversationID
	ed.DataIsolation.TenantID = "tenant"
	return ed
}
