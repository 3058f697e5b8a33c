package nodes

import (
	"context"

	"github.com/juju/errors"

	"github.com/warriorguo/flowexec/types"
)

// SubflowRunner runs config "flow_code"/"flow_version" one level deeper.
// The child's replies reach this run through the execution registry.
type SubflowRunner struct {
	engine Engine
}

func (s *SubflowRunner) Execute(ctx context.Context, node *types.Node, vr *types.VertexResult, ed *types.ExecutionData, frontResults types.Data) error {
	code, _ := node.Config.GetString("flow_code")
	version, _ := node.Config.GetString("flow_version")
	provider := s.engine.FlowProvider()
	if provider == nil || code == "" {
		return types.NewNodeErrorf("subflow_invalid", "node %s: no flow provider or flow code", node.NodeID)
	}

	flow, err := provider.GetFlow(ctx, code, version)
	if err != nil {
		return types.NewNodeErrorf("subflow_not_found", "%s@%s: %v", code, version, err)
	}

	child := ed.NewChild(types.TriggerParamCall, frontResults.Clone())
	executor, err := s.engine.NewExecutor(ctx, flow, child)
	if err != nil {
		return types.NewNodeErrorf("subflow_invalid", "%v", err)
	}
	result, err := executor.Execute(ctx)

	// the stream is shared, so is the fact that it started
	if child.StreamStatus == types.StreamProcessing && ed.StreamStatus == types.StreamNotStarted {
		ed.StreamStatus = types.StreamProcessing
	}

	if err != nil {
		if be, ok := types.AsBusinessError(err); ok {
			return types.NewUnauthorizedNodeError(be.Code, "%v", errors.Cause(err))
		}
		return types.NewNodeErrorf("subflow_failed", "%v", err).Fatal()
	}
	if !executor.Successful() {
		return types.NewNodeErrorf("subflow_failed", "sub flow %s failed at %s", code, executor.FailedNode())
	}

	vr.Result = result
	vr.AddDebugLog("sub_run_id", child.RunID)
	return nil
}
