// Package nodes holds the built-in node runners: start, end, reply,
// condition, wait, subflow and loop.
package nodes

import (
	"context"
	"time"

	"github.com/juju/errors"

	"github.com/warriorguo/flowexec/runtime"
	"github.com/warriorguo/flowexec/types"
)

const (
	TypeStart     = "start"
	TypeEnd       = "end"
	TypeReply     = "reply"
	TypeCondition = "condition"
	TypeWait      = "wait"
	TypeSubflow   = "subflow"
	TypeLoop      = "loop"
)

// Engine is the part of runtime.Engine the built-in runners call into.
type Engine interface {
	NewExecutor(ctx context.Context, flow *types.FlowDefinition, ed *types.ExecutionData) (*runtime.Executor, error)
	Flows() *runtime.FlowRegistry
	WaitMessages() types.WaitMessageService
	FlowProvider() types.FlowProvider
}

var (
	_ Engine = &runtime.Engine{}
)

// RegisterBuiltins registers every built-in runner for all versions.
func RegisterBuiltins(registry *runtime.RunnerRegistry, engine Engine) error {
	runners := map[string]types.NodeRunner{
		TypeStart:     types.NodeRunnerFunc(runStart),
		TypeEnd:       types.NodeRunnerFunc(runEnd),
		TypeReply:     types.NodeRunnerFunc(runReply),
		TypeCondition: types.NodeRunnerFunc(runCondition),
		TypeWait:      NewWaitRunner(engine.WaitMessages(), time.Now),
		TypeSubflow:   &SubflowRunner{engine: engine},
		TypeLoop:      &LoopRunner{engine: engine},
	}
	for typ, runner := range runners {
		if err := registry.Register(typ, "", runner); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func runStart(ctx context.Context, node *types.Node, vr *types.VertexResult, ed *types.ExecutionData, frontResults types.Data) error {
	vr.Result = frontResults.Clone()
	if vr.Result == nil {
		vr.Result = types.Data{}
	}
	return nil
}

// runEnd publishes what reached it as the flow result.
func runEnd(ctx context.Context, node *types.Node, vr *types.VertexResult, ed *types.ExecutionData, frontResults types.Data) error {
	result := types.Data{}
	fields, _ := node.Config.GetSlice("fields")
	if len(fields) == 0 {
		result = frontResults.Clone()
	} else {
		for _, f := range fields {
			key, _ := f.(string)
			if v, exists := frontResults[key]; exists {
				result[key] = v
			}
		}
	}
	if result == nil {
		result = types.Data{}
	}
	vr.Result = result
	ed.Result = result
	vr.Stop()
	return nil
}
