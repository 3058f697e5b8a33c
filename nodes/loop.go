package nodes

import (
	"context"
	"reflect"

	"github.com/juju/errors"

	"github.com/warriorguo/flowexec/types"
)

// LoopRunner runs the nodes whose ParentID is the loop node once per item.
// Every iteration re-enters the executor on the same ExecutionData.
//
// Config: "items" (expression yielding a list) or "count"; "item_key" and
// "index_key" name the iteration variables ("item", "index").
type LoopRunner struct {
	engine Engine
}

func (l *LoopRunner) Execute(ctx context.Context, node *types.Node, vr *types.VertexResult, ed *types.ExecutionData, frontResults types.Data) error {
	flow, exists := l.engine.Flows().Get(ed.RunID)
	if !exists {
		return types.NewNodeErrorf("loop_invalid", "no flow registered for run %s", ed.RunID).Fatal()
	}
	body := loopBody(flow, node.NodeID)
	if body == nil {
		vr.Result = types.Data{"results": []any{}, "count": 0}
		return nil
	}

	items, err := l.items(node, ed, frontResults)
	if err != nil {
		return types.NewNodeErrorf("loop_invalid", "%v", err)
	}
	itemKey, _ := node.Config.GetString("item_key")
	if itemKey == "" {
		itemKey = "item"
	}
	indexKey, _ := node.Config.GetString("index_key")
	if indexKey == "" {
		indexKey = "index"
	}

	results := make([]any, 0, len(items))
	for i, item := range items {
		input := frontResults.Clone()
		input.Set(itemKey, item)
		input.Set(indexKey, i)

		result, err := l.iterate(ctx, body, ed, input)
		if err != nil {
			return err
		}
		results = append(results, result)
	}

	vr.Result = types.Data{"results": results, "count": len(results)}
	return nil
}

func (l *LoopRunner) iterate(ctx context.Context, body *types.FlowDefinition, ed *types.ExecutionData, input types.Data) (types.Data, error) {
	prevTrigger, prevData, prevInLoop := ed.TriggerType, ed.TriggerData, ed.InLoop
	ed.TriggerType = types.TriggerLoopReentry
	ed.TriggerData = input
	ed.InLoop = true
	defer func() {
		ed.TriggerType, ed.TriggerData, ed.InLoop = prevTrigger, prevData, prevInLoop
	}()

	executor, err := l.engine.NewExecutor(ctx, body, ed)
	if err != nil {
		return nil, types.NewNodeErrorf("loop_invalid", "%v", err).Fatal()
	}
	result, err := executor.Execute(ctx)
	if err != nil {
		if be, ok := types.AsBusinessError(err); ok {
			return nil, types.NewUnauthorizedNodeError(be.Code, "%v", errors.Cause(err))
		}
		return nil, types.NewNodeErrorf("loop_failed", "%v", err).Fatal()
	}
	if !executor.Successful() {
		return nil, types.NewNodeErrorf("loop_failed", "loop body failed at %s", executor.FailedNode())
	}
	return result, nil
}

func (l *LoopRunner) items(node *types.Node, ed *types.ExecutionData, frontResults types.Data) ([]any, error) {
	if code, _ := node.Config.GetString("items"); code != "" {
		v, err := evalAny(code, newEnv(ed, frontResults))
		if err != nil {
			return nil, errors.Trace(err)
		}
		return toSlice(v)
	}
	count, _ := node.Config.GetInt("count")
	items := make([]any, 0, count)
	for i := 0; i < count; i++ {
		items = append(items, i)
	}
	return items, nil
}

func toSlice(v any) ([]any, error) {
	if v == nil {
		return nil, nil
	}
	if s, ok := v.([]any); ok {
		return s, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, errors.NotValidf("loop items of type %T", v)
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}

// loopBody turns the direct children of loopID into a flow of their own.
// Without an explicit start node, the first child no sibling points to
// starts the body. Nested loops read their body from the registered flow.
func loopBody(flow *types.FlowDefinition, loopID string) *types.FlowDefinition {
	children := flow.Children(loopID)
	if len(children) == 0 {
		return nil
	}

	targeted := make(map[string]bool)
	hasStart := false
	nodes := make([]*types.Node, 0, len(children))
	for _, c := range children {
		n := c.Clone()
		n.ParentID = ""
		nodes = append(nodes, n)
		hasStart = hasStart || n.IsStart()
		for _, next := range n.NextNodeIDs {
			targeted[next] = true
		}
	}
	if !hasStart {
		for _, n := range nodes {
			if !targeted[n.NodeID] {
				n.Start = true
				break
			}
		}
	}

	return &types.FlowDefinition{
		ID:      flow.ID,
		Code:    flow.Code,
		Version: flow.Version,
		Creator: flow.Creator,
		AgentID: flow.AgentID,
		Nodes:   nodes,
	}
}
