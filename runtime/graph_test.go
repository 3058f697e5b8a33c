package runtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/warriorguo/flowexec/types"
)

func stepRunners(t *testing.T) *RunnerRegistry {
	runners := NewRunnerRegistry()
	assert.Nil(t, runners.Register(stepType, "", newRecorder().runner()))
	return runners
}

func TestBuildGraph(t *testing.T) {
	runners := stepRunners(t)

	g, err := BuildGraph(newFlow(step("S", "A"), step("A", "B", "C"), step("B"), step("C")), runners, "")
	assert.Nil(t, err)
	assert.Equal(t, "S", g.Root().ID())
	assert.True(t, g.Root().IsRoot())

	a, exists := g.Vertex("A")
	assert.True(t, exists)
	assert.Equal(t, []string{"B", "C"}, a.ChildIDs())

	_, exists = g.Vertex("ghost")
	assert.False(t, exists)
}

func TestBuildGraphValidate(t *testing.T) {
	runners := stepRunners(t)

	cases := []struct {
		name string
		flow *types.FlowDefinition
		msg  string
	}{
		{
			name: "no start node",
			flow: &types.FlowDefinition{Code: "test", Nodes: []*types.Node{step("A", "B"), step("B")}},
			msg:  "no start node",
		},
		{
			name: "cycle",
			flow: newFlow(step("S", "A"), step("A", "B"), step("B", "C"), step("C", "A")),
			msg:  "has circular dependencies",
		},
		{
			name: "self edge",
			flow: newFlow(step("S", "A"), step("A", "A")),
			msg:  "has circular dependencies",
		},
		{
			name: "unknown runner",
			flow: newFlow(step("S", "A"), &types.Node{NodeID: "A", Type: "nope"}),
			msg:  "node A",
		},
		{
			name: "duplicate node",
			flow: newFlow(step("S", "A"), step("A"), step("A")),
			msg:  "duplicate node A",
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := BuildGraph(c.flow, runners, "")
			assert.NotNil(t, err)
			assert.True(t, types.IsValidateFailed(err))
			assert.Contains(t, err.Error(), c.msg)
		})
	}
}

func TestBuildGraphEdgeIntoRoot(t *testing.T) {
	runners := stepRunners(t)

	g, err := BuildGraph(newFlow(step("S", "A"), step("A", "S")), runners, "")
	assert.Nil(t, err)
	a, _ := g.Vertex("A")
	assert.Empty(t, a.ChildIDs())
}

func TestBuildGraphAppointedRoot(t *testing.T) {
	runners := stepRunners(t)

	g, err := BuildGraph(newFlow(step("S", "W"), step("W", "X"), step("X")), runners, "W")
	assert.Nil(t, err)
	assert.Equal(t, "W", g.Root().ID())

	s, _ := g.Vertex("S")
	assert.Empty(t, s.ChildIDs())

	_, err = BuildGraph(newFlow(step("S", "W"), step("W")), runners, "missing")
	assert.True(t, types.IsValidateFailed(err))
}

func TestBuildGraphSkipsLoopBody(t *testing.T) {
	runners := stepRunners(t)

	body := step("B")
	body.ParentID = "L"
	g, err := BuildGraph(newFlow(step("S", "L", "B"), step("L"), body), runners, "")
	assert.Nil(t, err)

	_, exists := g.Vertex("B")
	assert.False(t, exists)
	s, _ := g.Vertex("S")
	assert.Equal(t, []string{"L"}, s.ChildIDs())
}

func runGraph(t *testing.T, flow *types.FlowDefinition) (*recorder, *types.ExecutionData) {
	rec := newRecorder()
	runners := NewRunnerRegistry()
	assert.Nil(t, runners.Register(stepType, "", rec.runner()))

	g, err := BuildGraph(flow, runners, "")
	assert.Nil(t, err)

	ed := types.NewExecutionData(types.TriggerAPI, types.Data{"q": "hi"})
	err = g.Run(context.Background(), ed, ed.TriggerData.Clone(), func(v *Vertex, vr *types.VertexResult) error {
		return nil
	})
	assert.Nil(t, err)
	return rec, ed
}

func TestGraphRunJoin(t *testing.T) {
	rec, _ := runGraph(t, newFlow(step("S", "A", "B"), step("A", "J"), step("B", "J"), step("J")))

	assert.ElementsMatch(t, []string{"S", "A", "B", "J"}, rec.called())
	assert.Equal(t, "J", rec.called()[3])
	assert.Equal(t, types.Data{"q": "hi"}, rec.front("S"))
	assert.Equal(t, types.Data{"A": true, "B": true}, rec.front("J"))
}

func TestGraphRunJoinPartialSelection(t *testing.T) {
	rec, ed := runGraph(t, newFlow(
		withConfig(step("S", "A", "B"), types.Data{"children": []string{"A"}}),
		step("A", "J"), step("B", "J"), step("J"),
	))

	assert.Equal(t, []string{"S", "A", "J"}, rec.called())
	assert.Equal(t, types.Data{"A": true}, rec.front("J"))

	_, exists := ed.NodeContext("B")
	assert.False(t, exists)
}

func TestGraphRunSkipPropagates(t *testing.T) {
	rec, _ := runGraph(t, newFlow(
		withConfig(step("S", "A", "B"), types.Data{"children": []string{"A"}}),
		withConfig(step("A", "J"), types.Data{"children": []string{}}),
		step("B", "J"), step("J", "K"), step("K"),
	))

	assert.Equal(t, []string{"S", "A"}, rec.called())
}

func TestGraphRunChildFilter(t *testing.T) {
	rec, _ := runGraph(t, newFlow(
		withConfig(step("S", "A", "B"), types.Data{"children": []string{"S", "ghost", "B", "B"}}),
		step("A"), step("B"),
	))

	assert.Equal(t, []string{"S", "B"}, rec.called())
}

func TestGraphRunHandlerStops(t *testing.T) {
	rec := newRecorder()
	runners := NewRunnerRegistry()
	assert.Nil(t, runners.Register(stepType, "", rec.runner()))

	g, err := BuildGraph(newFlow(step("S", "A"), step("A", "B"), step("B")), runners, "")
	assert.Nil(t, err)

	ed := types.NewExecutionData(types.TriggerAPI, nil)
	err = g.Run(context.Background(), ed, nil, func(v *Vertex, vr *types.VertexResult) error {
		if v.ID() == "A" {
			return types.NewExecuteFailedf("stop at %s", v.ID())
		}
		return nil
	})
	assert.True(t, types.IsExecuteFailed(err))
	assert.Equal(t, []string{"S", "A"}, rec.called())
}

func TestVertexRunRecordsDebug(t *testing.T) {
	rec, _ := runGraph(t, newFlow(step("S")))
	assert.Equal(t, []string{"S"}, rec.called())

	flow := newFlow(withConfig(step("S"), types.Data{"fail": "E1"}))
	runners := stepRunners(t)
	g, err := BuildGraph(flow, runners, "")
	assert.Nil(t, err)

	vr := g.Root().run(context.Background(), types.NewExecutionData(types.TriggerAPI, nil), nil)
	assert.Equal(t, types.Data{"S": true}, vr.Result)

	debug := g.Root().Node().Debug
	assert.True(t, debug.Executed)
	assert.False(t, debug.Success)
	assert.False(t, debug.Throw)
	assert.Equal(t, "E1", debug.ErrorCode)
	assert.Contains(t, debug.ErrorMessage, "S failed")
}

func TestVertexRunRecoversPanic(t *testing.T) {
	flow := newFlow(withConfig(step("S"), types.Data{"panic": true}))
	g, err := BuildGraph(flow, stepRunners(t), "")
	assert.Nil(t, err)

	g.Root().run(context.Background(), types.NewExecutionData(types.TriggerAPI, nil), nil)

	debug := g.Root().Node().Debug
	assert.False(t, debug.Success)
	assert.True(t, debug.Throw)
	assert.Contains(t, debug.ErrorMessage, "boom")
}
