package nodes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warriorguo/flowexec/stream"
	"github.com/warriorguo/flowexec/types"
)

func childFlow(replyContent string) *types.FlowDefinition {
	return &types.FlowDefinition{
		Code:      "child",
		Version:   "v1",
		EndNodeID: "end",
		Nodes: []*types.Node{
			{NodeID: "start", Type: TypeStart, Start: true, NextNodeIDs: []string{"say"}},
			node("say", TypeReply, types.Data{"content": replyContent}, "end"),
			node("end", TypeEnd, nil),
		},
	}
}

func parentFlow(flowCode string) *types.FlowDefinition {
	return &types.FlowDefinition{
		Code:      "parent",
		Version:   "v1",
		EndNodeID: "end",
		Nodes: []*types.Node{
			{NodeID: "start", Type: TypeStart, Start: true, NextNodeIDs: []string{"sub"}},
			node("sub", TypeSubflow, types.Data{"flow_code": flowCode, "flow_version": "v1"}, "end"),
			node("end", TypeEnd, nil),
		},
	}
}

func TestSubflow(t *testing.T) {
	en, _ := newTestEngine(t, flowMap{"child": childFlow("child says {{ q }}")})
	ctx := context.Background()

	ch := stream.NewBufferChannel()
	ed := types.NewExecutionData(types.TriggerAPI, types.Data{"q": "hi"})
	ed.ExecutionType = types.ExecutionTypeAPI
	ed.AttachStream(ch)

	e, err := en.NewExecutor(ctx, parentFlow("child"), ed)
	require.Nil(t, err)
	result, err := e.Execute(ctx)
	assert.Nil(t, err)
	assert.True(t, e.Successful())

	assert.Equal(t, types.Data{"q": "hi", "reply": "child says hi"}, result)

	replies := ed.Replies()
	require.Len(t, replies, 1)
	assert.Equal(t, "child says hi", replies[0].Content)

	chunks := ch.Chunks()
	require.Len(t, chunks, 2)
	assert.Equal(t, types.StreamEndSentinel, chunks[1])
	assert.Equal(t, types.StreamFinished, ed.StreamStatus)
	assert.Equal(t, 1, ch.EndCount())

	assert.Equal(t, 0, en.Executions().Len())
	assert.Equal(t, 0, en.Flows().Len())
}

func TestSubflowNotFound(t *testing.T) {
	en, _ := newTestEngine(t, flowMap{})
	ctx := context.Background()

	e, err := en.NewExecutor(ctx, parentFlow("nope"), chatData("conv", nil))
	require.Nil(t, err)
	_, err = e.Execute(ctx)
	assert.Nil(t, err)
	assert.False(t, e.Successful())
	assert.Equal(t, "sub", e.FailedNode())
	assert.Equal(t, "subflow_not_found", e.Trace()["sub"].ErrorCode)
}

func TestSubflowChildFailed(t *testing.T) {
	en, _ := newTestEngine(t, flowMap{"child": childFlow("{{ 1 +* }}")})
	ctx := context.Background()

	e, err := en.NewExecutor(ctx, parentFlow("child"), chatData("conv", nil))
	require.Nil(t, err)
	_, err = e.Execute(ctx)
	assert.Nil(t, err)
	assert.False(t, e.Successful())
	assert.Equal(t, "subflow_failed", e.Trace()["sub"].ErrorCode)
	assert.False(t, e.Trace()["sub"].Throw)
}
