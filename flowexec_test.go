package flowexec

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warriorguo/flowexec/nodes"
	"github.com/warriorguo/flowexec/runtime"
	"github.com/warriorguo/flowexec/types"
)

func askNameFlow() *types.FlowDefinition {
	return &types.FlowDefinition{
		Code:      "ask-name",
		Version:   "v1",
		EndNodeID: "end",
		Nodes: []*types.Node{
			{NodeID: "start", Type: nodes.TypeStart, Start: true, NextNodeIDs: []string{"ask"}},
			{NodeID: "ask", Type: nodes.TypeReply, Config: types.Data{"content": "what is your name?"}, NextNodeIDs: []string{"wait"}},
			{NodeID: "wait", Type: nodes.TypeWait, NextNodeIDs: []string{"greet"}},
			{NodeID: "greet", Type: nodes.TypeReply, Config: types.Data{"content": "nice to meet you, {{ answer }}"}, NextNodeIDs: []string{"end"}},
			{NodeID: "end", Type: nodes.TypeEnd, Config: types.Data{"fields": []any{"reply"}}},
		},
	}
}

func chat(t *testing.T, en *runtime.Engine, trigger types.Data) (*types.ExecutionData, types.Data) {
	ed := types.NewExecutionData(types.TriggerChat, trigger)
	ed.ConversationID = "conv-1"
	ed.DataIsolation.TenantID = "acme"

	result, err := en.Execute(context.Background(), askNameFlow(), ed)
	require.Nil(t, err)
	return ed, result
}

func testAskName(t *testing.T, en *runtime.Engine) {
	first, _ := chat(t, en, types.Data{"q": "hello"})
	replies := first.Replies()
	require.Len(t, replies, 1)
	assert.Equal(t, "what is your name?", replies[0].Content)

	second, result := chat(t, en, types.Data{"answer": "bob"})
	replies = second.Replies()
	require.Len(t, replies, 2)
	assert.Equal(t, "nice to meet you, bob", replies[1].Content)
	assert.Equal(t, types.Data{"reply": "nice to meet you, bob"}, result)

	entity, err := en.ExecuteLogs().Get(context.Background(), second.ExecuteLogID)
	assert.Nil(t, err)
	assert.Equal(t, types.Completed, entity.Status)
}

func TestNewEngineMemStore(t *testing.T) {
	en, err := NewEngine(types.EnableMemStore(), types.DisableAutoStart())
	require.Nil(t, err)
	defer en.Close(context.Background())

	testAskName(t, en)
}

func TestNewEngineSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flowexec.db")

	en, err := NewEngine(types.WithSQLitePath(path), types.DisableAutoStart())
	require.Nil(t, err)
	testAskName(t, en)
	en.WaitArchives()
	assert.Nil(t, en.Close(context.Background()))
}

func TestNewEngineBadPostgres(t *testing.T) {
	_, err := NewEngine(types.WithPostgresConfig(&types.PostgresConfig{Host: "", Port: 5432}))
	assert.NotNil(t, err)
}
