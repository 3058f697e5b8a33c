package types

import (
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordStream struct {
	chunks []any
}

func (r *recordStream) Write(chunk any) error { r.chunks = append(r.chunks, chunk); return nil }
func (r *recordStream) End() error            { return nil }
func (r *recordStream) Close() error          { return nil }

func TestExecutionDataRestore(t *testing.T) {
	saved := NewExecutionData(TriggerChat, Data{"message": "hi"})
	saved.OriginConversationID = "origin-1"
	saved.AddReply(ReplyMessage{NodeID: "reply", Type: ReplyTypeText, Content: "what is your name?"})
	saved.SaveNodeContext("start", Data{"message": "hi"})

	b, err := saved.Snapshot()
	require.Nil(t, err)

	ed := NewExecutionData(TriggerChat, Data{"message": "bob"})
	assert.Nil(t, ed.Restore(b))

	assert.Equal(t, TriggerWaitMessage, ed.TriggerType)
	assert.NotEqual(t, saved.RunID, ed.RunID)
	assert.Equal(t, "origin-1", ed.OriginConversationID)
	assert.Equal(t, "bob", ed.TriggerData["message"])

	replies := ed.Replies()
	require.Len(t, replies, 1)
	assert.Equal(t, "what is your name?", replies[0].Content)

	start, exists := ed.NodeContext("start")
	assert.True(t, exists)
	assert.Equal(t, "hi", start["message"])

	assert.NotNil(t, ed.Restore([]byte("{broken")))
}

func TestExecutionDataChild(t *testing.T) {
	parent := NewExecutionData(TriggerAPI, nil)
	parent.ExecutionType = ExecutionTypeAPI
	parent.DataIsolation.TenantID = "tenant"
	parent.AttachStream(&recordStream{})
	parent.SaveNodeContext("a", Data{"x": 1})

	child := parent.NewChild(TriggerParamCall, Data{"p": 1})
	assert.Equal(t, 1, child.Level)
	assert.Equal(t, parent.RunID, child.ParentRunID)
	assert.Equal(t, "tenant", child.DataIsolation.TenantID)
	assert.True(t, child.Stream)
	assert.Equal(t, parent.StreamChannel(), child.StreamChannel())
	_, exists := child.NodeContext("a")
	assert.False(t, exists)
}

func TestExecutionDataStream(t *testing.T) {
	ed := NewExecutionData(TriggerAPI, nil)
	assert.Nil(t, ed.WriteStream("dropped"))
	assert.Equal(t, StreamNotStarted, ed.StreamStatus)

	rs := &recordStream{}
	ed.AttachStream(rs)
	assert.Nil(t, ed.WriteStream("hello"))
	assert.Equal(t, StreamProcessing, ed.StreamStatus)

	assert.Nil(t, ed.EmitError("n1", "boom"))
	assert.Len(t, rs.chunks, 2)
	assert.Equal(t, 0, ed.ReplyCount())

	ed.StreamStatus = StreamFinished
	assert.Nil(t, ed.WriteStream("late"))
	assert.Len(t, rs.chunks, 2)

	plain := NewExecutionData(TriggerAPI, nil)
	assert.Nil(t, plain.EmitError("n1", "boom"))
	assert.Equal(t, ReplyTypeError, plain.Replies()[0].Type)
	assert.Len(t, plain.RepliesSince(0), 1)
	assert.Nil(t, plain.RepliesSince(1))
}

func TestErrorTaxonomy(t *testing.T) {
	err := errors.Trace(NewValidateFailedf("no start node"))
	assert.True(t, IsValidateFailed(err))
	assert.False(t, IsExecuteFailed(err))
	assert.Contains(t, err.Error(), "no start node")

	err = errors.Annotatef(NewExecuteFailedf("%s is running", "log-1"), "execute")
	assert.True(t, IsExecuteFailed(err))
	assert.Contains(t, err.Error(), "log-1 is running")

	err = errors.Trace(NewBusinessError("403001", errors.New("no permission")))
	be, ok := AsBusinessError(err)
	assert.True(t, ok)
	assert.Equal(t, "403001", be.Code)

	ne, ok := AsNodeError(NewUnauthorizedNodeError("401", "denied"))
	assert.True(t, ok)
	assert.True(t, ne.Throw)
	assert.True(t, ne.Unauthorized)
	assert.False(t, NewNodeErrorf("500", "soft").Throw)
	assert.True(t, NewNodeErrorf("500", "hard").Fatal().Throw)
}
