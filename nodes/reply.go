package nodes

import (
	"context"

	"github.com/warriorguo/flowexec/types"
)

// runReply appends config "content", with {{ }} expressions filled in, to
// the replies and writes it to the stream.
func runReply(ctx context.Context, node *types.Node, vr *types.VertexResult, ed *types.ExecutionData, frontResults types.Data) error {
	raw, _ := node.Config.GetString("content")
	content, err := interpolate(raw, newEnv(ed, frontResults))
	if err != nil {
		return types.NewNodeErrorf("reply_render_failed", "%v", err)
	}

	msg := types.ReplyMessage{NodeID: node.NodeID, Type: types.ReplyTypeText, Content: content}
	ed.AddReply(msg)
	if err := ed.WriteStream(types.Data{"type": msg.Type, "node_id": msg.NodeID, "content": msg.Content}); err != nil {
		return types.NewNodeErrorf("stream_write_failed", "%v", err)
	}

	vr.Result = frontResults.Clone()
	vr.Result.Set("reply", content)
	return nil
}
