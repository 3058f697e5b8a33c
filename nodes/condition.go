package nodes

import (
	"context"

	"github.com/warriorguo/flowexec/types"
)

type conditionBranch struct {
	Expression string `json:"expression"`
	Next       string `json:"next"`
}

// runCondition continues to the "next" of the first branch whose
// expression holds, or to "default". With neither the branch stops here.
func runCondition(ctx context.Context, node *types.Node, vr *types.VertexResult, ed *types.ExecutionData, frontResults types.Data) error {
	branches := make([]conditionBranch, 0)
	if _, exists := node.Config.Get("branches"); exists {
		if err := node.Config.GetStruct("branches", &branches); err != nil {
			vr.Stop()
			return types.NewNodeErrorf("condition_invalid", "branches of %s: %v", node.NodeID, err)
		}
	}

	vr.Result = frontResults.Clone()
	env := newEnv(ed, frontResults)
	for i, branch := range branches {
		ok, err := evalBool(branch.Expression, env)
		if err != nil {
			vr.Stop()
			return types.NewNodeErrorf("condition_invalid", "%v", err)
		}
		vr.AddDebugLog(branch.Expression, ok)
		if ok {
			vr.ChildrenIDs = []string{branch.Next}
			vr.Result.Set("branch", i)
			return nil
		}
	}

	if next, _ := node.Config.GetString("default"); next != "" {
		vr.ChildrenIDs = []string{next}
		vr.Result.Set("branch", -1)
		return nil
	}
	vr.Stop()
	return nil
}
