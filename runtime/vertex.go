package runtime

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/warriorguo/flowexec/types"
	"github.com/warriorguo/flowexec/utils"
)

// Vertex is a node bound to its runner for one run.
type Vertex struct {
	node   *types.Node
	runner types.NodeRunner

	children []*Vertex
	parents  []*Vertex
	root     bool
}

func newVertex(node *types.Node, runner types.NodeRunner) *Vertex {
	return &Vertex{node: node, runner: runner}
}

func (v *Vertex) ID() string {
	return v.node.NodeID
}

func (v *Vertex) Node() *types.Node {
	return v.node
}

func (v *Vertex) IsRoot() bool {
	return v.root
}

func (v *Vertex) ChildIDs() []string {
	ids := make([]string, 0, len(v.children))
	for _, c := range v.children {
		ids = append(ids, c.ID())
	}
	return ids
}

func (v *Vertex) hasChild(id string) bool {
	for _, c := range v.children {
		if c.ID() == id {
			return true
		}
	}
	return false
}

// run executes the bound runner and records the outcome on the node. The
// returned children are always a subset of the vertex's edges.
func (v *Vertex) run(ctx context.Context, ed *types.ExecutionData, frontResults types.Data) *types.VertexResult {
	vr := types.NewVertexResult(v.ChildIDs())
	debug := &types.NodeDebugResult{Executed: true}

	start := time.Now()
	err := v.runSafely(ctx, vr, ed, frontResults)
	debug.Elapsed = time.Since(start)

	if err == nil {
		debug.Success = true
	} else {
		debug.ErrorMessage = err.Error()
		if ne, ok := types.AsNodeError(err); ok {
			debug.ErrorCode = ne.Code
			debug.Throw = ne.Throw
			debug.Unauthorized = ne.Unauthorized
		}
		if _, panicked := err.(*panicError); panicked {
			debug.Throw = true
		}
	}
	v.node.Debug = debug

	vr.ChildrenIDs = v.filterChildren(vr.ChildrenIDs)
	if vr.Result != nil {
		ed.SaveNodeContext(v.ID(), vr.Result)
	}
	return vr
}

type panicError struct {
	nodeID string
	value  any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic on %s: %v", e.nodeID, e.value)
}

func (v *Vertex) runSafely(ctx context.Context, vr *types.VertexResult, ed *types.ExecutionData, frontResults types.Data) (retErr error) {
	defer func() {
		if r := recover(); r != nil {
			retErr = &panicError{nodeID: v.ID(), value: r}
		}
	}()
	return v.runner.Execute(ctx, v.node, vr, ed, frontResults)
}

func (v *Vertex) filterChildren(ids []string) []string {
	return utils.FilterSlice(utils.UniqueSlice(ids), func(id string) bool {
		if id == v.ID() {
			log.Warnf("node %s selected itself as child, ignored", id)
			return false
		}
		if !v.hasChild(id) {
			log.Warnf("node %s selected undeclared child %s, ignored", v.ID(), id)
			return false
		}
		return true
	})
}
