package runtime

import (
	"context"

	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"

	"github.com/warriorguo/flowexec/types"
)

// Graph is the top-level dependency graph of one run. Loop body nodes are
// left out; their loop node schedules them.
type Graph struct {
	vertices map[string]*Vertex
	order    []*Vertex
	root     *Vertex
}

// BuildGraph binds every top-level node to its runner and links the declared
// edges. appointRootID, when set, replaces the start node as root; edges into
// the root are never added.
func BuildGraph(flow *types.FlowDefinition, runners types.RunnerRegistry, appointRootID string) (*Graph, error) {
	g := &Graph{vertices: make(map[string]*Vertex)}

	for _, node := range flow.Nodes {
		if node.ParentID != "" {
			continue
		}
		if _, exists := g.vertices[node.NodeID]; exists {
			return nil, types.NewValidateFailedf("duplicate node %s", node.NodeID)
		}
		runner, err := runners.Resolve(node.Type, node.Version)
		if err != nil {
			return nil, types.NewValidateFailedf("node %s: %v", node.NodeID, err)
		}
		v := newVertex(node, runner)
		g.vertices[node.NodeID] = v
		g.order = append(g.order, v)

		if g.root != nil {
			continue
		}
		if appointRootID != "" {
			if node.NodeID == appointRootID {
				g.root = v
			}
		} else if node.IsStart() {
			g.root = v
		}
	}
	if g.root == nil {
		return nil, types.NewValidateFailedf("no start node")
	}
	g.root.root = true

	for _, from := range g.order {
		for _, toID := range from.node.NextNodeIDs {
			to, exists := g.vertices[toID]
			if !exists {
				log.Warnf("flow %s: edge %s -> %s points to no top-level node", flow.Code, from.ID(), toID)
				continue
			}
			if to == g.root || from.hasChild(toID) {
				continue
			}
			from.children = append(from.children, to)
			to.parents = append(to.parents, from)
		}
	}

	if err := g.detectCycles(); err != nil {
		return nil, errors.Trace(err)
	}
	return g, nil
}

func (g *Graph) Root() *Vertex {
	return g.root
}

func (g *Graph) Vertex(id string) (*Vertex, bool) {
	v, exists := g.vertices[id]
	return v, exists
}

func (g *Graph) detectCycles() error {
	const (
		unvisited = 0
		visiting  = 1
		visited   = 2
	)
	state := make(map[*Vertex]int, len(g.order))

	var dfs func(v *Vertex) bool
	dfs = func(v *Vertex) bool {
		state[v] = visiting
		for _, next := range v.children {
			switch state[next] {
			case visiting:
				return true
			case unvisited:
				if dfs(next) {
					return true
				}
			}
		}
		state[v] = visited
		return false
	}

	for _, v := range g.order {
		if state[v] == unvisited && dfs(v) {
			return types.NewValidateFailedf("has circular dependencies")
		}
	}
	return nil
}

// reachable returns the vertices reachable from the root through edges.
func (g *Graph) reachable() map[*Vertex]bool {
	seen := map[*Vertex]bool{g.root: true}
	stack := []*Vertex{g.root}
	for len(stack) > 0 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, c := range v.children {
			if !seen[c] {
				seen[c] = true
				stack = append(stack, c)
			}
		}
	}
	return seen
}

type joinState struct {
	required int
	resolved int
	selected bool
}

// VertexHandler is called after every executed vertex. A non-nil error
// stops the run.
type VertexHandler func(v *Vertex, vr *types.VertexResult) error

// Run drives the graph from the root. A vertex runs once every reachable
// predecessor has either run or been skipped, and at least one predecessor
// that ran selected it; otherwise it is skipped and its children are
// released without selection.
func (g *Graph) Run(ctx context.Context, ed *types.ExecutionData, input types.Data, handler VertexHandler) error {
	reachable := g.reachable()
	joins := make(map[*Vertex]*joinState, len(reachable))
	for v := range reachable {
		js := &joinState{}
		for _, p := range v.parents {
			if reachable[p] {
				js.required++
			}
		}
		joins[v] = js
	}

	results := make(map[*Vertex]*types.VertexResult, len(reachable))
	queue := []*Vertex{g.root}

	var release func(parent, child *Vertex, selected bool)
	release = func(parent, child *Vertex, selected bool) {
		js := joins[child]
		js.resolved++
		if selected {
			js.selected = true
		}
		if js.resolved < js.required {
			return
		}
		if js.selected {
			queue = append(queue, child)
			return
		}
		log.Debugf("run %s: skip node %s", ed.RunID, child.ID())
		for _, c := range child.children {
			release(child, c, false)
		}
	}

	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]

		front := input
		if !v.root {
			front = mergeFrontResults(v, results)
		}
		vr := v.run(ctx, ed, front)
		results[v] = vr

		if err := handler(v, vr); err != nil {
			return errors.Trace(err)
		}

		for _, c := range v.children {
			release(v, c, containsID(vr.ChildrenIDs, c.ID()))
		}
	}
	return nil
}

func mergeFrontResults(v *Vertex, results map[*Vertex]*types.VertexResult) types.Data {
	front := types.Data{}
	for _, p := range v.parents {
		vr, executed := results[p]
		if !executed {
			continue
		}
		for k, val := range vr.Result {
			front[k] = val
		}
	}
	return front
}

func containsID(ids []string, id string) bool {
	for _, i := range ids {
		if i == id {
			return true
		}
	}
	return false
}
