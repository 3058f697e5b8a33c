package types

import "context"

// FlowCallback replaces the node graph for code-defined flows.
type FlowCallback func(ctx context.Context, ed *ExecutionData) (Data, error)

type FlowDefinition struct {
	ID        string  `json:"id,omitempty"`
	Code      string  `json:"code"`
	Version   string  `json:"version"`
	Creator   string  `json:"creator,omitempty"`
	AgentID   string  `json:"agent_id,omitempty"`
	Nodes     []*Node `json:"nodes"`
	EndNodeID string  `json:"end_node_id,omitempty"`

	Callback FlowCallback `json:"-"`
}

func (f *FlowDefinition) HasCallback() bool {
	return f.Callback != nil
}

func (f *FlowDefinition) Node(nodeID string) (*Node, bool) {
	for _, n := range f.Nodes {
		if n.NodeID == nodeID {
			return n, true
		}
	}
	return nil, false
}

// Clone gives a run its own copy of the nodes so debug results never leak
// between runs of the same definition.
func (f *FlowDefinition) Clone() *FlowDefinition {
	c := *f
	c.Nodes = make([]*Node, 0, len(f.Nodes))
	for _, n := range f.Nodes {
		c.Nodes = append(c.Nodes, n.Clone())
	}
	return &c
}

// Children returns the nodes nested under parentID, in definition order.
func (f *FlowDefinition) Children(parentID string) []*Node {
	nodes := make([]*Node, 0)
	for _, n := range f.Nodes {
		if n.ParentID == parentID {
			nodes = append(nodes, n)
		}
	}
	return nodes
}
