package types

import "time"

// NodeDebugResult is the per-run outcome of one node.
type NodeDebugResult struct {
	Executed     bool          `json:"executed"`
	Success      bool          `json:"success"`
	Elapsed      time.Duration `json:"elapsed"`
	ErrorCode    string        `json:"error_code,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
	// Throw asks the executor to abort the whole run on failure.
	Throw        bool `json:"throw,omitempty"`
	Unauthorized bool `json:"unauthorized,omitempty"`
}

type Node struct {
	NodeID  string `json:"node_id"`
	Type    string `json:"type"`
	Version string `json:"version,omitempty"`
	// ParentID is set on loop body nodes; the owning loop schedules them.
	ParentID    string   `json:"parent_id,omitempty"`
	NextNodeIDs []string `json:"next_node_ids,omitempty"`
	Start       bool     `json:"start,omitempty"`
	Config      Data     `json:"config,omitempty"`

	Debug *NodeDebugResult `json:"debug,omitempty"`
}

func (n *Node) IsStart() bool {
	return n.Start
}

// Clone copies the definition and drops any debug result.
func (n *Node) Clone() *Node {
	c := *n
	c.NextNodeIDs = append([]string(nil), n.NextNodeIDs...)
	c.Config = n.Config.Clone()
	c.Debug = nil
	return &c
}

func (n *Node) Executed() bool {
	return n.Debug != nil && n.Debug.Executed
}

// VertexResult is what a node hands back to the executor.
type VertexResult struct {
	Result Data `json:"result,omitempty"`
	// ChildrenIDs starts as the declared children; runners narrow it to
	// branch, stop early or exit a loop.
	ChildrenIDs []string       `json:"children_ids"`
	DebugLogs   map[string]any `json:"debug_logs,omitempty"`
	// HistoryVertexResult marks a replay of an earlier result.
	HistoryVertexResult bool `json:"history_vertex_result,omitempty"`
}

func NewVertexResult(childrenIDs []string) *VertexResult {
	return &VertexResult{
		ChildrenIDs: append([]string(nil), childrenIDs...),
		DebugLogs:   make(map[string]any),
	}
}

func (vr *VertexResult) AddDebugLog(key string, value any) {
	if vr.DebugLogs == nil {
		vr.DebugLogs = make(map[string]any)
	}
	vr.DebugLogs[key] = value
}

// Stop ends this branch: nothing after the node is scheduled.
func (vr *VertexResult) Stop() {
	vr.ChildrenIDs = []string{}
}
