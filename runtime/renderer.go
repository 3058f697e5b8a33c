package runtime

import (
	"fmt"
	"strings"

	"github.com/warriorguo/flowexec/types"
	"github.com/warriorguo/flowexec/utils"
)

// RenderDOT draws a flow in graphviz DOT. Nodes that ran are filled green or
// red by their debug result; loop bodies become clusters of their loop node.
func RenderDOT(flow *types.FlowDefinition) string {
	r := newFlowRenderer(flow)
	return r.generateDOT()
}

// RenderDOT draws the run's own copy of the flow with its debug results.
func (e *Executor) RenderDOT() string {
	return RenderDOT(e.flow)
}

type flowRenderer struct {
	flow *types.FlowDefinition
	sb   *strings.Builder
}

func newFlowRenderer(flow *types.FlowDefinition) *flowRenderer {
	return &flowRenderer{flow: flow, sb: &strings.Builder{}}
}

func (d *flowRenderer) generateDOT() string {
	d.write("digraph D {")
	d.drawNodes("", "")
	d.drawLinks()
	d.write("label=%s", quoteString(d.flow.Code+"@"+d.flow.Version))
	d.write("}")
	return d.sb.String()
}

func (d *flowRenderer) drawNodes(parentID, indent string) {
	for _, node := range d.flow.Children(parentID) {
		body := d.flow.Children(node.NodeID)
		if len(body) == 0 {
			d.drawNode(node, indent)
			continue
		}
		d.write("%ssubgraph cluster_%s {", indent, idString(node.NodeID))
		d.write("%sstyle=filled", indent)
		d.write("%scolor=lightgrey", indent)
		d.write("%slabel=%s", indent, quoteString(node.NodeID))
		d.drawNode(node, indent)
		d.drawNodes(node.NodeID, indent+"  ")
		d.write("%s}", indent)
	}
}

func (d *flowRenderer) drawNode(node *types.Node, indent string) {
	shape := "record"
	if node.IsStart() || node.NodeID == d.flow.EndNodeID {
		shape = "oval"
	}
	d.write("%s%s [label=%s shape=\"%s\"%s]", indent, idString(node.NodeID),
		quoteString(node.NodeID+"\\n"+node.Type), shape, calcAttr(node))
}

func calcAttr(node *types.Node) string {
	if node.Debug == nil || !node.Debug.Executed {
		return ""
	}
	color := "green"
	if !node.Debug.Success {
		color = "red"
	}
	return fmt.Sprintf(" style=\"filled\" color=\"%s\" comment=\"%s\"", color, packToComment(node.Debug))
}

func (d *flowRenderer) drawLinks() {
	for _, from := range d.flow.Nodes {
		for _, to := range from.NextNodeIDs {
			d.write("%s -> %s", idString(from.NodeID), idString(to))
		}
	}
}

func packToComment(r *types.NodeDebugResult) string {
	b, _ := utils.Serialize(r)
	return formatNL(addSlashes(string(b)))
}

func (d *flowRenderer) write(format string, s ...any) {
	d.sb.WriteString(fmt.Sprintf(format+"\n", s...))
}

var (
	slashesToken = []string{"\\", "\"", "'", " "}
)

func addSlashes(s string) string {
	for _, token := range slashesToken {
		s = strings.ReplaceAll(s, token, "\\"+token)
	}
	return s
}

func formatNL(s string) string {
	return strings.ReplaceAll(s, "\n", "\\n")
}

func quoteString(s string) string {
	return "\"" + strings.ReplaceAll(s, "\"", "\\\"") + "\""
}

var idleChars = []string{" ", "'", "\"", "(", ")", "*", "&", "^", "%", "$", "#", "@", "!", "?", "<", ">", "[", "]", "{", "}", ".", "-", ":"}

func idString(s string) string {
	for _, ch := range idleChars {
		s = strings.ReplaceAll(s, ch, "_")
	}
	return s
}
