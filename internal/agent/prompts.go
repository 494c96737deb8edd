package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"intentgraph/internal/graph"
)

// systemPrompt frames the task for every conversation: the graph model, the
// available tools, and the exact answer format.
const systemPrompt = `You are an intent-graph editor. An intent graph describes a software system
as nodes (id, type, name, description, invariants, questions, entry points,
inputs, outputs) connected by id references. Valid node types: behavior,
decision, data, integration, view. Valid entry-point kinds: REST, JOB,
LISTENER, UI, OTHER. Edges are directed: a node's inputs are upstream node
ids, its outputs are downstream node ids. The graph must stay acyclic and
every referenced id must exist.

You change the graph only by proposing a delta: an ordered list of add,
update, and remove operations. Updates replace the whole node. Removes need
only the node id.

Use the tools to explore the current graph before proposing changes. Tool
results already include any operations you have proposed so far in this
conversation.

When you are done exploring, answer with ONLY a JSON object of this shape,
optionally inside a ` + "```json" + ` fence:

{
  "name": "short-kebab-case-delta-name",
  "description": "what this delta changes and why",
  "operations": [
    {"kind": "add", "node": {"id": "...", "type": "behavior", "name": "...", "inputs": [], "outputs": []}},
    {"kind": "update", "node": {"id": "...", "type": "data", "name": "..."}},
    {"kind": "remove", "node": {"id": "..."}}
  ]
}

Do not include any prose outside the JSON object in your final answer.`

// proposePrompt seeds a conversation that drafts a delta from a free-form
// request against the current graph.
func proposePrompt(request string, base graph.Graph) string {
	var sb strings.Builder
	sb.WriteString("Propose a delta for the following request.\n\nRequest:\n")
	sb.WriteString(request)
	sb.WriteString("\n\nThe graph currently has ")
	fmt.Fprintf(&sb, "%d nodes", len(base))
	if len(base) > 0 {
		sb.WriteString(": ")
		sb.WriteString(strings.Join(base.IDs(), ", "))
	}
	sb.WriteString(".\nExplore the relevant parts with the tools before answering.")
	return sb.String()
}

// refinePrompt seeds a conversation that revises an existing delta based on
// reviewer feedback. The draft is embedded verbatim so the model revises
// rather than restarts.
func refinePrompt(draft graph.Delta, feedback string) string {
	encoded, err := json.MarshalIndent(draft, "", "  ")
	if err != nil {
		encoded = []byte(fmt.Sprintf("%+v", draft))
	}

	var sb strings.Builder
	sb.WriteString("Revise the delta below according to the feedback. Keep operations that\n")
	sb.WriteString("the feedback does not touch. Answer with the complete revised delta.\n\nCurrent delta:\n")
	sb.Write(encoded)
	sb.WriteString("\n\nFeedback:\n")
	sb.WriteString(feedback)
	return sb.String()
}

// tweakPrompt seeds a conversation for a targeted change to one node. The
// focal node and its one-hop neighborhood are embedded so small edits need
// no exploration round-trips.
func tweakPrompt(base graph.Graph, nodeID, instruction string) string {
	ix := graph.NewIndex(base)

	var sb strings.Builder
	sb.WriteString("Apply a targeted change to one node.\n\nInstruction:\n")
	sb.WriteString(instruction)
	sb.WriteString("\n\nFocal node ")
	sb.WriteString(nodeID)

	node, ok := ix.Node(nodeID)
	if !ok {
		sb.WriteString(" does not exist yet; if the instruction implies creating it, add it.")
		return sb.String()
	}

	sb.WriteString(":\n")
	writeNodeJSON(&sb, node)

	if up := ix.Upstream(nodeID); len(up) > 0 {
		sb.WriteString("\nUpstream neighbors:\n")
		for _, n := range up {
			writeNodeJSON(&sb, n)
		}
	}
	if down := ix.Downstream(nodeID); len(down) > 0 {
		sb.WriteString("\nDownstream neighbors:\n")
		for _, n := range down {
			writeNodeJSON(&sb, n)
		}
	}
	sb.WriteString("\nUse the tools if you need context beyond this neighborhood.")
	return sb.String()
}

// subAgentPrompt seeds a delegated sub-task conversation.
func subAgentPrompt(task, contextHint string) string {
	var sb strings.Builder
	sb.WriteString("You are handling a delegated sub-task of a larger graph change.\n\nTask:\n")
	sb.WriteString(task)
	if contextHint != "" {
		sb.WriteString("\n\nContext from the delegating agent:\n")
		sb.WriteString(contextHint)
	}
	sb.WriteString("\n\nPropose a delta covering only this task.")
	return sb.String()
}

func writeNodeJSON(sb *strings.Builder, node graph.Node) {
	encoded, err := json.Marshal(node)
	if err != nil {
		fmt.Fprintf(sb, "%+v\n", node)
		return
	}
	sb.Write(encoded)
	sb.WriteByte('\n')
}
