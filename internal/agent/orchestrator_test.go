package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"intentgraph/internal/graph"
	"intentgraph/internal/tools"
)

// scriptedClient replays a fixed sequence of replies and records every
// conversation it was sent.
type scriptedClient struct {
	mu       sync.Mutex
	script   []scriptedReply
	seen     [][]Message
	seenDefs []ToolDefinition
}

type scriptedReply struct {
	msg Message
	err error
}

func (c *scriptedClient) Complete(ctx context.Context, messages []Message, defs []ToolDefinition) (Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seen = append(c.seen, append([]Message(nil), messages...))
	c.seenDefs = defs
	if len(c.script) == 0 {
		return Message{}, errors.New("scripted client exhausted")
	}
	next := c.script[0]
	c.script = c.script[1:]
	return next.msg, next.err
}

func (c *scriptedClient) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

func finalAnswer(delta graph.Delta) Message {
	encoded, _ := json.Marshal(delta)
	return AssistantMessage(string(encoded), nil)
}

func smallGraph() graph.Graph {
	return graph.Graph{
		"orders": {
			ID:   "orders",
			Type: graph.TypeData,
			Name: "Order store",
		},
		"ingest": {
			ID:   "ingest",
			Type: graph.TypeBehavior,
			Name: "Ingest orders",
			EntryPoints: []graph.EntryPoint{
				{Kind: graph.KindREST, Name: "POST /api/orders"},
			},
			Outputs: []string{"orders"},
		},
	}
}

func newOrchestrator(client ChatClient, opts Options) *Orchestrator {
	return New(client, tools.NewDispatcher(smallGraph(), nil, nil), opts)
}

func TestProposeDeltaToolLoop(t *testing.T) {
	want := graph.Delta{
		Name: "add-audit",
		Operations: []graph.Operation{
			{Kind: graph.OpAdd, Node: graph.Node{ID: "audit", Type: graph.TypeBehavior, Name: "Audit", Inputs: []string{"orders"}}},
		},
	}
	client := &scriptedClient{script: []scriptedReply{
		{msg: AssistantMessage("looking at the store first", []ToolCall{
			{ID: "call-1", Name: "get_node", Args: map[string]any{"id": "orders"}},
		})},
		{msg: finalAnswer(want)},
	}}

	o := newOrchestrator(client, DefaultOptions())
	got, err := o.ProposeDelta(context.Background(), "add an audit trail", smallGraph())
	if err != nil {
		t.Fatalf("ProposeDelta: %v", err)
	}
	if got.Name != "add-audit" || len(got.Operations) != 1 {
		t.Errorf("delta = %+v", got)
	}

	// Second request must carry the assistant turn and the tool result.
	second := client.seen[1]
	last := second[len(second)-1]
	if last.Role != RoleTool || last.ToolCallID != "call-1" {
		t.Errorf("last message before final turn = %+v", last)
	}
	if !strings.Contains(last.Content, `"ok":true`) {
		t.Errorf("tool result not fed back: %s", last.Content)
	}
	if len(client.seenDefs) != 5 {
		t.Errorf("tool definitions sent = %d, want 5", len(client.seenDefs))
	}
}

func TestRunIterationLimit(t *testing.T) {
	// The model asks for a tool on every turn and never answers.
	var script []scriptedReply
	for i := 0; i < 10; i++ {
		script = append(script, scriptedReply{msg: AssistantMessage("", []ToolCall{
			{ID: "c", Name: "get_node", Args: map[string]any{"id": "orders"}},
		})})
	}
	client := &scriptedClient{script: script}

	opts := DefaultOptions()
	opts.MaxToolTurns = 3
	o := newOrchestrator(client, opts)

	_, err := o.ProposeDelta(context.Background(), "loop forever", smallGraph())
	if !errors.Is(err, ErrIterationLimit) {
		t.Fatalf("err = %v, want ErrIterationLimit", err)
	}
	if client.calls() != 3 {
		t.Errorf("backend calls = %d, want 3", client.calls())
	}
}

func TestCompleteWithRetryUsesHint(t *testing.T) {
	want := graph.Delta{
		Name:       "noop",
		Operations: []graph.Operation{{Kind: graph.OpRemove, Node: graph.Node{ID: "orders"}}},
	}
	client := &scriptedClient{script: []scriptedReply{
		{err: &RateLimitError{RetryAfter: 10 * time.Millisecond}},
		{err: &RateLimitError{}},
		{msg: finalAnswer(want)},
	}}

	opts := DefaultOptions()
	opts.BackoffBase = time.Millisecond
	o := newOrchestrator(client, opts)

	start := time.Now()
	got, err := o.ProposeDelta(context.Background(), "remove the store", smallGraph())
	if err != nil {
		t.Fatalf("ProposeDelta: %v", err)
	}
	if got.Name != "noop" {
		t.Errorf("delta = %+v", got)
	}
	if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
		t.Errorf("retry did not honor the wait hint, elapsed %v", elapsed)
	}
	if client.calls() != 3 {
		t.Errorf("backend calls = %d, want 3", client.calls())
	}
}

func TestCompleteWithRetryExhausted(t *testing.T) {
	client := &scriptedClient{script: []scriptedReply{
		{err: &RateLimitError{}},
		{err: &RateLimitError{}},
		{err: &RateLimitError{}},
	}}

	opts := DefaultOptions()
	opts.MaxRetries = 2
	opts.BackoffBase = time.Millisecond
	o := newOrchestrator(client, opts)

	_, err := o.ProposeDelta(context.Background(), "anything", smallGraph())
	if err == nil || !strings.Contains(err.Error(), "max retries exceeded") {
		t.Fatalf("err = %v", err)
	}
	if client.calls() != 3 {
		t.Errorf("backend calls = %d, want 3 (initial + 2 retries)", client.calls())
	}
}

func TestCompleteWithRetryNonRetryableError(t *testing.T) {
	boom := errors.New("invalid api key")
	client := &scriptedClient{script: []scriptedReply{{err: boom}}}

	o := newOrchestrator(client, DefaultOptions())
	_, err := o.ProposeDelta(context.Background(), "anything", smallGraph())
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want the backend error unchanged", err)
	}
	if client.calls() != 1 {
		t.Errorf("backend calls = %d, want 1 (no retry)", client.calls())
	}
}

func TestRunUnparseableAnswer(t *testing.T) {
	client := &scriptedClient{script: []scriptedReply{
		{msg: AssistantMessage("I think you should add an audit node.", nil)},
	}}

	o := newOrchestrator(client, DefaultOptions())
	_, err := o.ProposeDelta(context.Background(), "add audit", smallGraph())

	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("err = %v, want *ParseError", err)
	}
	if !strings.Contains(parseErr.Raw, "audit node") {
		t.Errorf("ParseError should keep the raw answer, got: %q", parseErr.Raw)
	}
}

func TestRefineDeltaOverlaysDraft(t *testing.T) {
	draft := graph.Delta{
		Name: "add-audit",
		Operations: []graph.Operation{
			{Kind: graph.OpAdd, Node: graph.Node{ID: "audit", Type: graph.TypeBehavior, Name: "Audit"}},
		},
	}
	client := &scriptedClient{script: []scriptedReply{
		{msg: AssistantMessage("", []ToolCall{
			{ID: "c1", Name: "get_node", Args: map[string]any{"id": "audit"}},
		})},
		{msg: finalAnswer(draft)},
	}}

	o := newOrchestrator(client, DefaultOptions())
	if _, err := o.RefineDelta(context.Background(), draft, "looks fine, keep it"); err != nil {
		t.Fatalf("RefineDelta: %v", err)
	}

	// The drafted node must be visible to tool calls even though it is not
	// in the base graph.
	second := client.seen[1]
	toolResult := second[len(second)-1]
	if !strings.Contains(toolResult.Content, `"ok":true`) || !strings.Contains(toolResult.Content, `"audit"`) {
		t.Errorf("draft overlay not visible to tools: %s", toolResult.Content)
	}

	// The seed prompt embeds the draft for revision.
	seed := client.seen[0][1]
	if seed.Role != RoleUser || !strings.Contains(seed.Content, "add-audit") {
		t.Errorf("refine seed missing draft: %+v", seed)
	}
}

func TestTweakNodeSeedsNeighborhood(t *testing.T) {
	want := graph.Delta{
		Name: "rename-store",
		Operations: []graph.Operation{
			{Kind: graph.OpUpdate, Node: graph.Node{ID: "orders", Type: graph.TypeData, Name: "Order ledger"}},
		},
	}
	client := &scriptedClient{script: []scriptedReply{{msg: finalAnswer(want)}}}

	o := newOrchestrator(client, DefaultOptions())
	got, err := o.TweakNode(context.Background(), smallGraph(), "orders", "rename to Order ledger")
	if err != nil {
		t.Fatalf("TweakNode: %v", err)
	}
	if got.Operations[0].Node.Name != "Order ledger" {
		t.Errorf("delta = %+v", got)
	}

	seed := client.seen[0][1].Content
	if !strings.Contains(seed, `"orders"`) || !strings.Contains(seed, `"ingest"`) {
		t.Errorf("tweak seed should embed node and neighbors:\n%s", seed)
	}
}
