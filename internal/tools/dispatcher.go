package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"intentgraph/internal/graph"
	"intentgraph/internal/logging"
	"intentgraph/internal/sandbox"
)

// SpawnFunc delegates a scoped exploration task to a sub-agent and returns
// the delta it proposed. A (nil, nil) return means the delegation was refused
// because the concurrent sub-agent budget is saturated.
type SpawnFunc func(ctx context.Context, task, contextHint string) (*graph.Delta, error)

// Dispatcher wires the fixed tool surface to a base graph snapshot plus the
// delta being drafted. Every tool call sees the merged view of both, so the
// model can inspect the effect of operations it has already proposed.
//
// Tool results are always JSON documents with an "ok" field; a failed lookup
// or a denied script is reported inside the result, never as a Go error, so
// the conversation loop keeps running and the model can self-correct.
type Dispatcher struct {
	mu       sync.Mutex
	base     graph.Graph
	pending  *graph.Delta
	registry *Registry
	sandbox  *sandbox.Executor
	spawn    SpawnFunc
}

// NewDispatcher builds a dispatcher over the given base graph. The sandbox
// executor and spawn function are optional; when absent the corresponding
// tools report that the capability is unavailable.
func NewDispatcher(base graph.Graph, sb *sandbox.Executor, spawn SpawnFunc) *Dispatcher {
	d := &Dispatcher{
		base:     base,
		registry: NewRegistry(),
		sandbox:  sb,
		spawn:    spawn,
	}
	d.registerAll()
	return d
}

// SetPending replaces the in-progress delta overlaid on subsequent tool
// calls. Pass nil to query the bare base graph.
func (d *Dispatcher) SetPending(delta *graph.Delta) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = delta
}

// Definitions returns the tool declarations for attaching to a chat request.
func (d *Dispatcher) Definitions() []Definition {
	return d.registry.Definitions()
}

// Dispatch executes the named tool and returns its JSON result. Unknown
// tools and argument faults come back as error results so they can be fed
// to the model as tool output.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args map[string]any) string {
	out, err := d.registry.Execute(ctx, name, args)
	if err != nil {
		logging.Tools("Dispatch %s failed: %v", name, err)
		return errResult(err.Error())
	}
	return out
}

// index builds a fresh index over the merged view of the base graph and the
// pending delta. Recomputed on every call so each tool observes the latest
// drafted operations.
func (d *Dispatcher) index() *graph.Index {
	d.mu.Lock()
	defer d.mu.Unlock()
	return graph.NewIndex(graph.MergedView(d.base, d.pending))
}

func (d *Dispatcher) registerAll() {
	d.registry.MustRegister(&Tool{
		Name:        "get_node",
		Description: "Fetch a single node by its id, including its one-hop upstream and downstream neighbor ids.",
		Execute:     d.getNode,
		Schema: ToolSchema{
			Required: []string{"id"},
			Properties: map[string]Property{
				"id": {Type: "string", Description: "Node id to look up"},
			},
		},
	})

	d.registry.MustRegister(&Tool{
		Name:        "get_subgraph",
		Description: "Fetch every node reachable downstream from an entry node, including the entry node itself.",
		Execute:     d.getSubgraph,
		Schema: ToolSchema{
			Required: []string{"entryPointId"},
			Properties: map[string]Property{
				"entryPointId": {Type: "string", Description: "Id of the node to start traversal from"},
			},
		},
	})

	d.registry.MustRegister(&Tool{
		Name:        "find_nodes",
		Description: "Find nodes whose entry points match keyword filters. Each filter group is a list of keywords that must all match (AND); a node matches if any group matches (OR). Matching is case-insensitive over entry-point kind and name. Empty filters return every node that has entry points.",
		Execute:     d.findNodes,
		Schema: ToolSchema{
			Required: []string{"filters"},
			Properties: map[string]Property{
				"filters": {
					Type:        "array",
					Description: "Filter groups: an array of keyword arrays",
					Items:       &PropertyItems{Type: "array", Items: &PropertyItems{Type: "string"}},
				},
			},
		},
	})

	d.registry.MustRegister(&Tool{
		Name:        "execute_code",
		Description: "Run a sandboxed Go script that must define func Run() (string, error). Only a small stdlib whitelist plus the read-only sandboxfs package (ReadFile, ListDir, Stat, Glob) is available. Use this to inspect source files when the graph alone is not enough.",
		Execute:     d.executeCode,
		Schema: ToolSchema{
			Required: []string{"code"},
			Properties: map[string]Property{
				"code": {Type: "string", Description: "Go source defining func Run() (string, error)"},
			},
		},
	})

	d.registry.MustRegister(&Tool{
		Name:        "spawn_agent",
		Description: "Delegate a focused sub-task to a sub-agent that explores the graph independently and returns a proposed delta. Returns a null delta without blocking when the concurrent sub-agent budget is exhausted.",
		Execute:     d.spawnAgent,
		Schema: ToolSchema{
			Required: []string{"task"},
			Properties: map[string]Property{
				"task":    {Type: "string", Description: "What the sub-agent should accomplish"},
				"context": {Type: "string", Description: "Optional background the sub-agent needs"},
			},
		},
	})
}

func (d *Dispatcher) getNode(ctx context.Context, args map[string]any) (string, error) {
	id, err := stringArg(args, "id")
	if err != nil {
		return errResult(err.Error()), nil
	}

	ix := d.index()
	node, ok := ix.Node(id)
	if !ok {
		return errResult(fmt.Sprintf("node not found: %s", id)), nil
	}
	return okResult(map[string]any{
		"node":       node,
		"upstream":   nodeIDs(ix.Upstream(id)),
		"downstream": nodeIDs(ix.Downstream(id)),
	}), nil
}

func (d *Dispatcher) getSubgraph(ctx context.Context, args map[string]any) (string, error) {
	id, err := stringArg(args, "entryPointId")
	if err != nil {
		return errResult(err.Error()), nil
	}

	// An absent start id is an empty traversal, not an error.
	nodes := d.index().Subgraph(id)
	if nodes == nil {
		nodes = []graph.Node{}
	}
	return okResult(map[string]any{"nodes": nodes, "count": len(nodes)}), nil
}

func (d *Dispatcher) findNodes(ctx context.Context, args map[string]any) (string, error) {
	filters, err := filterArg(args, "filters")
	if err != nil {
		return errResult(err.Error()), nil
	}

	nodes := d.index().FindNodes(filters)
	if nodes == nil {
		nodes = []graph.Node{}
	}
	return okResult(map[string]any{"nodes": nodes, "count": len(nodes)}), nil
}

func (d *Dispatcher) executeCode(ctx context.Context, args map[string]any) (string, error) {
	if d.sandbox == nil {
		return errResult("code execution is not available in this session"), nil
	}
	code, err := stringArg(args, "code")
	if err != nil {
		return errResult(err.Error()), nil
	}

	res := d.sandbox.Execute(ctx, code)
	if res.Error != "" {
		return errResult(res.Error), nil
	}
	return okResult(map[string]any{"output": res.Output}), nil
}

func (d *Dispatcher) spawnAgent(ctx context.Context, args map[string]any) (string, error) {
	if d.spawn == nil {
		return errResult("sub-agent delegation is not available in this session"), nil
	}
	task, err := stringArg(args, "task")
	if err != nil {
		return errResult(err.Error()), nil
	}
	contextHint, _ := args["context"].(string)

	delta, err := d.spawn(ctx, task, contextHint)
	if err != nil {
		return errResult(fmt.Sprintf("sub-agent failed: %v", err)), nil
	}
	if delta == nil {
		return okResult(map[string]any{
			"delta": nil,
			"note":  "sub-agent budget exhausted, task was not delegated",
		}), nil
	}
	return okResult(map[string]any{"delta": delta}), nil
}

func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingRequiredArg, key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%w: %s must be a non-empty string", ErrInvalidArgType, key)
	}
	return s, nil
}

// filterArg decodes the [][]string filter shape from JSON-decoded arguments,
// where arrays arrive as []any.
func filterArg(args map[string]any, key string) ([][]string, error) {
	raw, ok := args[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequiredArg, key)
	}
	outer, ok := raw.([]any)
	if !ok {
		if typed, ok := raw.([][]string); ok {
			return typed, nil
		}
		return nil, fmt.Errorf("%w: %s must be an array of keyword arrays", ErrInvalidArgType, key)
	}

	groups := make([][]string, 0, len(outer))
	for _, g := range outer {
		inner, ok := g.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: each filter group must be an array of strings", ErrInvalidArgType)
		}
		group := make([]string, 0, len(inner))
		for _, kw := range inner {
			s, ok := kw.(string)
			if !ok {
				return nil, fmt.Errorf("%w: filter keywords must be strings", ErrInvalidArgType)
			}
			group = append(group, s)
		}
		groups = append(groups, group)
	}
	return groups, nil
}

func nodeIDs(nodes []graph.Node) []string {
	ids := make([]string, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.ID)
	}
	return ids
}

func okResult(fields map[string]any) string {
	payload := map[string]any{"ok": true}
	for k, v := range fields {
		payload[k] = v
	}
	return marshalResult(payload)
}

func errResult(msg string) string {
	return marshalResult(map[string]any{"ok": false, "error": msg})
}

func marshalResult(payload map[string]any) string {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf(`{"ok":false,"error":"result serialization failed: %v"}`, err)
	}
	return string(data)
}
