package graph

import (
	"sort"
	"strings"
)

// Index provides read-only lookups over one graph snapshot. Build it once per
// queried snapshot (base graph or merged view); it never mutates the graph it
// was built from. Downstream and upstream adjacency honor edges declared at
// either end, so partially filled input/output lists still resolve.
type Index struct {
	nodes      Graph
	byType     map[NodeType][]string
	downstream map[string]map[string]struct{}
	upstream   map[string]map[string]struct{}
}

// NewIndex builds an index over g.
func NewIndex(g Graph) *Index {
	ix := &Index{
		nodes:      g,
		byType:     make(map[NodeType][]string),
		downstream: make(map[string]map[string]struct{}),
		upstream:   make(map[string]map[string]struct{}),
	}

	link := func(from, to string) {
		if ix.downstream[from] == nil {
			ix.downstream[from] = make(map[string]struct{})
		}
		ix.downstream[from][to] = struct{}{}
		if ix.upstream[to] == nil {
			ix.upstream[to] = make(map[string]struct{})
		}
		ix.upstream[to][from] = struct{}{}
	}

	for _, id := range g.IDs() {
		node := g[id]
		ix.byType[node.Type] = append(ix.byType[node.Type], id)
		for _, ref := range node.Inputs {
			link(ref, id)
		}
		for _, ref := range node.Outputs {
			link(id, ref)
		}
	}
	return ix
}

// Node returns the node with the given id, if present.
func (ix *Index) Node(id string) (Node, bool) {
	n, ok := ix.nodes[id]
	return n, ok
}

// NodesByType returns all nodes of the given type, ordered by id.
func (ix *Index) NodesByType(t NodeType) []Node {
	return ix.resolve(toSet(ix.byType[t]))
}

// Downstream returns the one-hop downstream neighbors of id: nodes that list
// id as an input, plus nodes id lists as an output.
func (ix *Index) Downstream(id string) []Node {
	return ix.resolve(ix.downstream[id])
}

// Upstream returns the one-hop upstream neighbors of id.
func (ix *Index) Upstream(id string) []Node {
	return ix.resolve(ix.upstream[id])
}

// Subgraph returns every node reachable from entryID over the downstream
// relation, including the start node. An absent entryID yields an empty
// result, not an error. The visited set guards against cycles, which should
// already have been rejected on write.
func (ix *Index) Subgraph(entryID string) []Node {
	if _, ok := ix.nodes[entryID]; !ok {
		return nil
	}

	visited := map[string]struct{}{entryID: {}}
	queue := []string{entryID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for next := range ix.downstream[id] {
			if _, seen := visited[next]; seen {
				continue
			}
			if _, ok := ix.nodes[next]; !ok {
				continue
			}
			visited[next] = struct{}{}
			queue = append(queue, next)
		}
	}
	return ix.resolve(visited)
}

// FindNodes matches nodes against keyword filter groups: a node matches if
// any group's keywords are all contained, case-insensitively, in the
// concatenation of its entry-point kind and name strings (OR of ANDs). A node
// without entry points never matches. Empty filters match every node that has
// at least one entry point.
func (ix *Index) FindNodes(filterGroups [][]string) []Node {
	matched := make(map[string]struct{})
	for id, node := range ix.nodes {
		if matchesEntryPoints(node, filterGroups) {
			matched[id] = struct{}{}
		}
	}
	return ix.resolve(matched)
}

func matchesEntryPoints(node Node, filterGroups [][]string) bool {
	if len(node.EntryPoints) == 0 {
		return false
	}
	if len(filterGroups) == 0 {
		return true
	}

	var sb strings.Builder
	for _, ep := range node.EntryPoints {
		sb.WriteString(strings.ToLower(string(ep.Kind)))
		sb.WriteByte(':')
		sb.WriteString(strings.ToLower(ep.Name))
		sb.WriteByte(' ')
	}
	haystack := sb.String()

	for _, group := range filterGroups {
		if len(group) == 0 {
			continue
		}
		all := true
		for _, kw := range group {
			kw = strings.TrimSpace(strings.ToLower(kw))
			if kw == "" {
				continue
			}
			if !strings.Contains(haystack, kw) {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

// resolve materializes an id set into nodes sorted by id.
func (ix *Index) resolve(ids map[string]struct{}) []Node {
	if len(ids) == 0 {
		return nil
	}
	ordered := make([]string, 0, len(ids))
	for id := range ids {
		if _, ok := ix.nodes[id]; ok {
			ordered = append(ordered, id)
		}
	}
	sort.Strings(ordered)
	out := make([]Node, 0, len(ordered))
	for _, id := range ordered {
		out = append(out, ix.nodes[id])
	}
	return out
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
