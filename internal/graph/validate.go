package graph

import "fmt"

// ValidationResult collects the outcome of a full-graph invariant check.
type ValidationResult struct {
	IsValid bool     `json:"isValid"`
	Errors  []string `json:"errors"`
}

// Validate checks the two graph invariants: every input/output reference must
// resolve to a key of the graph, and the union of input and output edges must
// be acyclic. All referential violations are collected; a cycle is reported
// as a single error. Validate has no side effects.
func Validate(g Graph) ValidationResult {
	var errs []string

	for _, id := range g.IDs() {
		node := g[id]
		for _, ref := range node.Inputs {
			if _, ok := g[ref]; !ok {
				errs = append(errs, fmt.Sprintf("node %s has missing input reference: %s", id, ref))
			}
		}
		for _, ref := range node.Outputs {
			if _, ok := g[ref]; !ok {
				errs = append(errs, fmt.Sprintf("node %s has missing output reference: %s", id, ref))
			}
		}
	}

	if hasCycle(g) {
		errs = append(errs, "graph contains cycles")
	}

	return ValidationResult{IsValid: len(errs) == 0, Errors: errs}
}

// Three-color DFS over the downstream adjacency. Gray marks the current
// stack; hitting a gray node means a cycle. Edges are normalized first so a
// dependency declared redundantly by both ends ("a" in b.inputs and "b" in
// a.outputs) contributes one directed edge a->b, not a two-cycle.
const (
	white = iota
	gray
	black
)

func hasCycle(g Graph) bool {
	adjacency := make(map[string]map[string]struct{}, len(g))
	addEdge := func(from, to string) {
		if adjacency[from] == nil {
			adjacency[from] = make(map[string]struct{})
		}
		adjacency[from][to] = struct{}{}
	}
	for id, node := range g {
		for _, ref := range node.Outputs {
			addEdge(id, ref)
		}
		for _, ref := range node.Inputs {
			addEdge(ref, id)
		}
	}

	colors := make(map[string]int, len(g))

	var visit func(id string) bool
	visit = func(id string) bool {
		switch colors[id] {
		case gray:
			return true
		case black:
			return false
		}
		colors[id] = gray
		for ref := range adjacency[id] {
			if visit(ref) {
				return true
			}
		}
		colors[id] = black
		return false
	}

	for id := range g {
		if colors[id] == white && visit(id) {
			return true
		}
	}
	return false
}
