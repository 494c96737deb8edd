// Package graph holds the intent-graph data model and the pure engine that
// operates on it: invariant validation, read-only indices, and delta
// application. Nothing in this package performs I/O; the single id->Node
// mapping is the only source of truth and all edges are resolved by id lookup.
package graph

import "sort"

// NodeType classifies what kind of system behavior a node describes.
type NodeType string

const (
	TypeBehavior    NodeType = "behavior"
	TypeDecision    NodeType = "decision"
	TypeData        NodeType = "data"
	TypeIntegration NodeType = "integration"
	TypeView        NodeType = "view"
)

// NodeTypes lists every valid node type, in declaration order.
var NodeTypes = []NodeType{TypeBehavior, TypeDecision, TypeData, TypeIntegration, TypeView}

// Valid reports whether t is one of the closed enumeration values.
func (t NodeType) Valid() bool {
	for _, nt := range NodeTypes {
		if t == nt {
			return true
		}
	}
	return false
}

// EntryPointKind classifies the external trigger of an entry point.
type EntryPointKind string

const (
	KindREST     EntryPointKind = "REST"
	KindJob      EntryPointKind = "JOB"
	KindListener EntryPointKind = "LISTENER"
	KindUI       EntryPointKind = "UI"
	KindOther    EntryPointKind = "OTHER"
)

// EntryPointKinds lists every valid entry-point kind.
var EntryPointKinds = []EntryPointKind{KindREST, KindJob, KindListener, KindUI, KindOther}

// Valid reports whether k is one of the closed enumeration values.
func (k EntryPointKind) Valid() bool {
	for _, ek := range EntryPointKinds {
		if k == ek {
			return true
		}
	}
	return false
}

// EntryPoint names an external trigger associated with a node, e.g.
// {REST, "POST /api/users"} or {JOB, "daily-sync"}. Name is free text and is
// what the fuzzy entry-point filters match against.
type EntryPoint struct {
	Kind EntryPointKind `json:"kind" yaml:"kind"`
	Name string         `json:"name" yaml:"name"`
}

// Node is one behavioral unit of the intent graph. Inputs and Outputs hold
// node ids, never live references; both ends of an edge may declare it
// redundantly and the index honors either declaration.
type Node struct {
	ID          string            `json:"id" yaml:"id"`
	Type        NodeType          `json:"type" yaml:"type"`
	Name        string            `json:"name" yaml:"name"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Invariants  []string          `json:"invariants,omitempty" yaml:"invariants,omitempty"`
	Questions   []string          `json:"questions,omitempty" yaml:"questions,omitempty"`
	EntryPoints []EntryPoint      `json:"entryPoints,omitempty" yaml:"entryPoints,omitempty"`
	Inputs      []string          `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Outputs     []string          `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Clone returns a deep copy of the node.
func (n Node) Clone() Node {
	out := n
	out.Invariants = append([]string(nil), n.Invariants...)
	out.Questions = append([]string(nil), n.Questions...)
	out.EntryPoints = append([]EntryPoint(nil), n.EntryPoints...)
	out.Inputs = append([]string(nil), n.Inputs...)
	out.Outputs = append([]string(nil), n.Outputs...)
	if n.Metadata != nil {
		out.Metadata = make(map[string]string, len(n.Metadata))
		for k, v := range n.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// Graph is the full id->Node mapping. It is treated as an immutable value at
// each snapshot: the engine never mutates an input graph, it always returns a
// new mapping.
type Graph map[string]Node

// Clone returns a deep copy of the graph.
func (g Graph) Clone() Graph {
	out := make(Graph, len(g))
	for id, n := range g {
		out[id] = n.Clone()
	}
	return out
}

// IDs returns the sorted node ids of the graph.
func (g Graph) IDs() []string {
	ids := make([]string, 0, len(g))
	for id := range g {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// OpKind is the kind of a delta operation.
type OpKind string

const (
	OpAdd    OpKind = "add"
	OpUpdate OpKind = "update"
	OpRemove OpKind = "remove"
)

// Valid reports whether k is one of the closed operation kinds.
func (k OpKind) Valid() bool {
	return k == OpAdd || k == OpUpdate || k == OpRemove
}

// Operation is a single mutation within a delta. For remove operations only
// Node.ID is meaningful.
type Operation struct {
	Kind OpKind `json:"kind" yaml:"kind"`
	Node Node   `json:"node" yaml:"node"`
}

// Delta is an ordered list of operations proposed against a graph. It is the
// unit of proposal, review, and (externally owned) commit.
type Delta struct {
	Name        string      `json:"name" yaml:"name"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Operations  []Operation `json:"operations" yaml:"operations"`
}

// Clone returns a deep copy of the delta.
func (d Delta) Clone() Delta {
	out := d
	out.Operations = make([]Operation, len(d.Operations))
	for i, op := range d.Operations {
		out.Operations[i] = Operation{Kind: op.Kind, Node: op.Node.Clone()}
	}
	return out
}
