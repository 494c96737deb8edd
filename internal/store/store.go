// Package store persists the intent graph and its deltas as YAML under the
// workspace: one file per node in intent/nodes/<type>/, one file per delta
// in intent/deltas/. Files are the source of truth; the in-memory graph is
// always rebuilt by walking them.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"intentgraph/internal/graph"
	"intentgraph/internal/logging"
)

const (
	nodesDir  = "nodes"
	deltasDir = "deltas"
)

// Store reads and writes graph state under <workspace>/intent/.
type Store struct {
	root string
}

// New creates a store rooted at the workspace directory.
func New(workspace string) *Store {
	return &Store{root: filepath.Join(workspace, "intent")}
}

// NodesDir returns the directory holding node files.
func (s *Store) NodesDir() string {
	return filepath.Join(s.root, nodesDir)
}

// DeltasDir returns the directory holding delta files.
func (s *Store) DeltasDir() string {
	return filepath.Join(s.root, deltasDir)
}

// LoadGraph walks the node files and assembles the graph. A missing nodes
// directory is an empty graph; two files claiming the same node id is an
// error.
func (s *Store) LoadGraph() (graph.Graph, error) {
	g := make(graph.Graph)

	dir := s.NodesDir()
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return g, nil
	}

	err := filepath.WalkDir(dir, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || !isYAML(path) {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		var node graph.Node
		if err := yaml.Unmarshal(data, &node); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
		if node.ID == "" {
			return fmt.Errorf("%s has no node id", path)
		}
		if _, exists := g[node.ID]; exists {
			return fmt.Errorf("duplicate node id %s in %s", node.ID, path)
		}
		g[node.ID] = node
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.StoreDebug("LoadGraph: %d nodes from %s", len(g), dir)
	return g, nil
}

// SaveGraph writes every node to its per-type file and removes files for
// nodes that no longer exist, so the directory mirrors the graph exactly.
func (s *Store) SaveGraph(g graph.Graph) error {
	dir := s.NodesDir()

	// Collect current files before rewriting, to prune stale ones after.
	existing := map[string]bool{}
	filepath.WalkDir(dir, func(path string, entry os.DirEntry, err error) error {
		if err == nil && !entry.IsDir() && isYAML(path) {
			existing[path] = true
		}
		return nil
	})

	for _, id := range g.IDs() {
		node := g[id]
		path := s.nodePath(node)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
		}
		data, err := yaml.Marshal(node)
		if err != nil {
			return fmt.Errorf("failed to encode node %s: %w", id, err)
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		delete(existing, path)
	}

	for stale := range existing {
		if err := os.Remove(stale); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove stale %s: %w", stale, err)
		}
		logging.StoreDebug("SaveGraph: removed stale %s", stale)
	}

	logging.Store("SaveGraph: wrote %d nodes to %s", len(g), dir)
	return nil
}

// SaveDelta persists a proposed delta and returns the name it was stored
// under. An unnamed delta gets a generated name.
func (s *Store) SaveDelta(d *graph.Delta) (string, error) {
	if d.Name == "" {
		d.Name = "delta-" + uuid.NewString()[:8]
	}

	dir := s.DeltasDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	data, err := yaml.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("failed to encode delta %s: %w", d.Name, err)
	}
	path := filepath.Join(dir, sanitize(d.Name)+".yaml")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}

	logging.Store("SaveDelta: %s with %d operations", d.Name, len(d.Operations))
	return d.Name, nil
}

// LoadDelta reads a stored delta by name.
func (s *Store) LoadDelta(name string) (*graph.Delta, error) {
	path := filepath.Join(s.DeltasDir(), sanitize(name)+".yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("delta not found: %s", name)
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var d graph.Delta
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &d, nil
}

// DeleteDelta removes a stored delta. Deleting an absent delta is an error.
func (s *Store) DeleteDelta(name string) error {
	path := filepath.Join(s.DeltasDir(), sanitize(name)+".yaml")
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("delta not found: %s", name)
		}
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	return nil
}

// ListDeltas returns the names of all stored deltas, sorted.
func (s *Store) ListDeltas() ([]string, error) {
	entries, err := os.ReadDir(s.DeltasDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list deltas: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !isYAML(entry.Name()) {
			continue
		}
		name := strings.TrimSuffix(strings.TrimSuffix(entry.Name(), ".yaml"), ".yml")
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// CommitDelta applies a stored delta to the persisted graph and writes the
// result back. Nothing on disk changes when the apply is rejected. On
// success the delta file is consumed.
func (s *Store) CommitDelta(name string) (graph.Graph, error) {
	d, err := s.LoadDelta(name)
	if err != nil {
		return nil, err
	}
	base, err := s.LoadGraph()
	if err != nil {
		return nil, err
	}

	next, err := graph.Apply(base, *d)
	if err != nil {
		logging.StoreError("CommitDelta: %s rejected: %v", name, err)
		return nil, fmt.Errorf("delta %s rejected: %w", name, err)
	}

	if err := s.SaveGraph(next); err != nil {
		return nil, err
	}
	if err := s.DeleteDelta(name); err != nil {
		return nil, err
	}

	logging.Store("CommitDelta: %s committed, graph now has %d nodes", name, len(next))
	return next, nil
}

// nodePath is the canonical file location for a node.
func (s *Store) nodePath(node graph.Node) string {
	return filepath.Join(s.NodesDir(), string(node.Type), sanitize(node.ID)+".yaml")
}

// sanitize maps an id or name to a safe file stem.
func sanitize(name string) string {
	var sb strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	return sb.String()
}

func isYAML(path string) bool {
	ext := filepath.Ext(path)
	return ext == ".yaml" || ext == ".yml"
}
