package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"intentgraph/internal/graph"
)

func testGraph() graph.Graph {
	return graph.Graph{
		"ingest": {
			ID:   "ingest",
			Type: graph.TypeBehavior,
			Name: "Ingest orders",
			EntryPoints: []graph.EntryPoint{
				{Kind: graph.KindREST, Name: "POST /api/orders"},
			},
			Outputs: []string{"orders"},
		},
		"orders": {
			ID:     "orders",
			Type:   graph.TypeData,
			Name:   "Order store",
			Inputs: []string{"ingest"},
		},
	}
}

func TestSaveAndLoadGraphRoundTrip(t *testing.T) {
	s := New(t.TempDir())
	want := testGraph()

	if err := s.SaveGraph(want); err != nil {
		t.Fatalf("SaveGraph: %v", err)
	}
	got, err := s.LoadGraph()
	if err != nil {
		t.Fatalf("LoadGraph: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("graph mismatch (-want +got):\n%s", diff)
	}

	// Nodes land in per-type directories.
	if _, err := os.Stat(filepath.Join(s.NodesDir(), "behavior", "ingest.yaml")); err != nil {
		t.Errorf("behavior node file: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.NodesDir(), "data", "orders.yaml")); err != nil {
		t.Errorf("data node file: %v", err)
	}
}

func TestLoadGraphMissingDirIsEmpty(t *testing.T) {
	s := New(t.TempDir())
	g, err := s.LoadGraph()
	if err != nil {
		t.Fatalf("LoadGraph: %v", err)
	}
	if len(g) != 0 {
		t.Errorf("graph = %+v, want empty", g)
	}
}

func TestLoadGraphDuplicateID(t *testing.T) {
	s := New(t.TempDir())
	dir := filepath.Join(s.NodesDir(), "data")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	node := "id: orders\ntype: data\nname: Orders\n"
	os.WriteFile(filepath.Join(dir, "a.yaml"), []byte(node), 0644)
	os.WriteFile(filepath.Join(dir, "b.yaml"), []byte(node), 0644)

	if _, err := s.LoadGraph(); err == nil || !strings.Contains(err.Error(), "duplicate node id") {
		t.Errorf("err = %v", err)
	}
}

func TestSaveGraphPrunesRemovedNodes(t *testing.T) {
	s := New(t.TempDir())
	g := testGraph()
	if err := s.SaveGraph(g); err != nil {
		t.Fatal(err)
	}

	delete(g, "orders")
	if err := s.SaveGraph(g); err != nil {
		t.Fatal(err)
	}

	got, err := s.LoadGraph()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Errorf("graph after prune = %v", got.IDs())
	}
	if _, err := os.Stat(filepath.Join(s.NodesDir(), "data", "orders.yaml")); !os.IsNotExist(err) {
		t.Errorf("stale node file survived: %v", err)
	}
}

func TestDeltaLifecycle(t *testing.T) {
	s := New(t.TempDir())
	d := &graph.Delta{
		Name:        "add-audit",
		Description: "adds an audit node",
		Operations: []graph.Operation{
			{Kind: graph.OpAdd, Node: graph.Node{ID: "audit", Type: graph.TypeBehavior, Name: "Audit", Inputs: []string{"orders"}}},
		},
	}

	name, err := s.SaveDelta(d)
	if err != nil {
		t.Fatalf("SaveDelta: %v", err)
	}
	if name != "add-audit" {
		t.Errorf("name = %q", name)
	}

	loaded, err := s.LoadDelta(name)
	if err != nil {
		t.Fatalf("LoadDelta: %v", err)
	}
	if diff := cmp.Diff(d, loaded); diff != "" {
		t.Errorf("delta mismatch (-want +got):\n%s", diff)
	}

	names, err := s.ListDeltas()
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 1 || names[0] != "add-audit" {
		t.Errorf("ListDeltas = %v", names)
	}

	if err := s.DeleteDelta(name); err != nil {
		t.Fatalf("DeleteDelta: %v", err)
	}
	if _, err := s.LoadDelta(name); err == nil {
		t.Error("deleted delta still loads")
	}
	if err := s.DeleteDelta(name); err == nil {
		t.Error("deleting absent delta should fail")
	}
}

func TestSaveDeltaGeneratesName(t *testing.T) {
	s := New(t.TempDir())
	name, err := s.SaveDelta(&graph.Delta{
		Operations: []graph.Operation{{Kind: graph.OpRemove, Node: graph.Node{ID: "x"}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(name, "delta-") {
		t.Errorf("generated name = %q", name)
	}
}

func TestCommitDelta(t *testing.T) {
	s := New(t.TempDir())
	if err := s.SaveGraph(testGraph()); err != nil {
		t.Fatal(err)
	}
	name, err := s.SaveDelta(&graph.Delta{
		Name: "add-audit",
		Operations: []graph.Operation{
			{Kind: graph.OpAdd, Node: graph.Node{ID: "audit", Type: graph.TypeBehavior, Name: "Audit", Inputs: []string{"orders"}}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	next, err := s.CommitDelta(name)
	if err != nil {
		t.Fatalf("CommitDelta: %v", err)
	}
	if len(next) != 3 {
		t.Errorf("committed graph = %v", next.IDs())
	}

	// Persisted and consumed.
	reloaded, err := s.LoadGraph()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := reloaded["audit"]; !ok {
		t.Error("committed node not persisted")
	}
	if names, _ := s.ListDeltas(); len(names) != 0 {
		t.Errorf("delta not consumed: %v", names)
	}
}

func TestCommitDeltaRejectedLeavesDiskUntouched(t *testing.T) {
	s := New(t.TempDir())
	if err := s.SaveGraph(testGraph()); err != nil {
		t.Fatal(err)
	}
	name, err := s.SaveDelta(&graph.Delta{
		Name: "dangling",
		Operations: []graph.Operation{
			{Kind: graph.OpAdd, Node: graph.Node{ID: "bad", Type: graph.TypeBehavior, Name: "Bad", Inputs: []string{"ghost"}}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.CommitDelta(name); err == nil {
		t.Fatal("invalid delta should be rejected")
	}

	reloaded, err := s.LoadGraph()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(testGraph(), reloaded); diff != "" {
		t.Errorf("rejected commit changed disk state (-want +got):\n%s", diff)
	}
	if names, _ := s.ListDeltas(); len(names) != 1 {
		t.Errorf("rejected delta should stay stored: %v", names)
	}
}

func TestCommitDeltaUnknownName(t *testing.T) {
	s := New(t.TempDir())
	if _, err := s.CommitDelta("nope"); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("err = %v", err)
	}
}

func TestSanitizeNodeID(t *testing.T) {
	s := New(t.TempDir())
	g := graph.Graph{
		"svc/orders v2": {ID: "svc/orders v2", Type: graph.TypeBehavior, Name: "Odd id"},
	}
	if err := s.SaveGraph(g); err != nil {
		t.Fatalf("SaveGraph: %v", err)
	}
	got, err := s.LoadGraph()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := got["svc/orders v2"]; !ok {
		t.Errorf("node with odd id lost: %v", got.IDs())
	}
}
