package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"intentgraph/internal/graph"
	"intentgraph/internal/store"
)

var applyCmd = &cobra.Command{
	Use:   "apply [delta-file]",
	Short: "Check a delta file against the graph and stage it",
	Long: `Reads a delta from a YAML or JSON file, applies it to the current graph
in memory, and stages it under intent/deltas/ if the result is valid. The
graph on disk is not touched; use 'commit' to make the change permanent.`,
	Args: cobra.ExactArgs(1),
	RunE: runApply,
}

var commitCmd = &cobra.Command{
	Use:   "commit [delta-name]",
	Short: "Apply a staged delta to the graph and persist the result",
	Long: `Applies the named staged delta atomically: either the whole delta lands
and the node files are rewritten, or it is rejected and nothing changes.
A committed delta is removed from intent/deltas/.`,
	Args: cobra.ExactArgs(1),
	RunE: runCommit,
}

func runApply(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	var delta graph.Delta
	if strings.HasSuffix(args[0], ".json") {
		err = json.Unmarshal(data, &delta)
	} else {
		err = yaml.Unmarshal(data, &delta)
	}
	if err != nil {
		return fmt.Errorf("failed to parse delta file: %w", err)
	}

	s := store.New(workspace)
	base, err := s.LoadGraph()
	if err != nil {
		return err
	}

	next, err := graph.Apply(base, delta)
	if err != nil {
		return fmt.Errorf("delta rejected: %w", err)
	}

	name, err := s.SaveDelta(&delta)
	if err != nil {
		return err
	}
	fmt.Printf("Delta %q staged: %d nodes -> %d nodes\n", name, len(base), len(next))
	fmt.Printf("Commit with: intentgraph commit %s\n", name)
	return nil
}

func runCommit(cmd *cobra.Command, args []string) error {
	next, err := store.New(workspace).CommitDelta(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Delta %q committed, graph now has %d nodes\n", args[0], len(next))
	return nil
}
