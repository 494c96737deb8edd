package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"intentgraph/internal/graph"
	"intentgraph/internal/store"
)

var watchFlag bool

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the graph's referential integrity and acyclicity",
	Long: `Loads the graph from intent/nodes/ and reports every violation:
dangling input/output references and cycles. With --watch, stays running
and revalidates whenever node files change.`,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&watchFlag, "watch", false, "Revalidate on file changes")
}

var showCmd = &cobra.Command{
	Use:   "show [node-id]",
	Short: "Print a node and its one-hop neighborhood",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Summarize the graph and staged deltas",
	RunE:  runStatus,
}

func runValidate(cmd *cobra.Command, args []string) error {
	s := store.New(workspace)

	validateOnce := func() error {
		g, err := s.LoadGraph()
		if err != nil {
			return err
		}
		result := graph.Validate(g)
		if result.IsValid {
			fmt.Printf("OK: %d nodes, no violations\n", len(g))
			return nil
		}
		for _, msg := range result.Errors {
			fmt.Printf("  - %s\n", msg)
		}
		return fmt.Errorf("graph has %d violations", len(result.Errors))
	}

	if !watchFlag {
		return validateOnce()
	}

	if err := validateOnce(); err != nil {
		// Keep watching; the point of watch mode is to see it fixed.
		logger.Warn("initial validation failed", zap.Error(err))
	}

	w, err := store.NewWatcher(s)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()

	fmt.Println("Watching for changes (Ctrl-C to stop)...")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.Changes():
			if err := validateOnce(); err != nil {
				logger.Warn("validation failed", zap.Error(err))
			}
		}
	}
}

func runShow(cmd *cobra.Command, args []string) error {
	g, err := store.New(workspace).LoadGraph()
	if err != nil {
		return err
	}

	ix := graph.NewIndex(g)
	node, ok := ix.Node(args[0])
	if !ok {
		return fmt.Errorf("node not found: %s", args[0])
	}

	encoded, err := yaml.Marshal(node)
	if err != nil {
		return err
	}
	fmt.Print(string(encoded))

	if up := ix.Upstream(node.ID); len(up) > 0 {
		fmt.Println("upstream:")
		for _, n := range up {
			fmt.Printf("  - %s (%s)\n", n.ID, n.Type)
		}
	}
	if down := ix.Downstream(node.ID); len(down) > 0 {
		fmt.Println("downstream:")
		for _, n := range down {
			fmt.Printf("  - %s (%s)\n", n.ID, n.Type)
		}
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	s := store.New(workspace)
	g, err := s.LoadGraph()
	if err != nil {
		return err
	}

	fmt.Printf("Graph: %d nodes\n", len(g))
	ix := graph.NewIndex(g)
	for _, t := range graph.NodeTypes {
		if nodes := ix.NodesByType(t); len(nodes) > 0 {
			fmt.Printf("  %-12s %d\n", t, len(nodes))
		}
	}

	result := graph.Validate(g)
	if result.IsValid {
		fmt.Println("Validation: OK")
	} else {
		fmt.Printf("Validation: %d violations (run 'intentgraph validate')\n", len(result.Errors))
	}

	deltas, err := s.ListDeltas()
	if err != nil {
		return err
	}
	if len(deltas) == 0 {
		fmt.Println("Staged deltas: none")
		return nil
	}
	fmt.Printf("Staged deltas: %d\n", len(deltas))
	for _, name := range deltas {
		d, err := s.LoadDelta(name)
		if err != nil {
			fmt.Printf("  %s (unreadable: %v)\n", name, err)
			continue
		}
		fmt.Printf("  %s: %d operations", name, len(d.Operations))
		if d.Description != "" {
			fmt.Printf(" - %s", d.Description)
		}
		fmt.Println()
	}
	return nil
}
