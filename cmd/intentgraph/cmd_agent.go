package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"intentgraph/internal/agent"
	"intentgraph/internal/graph"
	"intentgraph/internal/sandbox"
	"intentgraph/internal/store"
	"intentgraph/internal/tools"
)

var proposeCmd = &cobra.Command{
	Use:   "propose [request...]",
	Short: "Have the agent draft a delta for a request",
	Long: `Starts a tool-calling conversation: the agent explores the graph with
get_node, get_subgraph, find_nodes, execute_code, and spawn_agent, then
answers with a delta. The delta is checked against the graph and staged
under intent/deltas/ for review.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPropose,
}

var refineCmd = &cobra.Command{
	Use:   "refine [delta-name] [feedback...]",
	Short: "Have the agent revise a staged delta",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runRefine,
}

var tweakCmd = &cobra.Command{
	Use:   "tweak [node-id] [instruction...]",
	Short: "Have the agent make a targeted change to one node",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runTweak,
}

// buildSession wires the backend, sandbox, spawner, and orchestrator over
// the current graph snapshot.
func buildSession(base graph.Graph) (*agent.Orchestrator, error) {
	if cfg.LLM.APIKey == "" {
		return nil, fmt.Errorf("no API key configured (set INTENTGRAPH_API_KEY or ANTHROPIC_API_KEY)")
	}

	client := agent.NewAnthropicClient(cfg.LLM)
	opts := agent.OptionsFromConfig(cfg)

	sb, err := sandbox.New(cfg.Sandbox.Roots, cfg.SandboxTimeout())
	if err != nil {
		return nil, err
	}

	spawner := agent.NewSpawner(client, base, sb, int64(cfg.Limits.MaxSubAgents), opts)
	dispatcher := tools.NewDispatcher(base, sb, spawner.Spawn)
	return agent.New(client, dispatcher, opts), nil
}

func sessionContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

// stageDelta checks the drafted delta against the base graph and stages it.
// An invalid draft is still staged so it can be refined rather than lost.
func stageDelta(s *store.Store, base graph.Graph, delta *graph.Delta) error {
	name, err := s.SaveDelta(delta)
	if err != nil {
		return err
	}

	encoded, err := yaml.Marshal(delta)
	if err != nil {
		return err
	}
	fmt.Print(string(encoded))

	if _, applyErr := graph.Apply(base, *delta); applyErr != nil {
		fmt.Printf("\nDelta %q staged but does NOT apply cleanly: %v\n", name, applyErr)
		fmt.Printf("Refine with: intentgraph refine %s \"<feedback>\"\n", name)
		return nil
	}
	fmt.Printf("\nDelta %q staged. Commit with: intentgraph commit %s\n", name, name)
	return nil
}

func runPropose(cmd *cobra.Command, args []string) error {
	request := strings.Join(args, " ")
	s := store.New(workspace)
	base, err := s.LoadGraph()
	if err != nil {
		return err
	}

	o, err := buildSession(base)
	if err != nil {
		return err
	}

	ctx, stop := sessionContext(cmd)
	defer stop()

	delta, err := o.ProposeDelta(ctx, request, base)
	if err != nil {
		return describeAgentError(err)
	}
	return stageDelta(s, base, delta)
}

func runRefine(cmd *cobra.Command, args []string) error {
	name, feedback := args[0], strings.Join(args[1:], " ")
	s := store.New(workspace)
	draft, err := s.LoadDelta(name)
	if err != nil {
		return err
	}
	base, err := s.LoadGraph()
	if err != nil {
		return err
	}

	o, err := buildSession(base)
	if err != nil {
		return err
	}

	ctx, stop := sessionContext(cmd)
	defer stop()

	revised, err := o.RefineDelta(ctx, *draft, feedback)
	if err != nil {
		return describeAgentError(err)
	}
	// The revision replaces the draft under the same name.
	revised.Name = draft.Name
	return stageDelta(s, base, revised)
}

func runTweak(cmd *cobra.Command, args []string) error {
	nodeID, instruction := args[0], strings.Join(args[1:], " ")
	s := store.New(workspace)
	base, err := s.LoadGraph()
	if err != nil {
		return err
	}

	o, err := buildSession(base)
	if err != nil {
		return err
	}

	ctx, stop := sessionContext(cmd)
	defer stop()

	delta, err := o.TweakNode(ctx, base, nodeID, instruction)
	if err != nil {
		return describeAgentError(err)
	}
	return stageDelta(s, base, delta)
}

func describeAgentError(err error) error {
	var parseErr *agent.ParseError
	switch {
	case errors.Is(err, agent.ErrIterationLimit):
		return fmt.Errorf("the agent kept exploring without answering: %w", err)
	case errors.As(err, &parseErr):
		logger.Debug("unparseable agent answer", zap.String("raw", parseErr.Raw))
		return fmt.Errorf("the agent's answer was not a delta (rerun with -v to see it): %w", err)
	default:
		return err
	}
}
