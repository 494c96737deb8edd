package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"intentgraph/internal/config"
	"intentgraph/internal/graph"
	"intentgraph/internal/logging"
	"intentgraph/internal/tools"
)

// Options bounds one orchestrator run.
type Options struct {
	// MaxToolTurns caps model/tool iterations before the run fails with
	// ErrIterationLimit.
	MaxToolTurns int

	// MaxRetries caps rate-limit retries per backend call.
	MaxRetries int

	// BackoffBase is the first wait when the backend gives no retry hint;
	// subsequent waits double.
	BackoffBase time.Duration
}

// DefaultOptions returns production limits.
func DefaultOptions() Options {
	return Options{
		MaxToolTurns: 10,
		MaxRetries:   3,
		BackoffBase:  time.Second,
	}
}

// OptionsFromConfig derives run limits from loaded configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	opts := DefaultOptions()
	if cfg.Limits.MaxToolTurns > 0 {
		opts.MaxToolTurns = cfg.Limits.MaxToolTurns
	}
	if cfg.Limits.MaxRetries > 0 {
		opts.MaxRetries = cfg.Limits.MaxRetries
	}
	if base := cfg.RetryBackoffBase(); base > 0 {
		opts.BackoffBase = base
	}
	return opts
}

// Orchestrator drives one tool-calling conversation to a delta.
type Orchestrator struct {
	client     ChatClient
	dispatcher *tools.Dispatcher
	opts       Options
}

// New creates an orchestrator over a chat backend and a tool dispatcher.
func New(client ChatClient, dispatcher *tools.Dispatcher, opts Options) *Orchestrator {
	if opts.MaxToolTurns <= 0 {
		opts.MaxToolTurns = DefaultOptions().MaxToolTurns
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultOptions().MaxRetries
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = DefaultOptions().BackoffBase
	}
	return &Orchestrator{client: client, dispatcher: dispatcher, opts: opts}
}

// ProposeDelta drafts a delta for a free-form request against the base
// graph.
func (o *Orchestrator) ProposeDelta(ctx context.Context, request string, base graph.Graph) (*graph.Delta, error) {
	return o.run(ctx, proposePrompt(request, base), nil)
}

// RefineDelta revises an existing draft according to feedback. The draft is
// overlaid on tool queries so the model sees the graph as the draft would
// leave it.
func (o *Orchestrator) RefineDelta(ctx context.Context, draft graph.Delta, feedback string) (*graph.Delta, error) {
	pending := draft.Clone()
	return o.run(ctx, refinePrompt(draft, feedback), &pending)
}

// TweakNode applies a targeted instruction to one node, seeding the
// conversation with the node and its one-hop neighborhood.
func (o *Orchestrator) TweakNode(ctx context.Context, base graph.Graph, nodeID, instruction string) (*graph.Delta, error) {
	return o.run(ctx, tweakPrompt(base, nodeID, instruction), nil)
}

// run is the shared conversation loop. Each turn either executes the
// requested tool calls or parses the final answer; pending is overlaid on
// every tool query for the duration of the run.
func (o *Orchestrator) run(ctx context.Context, seed string, pending *graph.Delta) (*graph.Delta, error) {
	o.dispatcher.SetPending(pending)
	defer o.dispatcher.SetPending(nil)

	defs := toolDefinitions(o.dispatcher)
	messages := []Message{
		SystemMessage(systemPrompt),
		UserMessage(seed),
	}

	for turn := 0; turn < o.opts.MaxToolTurns; turn++ {
		reply, err := o.completeWithRetry(ctx, messages, defs)
		if err != nil {
			return nil, err
		}
		messages = append(messages, reply)

		if len(reply.ToolCalls) == 0 {
			delta, err := parseDelta(reply.Content)
			if err != nil {
				logging.AgentError("run: final answer did not parse: %v", err)
				return nil, err
			}
			logging.Agent("run: delta %q with %d operations after %d turns", delta.Name, len(delta.Operations), turn+1)
			return delta, nil
		}

		logging.AgentDebug("run: turn %d requested %d tool calls", turn+1, len(reply.ToolCalls))
		for _, call := range reply.ToolCalls {
			result := o.dispatcher.Dispatch(ctx, call.Name, call.Args)
			messages = append(messages, ToolMessage(call.ID, call.Name, result))
		}
	}

	logging.AgentError("run: no final answer within %d turns", o.opts.MaxToolTurns)
	return nil, fmt.Errorf("%w after %d turns", ErrIterationLimit, o.opts.MaxToolTurns)
}

// completeWithRetry calls the backend, backing off and retrying on rate
// limits. The backend's wait hint takes precedence over exponential backoff.
// Any other error is returned as-is.
func (o *Orchestrator) completeWithRetry(ctx context.Context, messages []Message, defs []ToolDefinition) (Message, error) {
	var lastErr error
	for attempt := 0; attempt <= o.opts.MaxRetries; attempt++ {
		reply, err := o.client.Complete(ctx, messages, defs)
		if err == nil {
			return reply, nil
		}

		var rateLimited *RateLimitError
		if !errors.As(err, &rateLimited) {
			return Message{}, err
		}
		lastErr = err
		if attempt == o.opts.MaxRetries {
			break
		}

		wait := rateLimited.RetryAfter
		if wait <= 0 {
			wait = o.opts.BackoffBase << uint(attempt)
		}
		logging.AgentDebug("completeWithRetry: rate limited, attempt %d/%d, waiting %v", attempt+1, o.opts.MaxRetries, wait)

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return Message{}, ctx.Err()
		}
	}
	return Message{}, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func toolDefinitions(d *tools.Dispatcher) []ToolDefinition {
	raw := d.Definitions()
	defs := make([]ToolDefinition, len(raw))
	for i, r := range raw {
		defs[i] = ToolDefinition{Name: r.Name, Description: r.Description, InputSchema: r.InputSchema}
	}
	return defs
}
