package agent

import (
	"context"

	"golang.org/x/sync/semaphore"

	"intentgraph/internal/graph"
	"intentgraph/internal/logging"
	"intentgraph/internal/sandbox"
	"intentgraph/internal/tools"
)

// Spawner delegates scoped sub-tasks to fresh sub-agent conversations. A
// weighted semaphore caps how many run at once across the whole delegation
// tree; when no slot is free the delegation is refused immediately with a
// nil delta rather than queued, so a deep or cyclic delegation chain can
// never deadlock waiting on its own ancestors.
type Spawner struct {
	sem     *semaphore.Weighted
	client  ChatClient
	base    graph.Graph
	sandbox *sandbox.Executor
	opts    Options
}

// NewSpawner creates a spawner sharing one chat backend and one base graph
// snapshot across all sub-agents. maxSubAgents must be positive.
func NewSpawner(client ChatClient, base graph.Graph, sb *sandbox.Executor, maxSubAgents int64, opts Options) *Spawner {
	if maxSubAgents <= 0 {
		maxSubAgents = 1
	}
	return &Spawner{
		sem:     semaphore.NewWeighted(maxSubAgents),
		client:  client,
		base:    base,
		sandbox: sb,
		opts:    opts,
	}
}

// Spawn runs one delegated task to completion and returns its proposed
// delta. Returns (nil, nil) without blocking when the sub-agent budget is
// saturated. Satisfies tools.SpawnFunc, and passes itself down so
// sub-agents may delegate further within the same budget.
func (s *Spawner) Spawn(ctx context.Context, task, contextHint string) (*graph.Delta, error) {
	if !s.sem.TryAcquire(1) {
		logging.Agent("Spawn: budget saturated, refusing task %q", task)
		return nil, nil
	}
	defer s.sem.Release(1)

	logging.AgentDebug("Spawn: delegating task %q", task)
	dispatcher := tools.NewDispatcher(s.base, s.sandbox, s.Spawn)
	sub := New(s.client, dispatcher, s.opts)
	return sub.run(ctx, subAgentPrompt(task, contextHint), nil)
}
