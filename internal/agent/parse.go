package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"intentgraph/internal/graph"
)

// parseDelta decodes the model's final answer into a delta. Two attempts,
// in order: the whole answer as JSON, then the first fenced code block.
// Anything else is a ParseError carrying the raw answer; prose-wrapped JSON
// is not fished out of the text.
func parseDelta(content string) (*graph.Delta, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, &ParseError{Raw: content, Err: fmt.Errorf("empty response")}
	}

	candidates := []string{trimmed}
	if fenced := extractFencedBlock(trimmed); fenced != "" {
		candidates = append(candidates, fenced)
	}

	var lastErr error
	for _, candidate := range candidates {
		var delta graph.Delta
		if err := json.Unmarshal([]byte(candidate), &delta); err != nil {
			lastErr = err
			continue
		}
		if err := checkDelta(&delta); err != nil {
			lastErr = err
			continue
		}
		if delta.Name == "" {
			delta.Name = "delta-" + uuid.NewString()[:8]
		}
		return &delta, nil
	}
	return nil, &ParseError{Raw: content, Err: lastErr}
}

// checkDelta rejects decoded deltas that are structurally empty or carry
// unusable operations. Semantic validation happens on apply.
func checkDelta(d *graph.Delta) error {
	if len(d.Operations) == 0 {
		return fmt.Errorf("delta has no operations")
	}
	for i, op := range d.Operations {
		if !op.Kind.Valid() {
			return fmt.Errorf("operation %d has unknown kind %q", i, op.Kind)
		}
		if op.Node.ID == "" {
			return fmt.Errorf("operation %d has no node id", i)
		}
	}
	return nil
}

// extractFencedBlock returns the body of the first ``` fence, tolerating a
// language tag on the opening line.
func extractFencedBlock(s string) string {
	start := strings.Index(s, "```")
	if start < 0 {
		return ""
	}
	rest := s[start+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return ""
	}
	return strings.TrimSpace(rest[:end])
}
