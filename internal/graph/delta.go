package graph

import "fmt"

// Apply applies the delta's operations in order to a copy of base and
// validates the result. The apply is atomic: any precondition failure
// (duplicate add, missing update target, malformed operation) or a
// post-validation failure rejects the whole delta, and base is returned
// unchanged alongside the error. Removing an absent id is a no-op, not an
// error; callers that need strict semantics must check existence first.
func Apply(base Graph, d Delta) (Graph, error) {
	next := base.Clone()

	for i, op := range d.Operations {
		if op.Node.ID == "" {
			return base, fmt.Errorf("operation %d (%s): %w: missing node id", i, op.Kind, ErrInvalidOperation)
		}
		switch op.Kind {
		case OpAdd:
			if !op.Node.Type.Valid() {
				return base, fmt.Errorf("operation %d (add %s): %w: unknown node type %q", i, op.Node.ID, ErrInvalidOperation, op.Node.Type)
			}
			if _, exists := next[op.Node.ID]; exists {
				return base, fmt.Errorf("operation %d (add %s): %w", i, op.Node.ID, ErrDuplicateNode)
			}
			next[op.Node.ID] = op.Node.Clone()
		case OpUpdate:
			if !op.Node.Type.Valid() {
				return base, fmt.Errorf("operation %d (update %s): %w: unknown node type %q", i, op.Node.ID, ErrInvalidOperation, op.Node.Type)
			}
			if _, exists := next[op.Node.ID]; !exists {
				return base, fmt.Errorf("operation %d (update %s): %w", i, op.Node.ID, ErrNodeNotFound)
			}
			// Wholesale replacement; the id stays the map key.
			next[op.Node.ID] = op.Node.Clone()
		case OpRemove:
			delete(next, op.Node.ID)
		default:
			return base, fmt.Errorf("operation %d: %w: unknown kind %q", i, ErrInvalidOperation, op.Kind)
		}
	}

	if result := Validate(next); !result.IsValid {
		return base, &ValidationError{Errors: result.Errors}
	}
	return next, nil
}

// MergedView overlays a pending delta on top of base without validating
// invariants. The overlay is a query convenience for drafting, not a
// committed state; it may transiently violate invariants mid-edit. Add and
// update operations shadow (or introduce) their id, remove operations delete
// it. A nil delta returns base unchanged.
func MergedView(base Graph, d *Delta) Graph {
	if d == nil {
		return base
	}
	shadow := base.Clone()
	for _, op := range d.Operations {
		if op.Node.ID == "" {
			continue
		}
		switch op.Kind {
		case OpAdd, OpUpdate:
			shadow[op.Node.ID] = op.Node.Clone()
		case OpRemove:
			delete(shadow, op.Node.ID)
		}
	}
	return shadow
}
