package graph

import (
	"errors"
	"fmt"
	"strings"
)

// Delta application errors.
var (
	// ErrDuplicateNode is returned when an add targets an existing id.
	ErrDuplicateNode = errors.New("node already exists")

	// ErrNodeNotFound is returned when an update targets an absent id.
	ErrNodeNotFound = errors.New("node not found")

	// ErrInvalidOperation is returned for an unknown operation kind or an
	// operation missing its node id.
	ErrInvalidOperation = errors.New("invalid delta operation")
)

// ValidationError reports that applying a delta produced a graph violating
// referential integrity or acyclicity. The apply is rejected atomically.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("delta produced an invalid graph: %s", strings.Join(e.Errors, "; "))
}
