package agent

import (
	"errors"
	"fmt"
)

// ErrIterationLimit is returned when the model keeps requesting tools past
// the configured turn cap without producing a final answer.
var ErrIterationLimit = errors.New("tool iteration limit exceeded")

// ParseError reports a final model answer that could not be decoded into a
// delta. Raw preserves the answer for diagnosis.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse model response as delta: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
