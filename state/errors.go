package state

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedUpdate     = errors.New("malformed update")
	ErrMessageNotFound     = errors.New("message not found")
	ErrVersionTypeMismatch = errors.New("version type mismatch")
	ErrChannelNotFound     = errors.New("channel not found")
)

// StepError attaches the failing step, node and channel to an engine error
// so callers can tell which contribution was dropped.
type StepError struct {
	Step    int
	Node    string
	Channel string
	Err     error
}

// Error implements the error interface.
func (e *StepError) Error() string {
	if e.Channel == "" {
		return fmt.Sprintf("step %d node %q: %v", e.Step, e.Node, e.Err)
	}
	return fmt.Sprintf("step %d node %q channel %q: %v", e.Step, e.Node, e.Channel, e.Err)
}

// Unwrap returns the underlying error.
func (e *StepError) Unwrap() error { return e.Err }
