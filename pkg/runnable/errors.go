package runnable

import (
	"errors"
	"fmt"
)

// AgentError wraps a failure of the agent call, either when starting it or
// in the middle of its stream.
type AgentError struct {
	Err error
}

func (e *AgentError) Error() string {
	return fmt.Sprintf("agent call failed: %v", e.Err)
}

func (e *AgentError) Unwrap() error { return e.Err }

func asAgentError(err error) error {
	var agentErr *AgentError
	if errors.As(err, &agentErr) {
		return err
	}
	return &AgentError{Err: err}
}
