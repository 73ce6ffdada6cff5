package orchestrator

import (
	"fmt"
	"strings"
)

// UnknownWorkflowError is returned by Start when the named graph is not
// registered. No instance is created.
type UnknownWorkflowError struct {
	Graph string
}

// Error implements the error interface.
func (e *UnknownWorkflowError) Error() string {
	return fmt.Sprintf("unknown workflow graph: %s", e.Graph)
}

// UnknownExecutorError is surfaced at dispatch time when a step or compiled
// instruction names an executor that is not in the registry.
type UnknownExecutorError struct {
	Executor string
}

// Error implements the error interface.
func (e *UnknownExecutorError) Error() string {
	return fmt.Sprintf("unknown executor: %s", e.Executor)
}

// UnknownActionError is returned by BaseExecutor.Handle when the requested
// action has no registered handler.
type UnknownActionError struct {
	Executor string
	Action   string
}

// Error implements the error interface.
func (e *UnknownActionError) Error() string {
	return fmt.Sprintf("executor %s cannot handle action %q", e.Executor, e.Action)
}

// StepFailure wraps an executor failure. Any step failure is fatal to its
// workflow run; the engine performs no retries.
type StepFailure struct {
	Step       string
	ExecutorID string
	Action     string
	Cause      error
}

// Error implements the error interface.
func (e *StepFailure) Error() string {
	return fmt.Sprintf("step %s failed (executor %s, action %s): %v",
		e.Step, e.ExecutorID, e.Action, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *StepFailure) Unwrap() error {
	return e.Cause
}

// DeadlockError reports that no remaining step has all of its dependencies
// satisfied. This is the only cycle and unsatisfiable-dependency detection
// mechanism; graphs are not checked for acyclicity at registration.
type DeadlockError struct {
	Graph     string
	Remaining []string
}

// Error implements the error interface.
func (e *DeadlockError) Error() string {
	return fmt.Sprintf("workflow deadlock in graph %s: no runnable steps among [%s]",
		e.Graph, strings.Join(e.Remaining, ", "))
}
