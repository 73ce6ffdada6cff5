// Package orchestrator provides a dependency-respecting workflow execution
// engine. A workflow is described by an immutable StepGraph: a named set of
// steps, each naming a target executor, an action, an input payload, its
// dependencies, and whether it may run in parallel with other ready steps.
//
// The engine owns an executor registry and an active-workflow table. Starting
// a workflow creates a mutable Instance and drives it through rounds of the
// scheduling loop: steps whose dependencies have all completed form the ready
// set, parallel-eligible ready steps are fanned out concurrently and joined,
// then the remaining ready steps run one at a time in definition order. Any
// step failure aborts the run; results recorded so far stay attached to the
// failed instance for diagnostics.
//
// Executors implement the Executor interface. BaseExecutor provides the
// common machinery: an action-to-handler map, mutex-guarded executor-local
// state, and per-executor metrics. Executor-local state is the only thing
// shared between concurrently running workflows, so it is the only thing
// that needs synchronization.
package orchestrator
