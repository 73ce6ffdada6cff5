package orchestrator

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/cadenzahq/cadenza/pkg/errors"
)

const tracerName = "github.com/cadenzahq/cadenza/pkg/orchestrator"

// Engine owns the executor registry, the graph registry, and the
// active-workflow table, and drives the dependency-respecting execution loop.
type Engine struct {
	logger      *slog.Logger
	tracer      trace.Tracer
	metrics     *Metrics
	stepTimeout time.Duration

	mu             sync.RWMutex
	executors      map[string]Executor
	graphs         map[string]*StepGraph
	active         map[string]*Instance
	finished       map[string]*Instance
	totalStarted   int64
	completedCount int64
	failedCount    int64
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets a custom logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithTracer sets a custom tracer. The default uses the global otel tracer
// provider, which is a no-op unless the embedding application installs one.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = tracer
	}
}

// WithMetrics enables Prometheus metrics for the engine.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithStepTimeout bounds the wall time of every step dispatch. Zero, the
// default, means no timeout: a hung executor call stalls its workflow
// indefinitely, matching the engine's original behavior.
func WithStepTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.stepTimeout = d
	}
}

// New creates an engine with empty registries.
func New(opts ...Option) *Engine {
	e := &Engine{
		logger:    slog.Default(),
		tracer:    otel.Tracer(tracerName),
		executors: make(map[string]Executor),
		graphs:    make(map[string]*StepGraph),
		active:    make(map[string]*Instance),
		finished:  make(map[string]*Instance),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RegisterExecutor adds an executor to the registry. Re-registering an ID
// replaces the prior binding; last write wins. This is how a legacy executor
// set is swapped for a consolidated one without touching graphs.
func (e *Engine) RegisterExecutor(exec Executor) {
	e.mu.Lock()
	_, replaced := e.executors[exec.ID()]
	e.executors[exec.ID()] = exec
	e.mu.Unlock()

	e.logger.Debug("executor registered",
		"executor", exec.ID(),
		"capabilities", exec.Capabilities(),
		"replaced", replaced,
	)
}

// RegisterGraph validates and registers a step graph, replacing any graph
// with the same name.
func (e *Engine) RegisterGraph(graph *StepGraph) error {
	if graph == nil {
		return &errors.ValidationError{
			Field:   "graph",
			Message: "graph cannot be nil",
		}
	}
	if err := graph.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	e.graphs[graph.Name] = graph
	e.mu.Unlock()

	e.logger.Debug("graph registered", "workflow", graph.Name, "steps", len(graph.Steps))
	return nil
}

// Start runs the named graph synchronously to completion or failure. It
// always returns the workflow ID once an instance exists, so callers can
// inspect a failed run through Status; the error reports why the run
// aborted, if it did.
func (e *Engine) Start(ctx context.Context, graphName string, input, metadata map[string]any) (string, error) {
	e.mu.RLock()
	graph, ok := e.graphs[graphName]
	e.mu.RUnlock()
	if !ok {
		return "", &UnknownWorkflowError{Graph: graphName}
	}

	inst := e.Begin(graphName, input, metadata)
	err := e.runGraph(ctx, graph, inst)
	e.Finish(inst, err)
	return inst.ID, err
}

// Begin creates a workflow instance and registers it in the active table.
// Start uses it internally; imperative drivers (strategy execution) use it
// directly together with Dispatch and Finish.
func (e *Engine) Begin(graphName string, input, metadata map[string]any) *Instance {
	inst := newInstance(graphName, input, metadata)

	e.mu.Lock()
	e.active[inst.ID] = inst
	e.totalStarted++
	e.mu.Unlock()

	e.metrics.workflowStarted()
	e.logger.Info("workflow started", "run_id", inst.ID, "workflow", graphName)
	return inst
}

// Finish records the terminal state of a run and moves the instance from the
// active table to the queryable history. If the instance was cancelled while
// running it is gone from the active table already; its late results are
// discarded rather than surfaced.
func (e *Engine) Finish(inst *Instance, runErr error) {
	if runErr != nil {
		inst.fail(runErr)
	} else {
		inst.complete()
	}

	e.mu.Lock()
	_, wasActive := e.active[inst.ID]
	if wasActive {
		delete(e.active, inst.ID)
		e.finished[inst.ID] = inst
		if runErr != nil {
			e.failedCount++
		} else {
			e.completedCount++
		}
	}
	e.mu.Unlock()

	if !wasActive {
		e.logger.Debug("discarding result of cancelled workflow", "run_id", inst.ID)
		return
	}

	if runErr != nil {
		e.metrics.workflowFailed()
		e.logger.Error("workflow failed",
			"run_id", inst.ID,
			"workflow", inst.GraphName,
			"error", runErr,
		)
		return
	}

	e.metrics.workflowCompleted()
	e.logger.Info("workflow completed",
		"run_id", inst.ID,
		"workflow", inst.GraphName,
		"steps", len(inst.CompletedSteps()),
	)
}

// Status returns a snapshot of a workflow instance, running or terminal.
func (e *Engine) Status(id string) (*StatusView, error) {
	e.mu.RLock()
	inst, ok := e.active[id]
	if !ok {
		inst, ok = e.finished[id]
	}
	e.mu.RUnlock()

	if !ok {
		return nil, &errors.NotFoundError{Resource: "workflow", ID: id}
	}
	return inst.View(), nil
}

// Cancel removes a running instance from the active table and reports
// whether it was present. Cancellation is best-effort and non-preemptive:
// a dispatch already in flight runs to completion in the background, and its
// result is discarded because the instance has left the registry. Terminal
// and unknown IDs return false.
func (e *Engine) Cancel(id string) bool {
	e.mu.Lock()
	_, ok := e.active[id]
	if ok {
		delete(e.active, id)
	}
	e.mu.Unlock()

	if ok {
		e.metrics.workflowCancelled()
		e.logger.Info("workflow cancelled", "run_id", id)
	}
	return ok
}

// ExecutorStatus returns the metrics snapshot for one executor.
func (e *Engine) ExecutorStatus(id string) (ExecutorStatus, error) {
	e.mu.RLock()
	exec, ok := e.executors[id]
	e.mu.RUnlock()

	if !ok {
		return ExecutorStatus{}, &errors.NotFoundError{Resource: "executor", ID: id}
	}
	return executorStatus(exec), nil
}

// ExecutorStatuses returns metrics snapshots for all registered executors,
// sorted by ID.
func (e *Engine) ExecutorStatuses() []ExecutorStatus {
	e.mu.RLock()
	statuses := make([]ExecutorStatus, 0, len(e.executors))
	for _, exec := range e.executors {
		statuses = append(statuses, executorStatus(exec))
	}
	e.mu.RUnlock()

	sort.Slice(statuses, func(i, j int) bool { return statuses[i].ID < statuses[j].ID })
	return statuses
}

func executorStatus(exec Executor) ExecutorStatus {
	if reporter, ok := exec.(StatusReporter); ok {
		return reporter.Status()
	}
	return ExecutorStatus{
		ID:           exec.ID(),
		Capabilities: exec.Capabilities(),
	}
}

// EngineStats aggregates run counters and registry contents.
type EngineStats struct {
	TotalStarted int64    `json:"total_started"`
	Completed    int64    `json:"completed"`
	Failed       int64    `json:"failed"`
	Active       int      `json:"active"`
	Executors    []string `json:"executors"`
	Graphs       []string `json:"graphs"`
}

// Stats returns a snapshot of the engine counters and registered names.
func (e *Engine) Stats() EngineStats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	executors := make([]string, 0, len(e.executors))
	for id := range e.executors {
		executors = append(executors, id)
	}
	sort.Strings(executors)

	graphs := make([]string, 0, len(e.graphs))
	for name := range e.graphs {
		graphs = append(graphs, name)
	}
	sort.Strings(graphs)

	return EngineStats{
		TotalStarted: e.totalStarted,
		Completed:    e.completedCount,
		Failed:       e.failedCount,
		Active:       len(e.active),
		Executors:    executors,
		Graphs:       graphs,
	}
}
