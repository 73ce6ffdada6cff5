package orchestrator

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/cadenzahq/cadenza/pkg/errors"
)

// runGraph drives one instance through the scheduling loop.
//
// Each round collects the ready set (remaining steps whose dependencies have
// all completed), fans out its parallel-eligible members concurrently, joins
// them, then runs the rest one at a time in definition order. An empty ready
// set with steps remaining is a deadlock: the graph is cyclic or depends on
// a step that does not exist. Any failure aborts the run; results recorded
// before the failure stay on the instance for diagnostics.
func (e *Engine) runGraph(ctx context.Context, graph *StepGraph, inst *Instance) error {
	ctx, span := e.tracer.Start(ctx, "workflow.run: "+graph.Name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("workflow.name", graph.Name),
			attribute.String("workflow.run_id", inst.ID),
			attribute.Int("workflow.steps", len(graph.Steps)),
		),
	)
	defer span.End()

	logger := e.logger.With("run_id", inst.ID, "workflow", graph.Name)

	inst.setStatus(StatusRunning)

	completed := make(map[string]bool, len(graph.Steps))
	remaining := make([]StepSpec, len(graph.Steps))
	copy(remaining, graph.Steps)
	inst.SetPending(stepNames(remaining))

	round := 0
	for len(remaining) > 0 {
		round++

		var ready []StepSpec
		for _, step := range remaining {
			if depsSatisfied(step, completed) {
				ready = append(ready, step)
			}
		}

		if len(ready) == 0 {
			err := &DeadlockError{Graph: graph.Name, Remaining: stepNames(remaining)}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}

		// Partition the ready set, preserving definition order within each
		// half. The parallel batch runs and joins before any sequential step
		// of the round, so each round has exactly one fan-out.
		var parallel, sequential []StepSpec
		for _, step := range ready {
			if step.Parallel {
				parallel = append(parallel, step)
			} else {
				sequential = append(sequential, step)
			}
		}

		logger.Debug("scheduling round",
			"round", round,
			"parallel", stepNames(parallel),
			"sequential", stepNames(sequential),
		)

		if len(parallel) > 0 {
			done, err := e.runParallel(ctx, inst, parallel)
			for _, name := range done {
				completed[name] = true
				inst.MarkCompleted(name)
			}
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return err
			}
		}

		for _, step := range sequential {
			if _, err := e.dispatchStep(ctx, inst, step); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return err
			}
			completed[step.Name] = true
			inst.MarkCompleted(step.Name)
		}

		kept := remaining[:0]
		for _, step := range remaining {
			if !completed[step.Name] {
				kept = append(kept, step)
			}
		}
		remaining = kept
		inst.SetPending(stepNames(remaining))
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// runParallel fans out a batch of steps concurrently and joins all of them
// before returning; the join is the round's synchronization barrier. It
// returns the names of the steps that succeeded, in completion order, and
// the first failure observed. On failure, sibling results already received
// stay recorded on the instance.
func (e *Engine) runParallel(ctx context.Context, inst *Instance, batch []StepSpec) ([]string, error) {
	type stepResult struct {
		name string
		err  error
	}

	results := make(chan stepResult, len(batch))
	for _, step := range batch {
		go func(s StepSpec) {
			_, err := e.dispatchStep(ctx, inst, s)
			results <- stepResult{name: s.Name, err: err}
		}(step)
	}

	var done []string
	var firstErr error
	for range batch {
		res := <-results
		if res.err != nil {
			if firstErr == nil {
				firstErr = res.err
			}
			continue
		}
		done = append(done, res.name)
	}

	return done, firstErr
}

// dispatchStep runs one graph step through the dispatch primitive. The
// result is recorded under the step's executor ID.
func (e *Engine) dispatchStep(ctx context.Context, inst *Instance, step StepSpec) (map[string]any, error) {
	return e.dispatch(ctx, inst, step.Name, step.ExecutorID, step.Action, step.Input, step.ExecutorID)
}

// Dispatch runs a single instruction against a live instance, outside any
// registered graph. Strategy-driven execution uses this primitive to drive
// executors imperatively, one instruction after another. The result is
// recorded under resultKey (the executor ID when empty), which lets a
// retargeted instruction keep writing under its original executor name.
func (e *Engine) Dispatch(ctx context.Context, inst *Instance, executorID, action string, payload map[string]any, resultKey string) (map[string]any, error) {
	if resultKey == "" {
		resultKey = executorID
	}
	return e.dispatch(ctx, inst, action, executorID, action, payload, resultKey)
}

func (e *Engine) dispatch(ctx context.Context, inst *Instance, stepName, executorID, action string, payload map[string]any, resultKey string) (map[string]any, error) {
	e.mu.RLock()
	exec, ok := e.executors[executorID]
	e.mu.RUnlock()
	if !ok {
		return nil, &UnknownExecutorError{Executor: executorID}
	}

	ctx, span := e.tracer.Start(ctx, "step: "+stepName,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("step.name", stepName),
			attribute.String("step.executor", executorID),
			attribute.String("step.action", action),
			attribute.String("workflow.run_id", inst.ID),
		),
	)
	defer span.End()

	if e.stepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.stepTimeout)
		defer cancel()
	}

	inst.setCurrentStep(stepName)
	msg := newMessage(SenderOrchestrator, executorID, inst.ID, action, payload, inst.OriginInput)

	start := time.Now()
	out, err := exec.Handle(ctx, msg, inst)
	duration := time.Since(start)
	e.metrics.observeStep(executorID, action, duration)

	if err != nil {
		if e.stepTimeout > 0 && errors.Is(err, context.DeadlineExceeded) {
			err = &errors.TimeoutError{
				Operation: "step " + stepName,
				Duration:  e.stepTimeout,
				Cause:     err,
			}
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Error("step failed",
			"run_id", inst.ID,
			"step", stepName,
			"executor", executorID,
			"action", action,
			"duration_ms", duration.Milliseconds(),
			"error", err,
		)
		return nil, &StepFailure{
			Step:       stepName,
			ExecutorID: executorID,
			Action:     action,
			Cause:      err,
		}
	}

	if len(out) > 0 {
		inst.RecordAll(resultKey, out)
	}

	e.logger.Debug("step completed",
		"run_id", inst.ID,
		"step", stepName,
		"executor", executorID,
		"action", action,
		"duration_ms", duration.Milliseconds(),
	)
	return out, nil
}

func depsSatisfied(step StepSpec, completed map[string]bool) bool {
	for _, dep := range step.DependsOn {
		if !completed[dep] {
			return false
		}
	}
	return true
}

func stepNames(steps []StepSpec) []string {
	names := make([]string, len(steps))
	for i, step := range steps {
		names[i] = step.Name
	}
	return names
}
