package orchestrator

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle state of a workflow instance.
type Status string

// Workflow instance states.
const (
	StatusCreated   Status = "created"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsTerminal returns true if the status admits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Instance is the mutable run-time record of one workflow execution. It is
// created by the engine, mutated by the single execution loop that drives it,
// and becomes read-only once terminal.
//
// The exported fields are fixed at creation. Everything that changes during
// the run sits behind an internal mutex so that Status polling and parallel
// executors recording results never race with the loop.
type Instance struct {
	// ID uniquely identifies this run.
	ID string

	// GraphName is the registered graph this run executes, or a synthetic
	// name for strategy-driven runs.
	GraphName string

	// OriginInput is the request that triggered the run.
	OriginInput map[string]any

	// Metadata is free-form caller context.
	Metadata map[string]any

	// CreatedAt is when the instance was created.
	CreatedAt time.Time

	mu             sync.Mutex
	status         Status
	currentStep    string
	completedSteps []string
	pendingSteps   []string
	executorData   map[string]map[string]any
	errMsg         string
	updatedAt      time.Time
}

func newInstance(graphName string, input, metadata map[string]any) *Instance {
	if input == nil {
		input = make(map[string]any)
	}
	if metadata == nil {
		metadata = make(map[string]any)
	}
	now := time.Now()
	return &Instance{
		ID:           uuid.NewString(),
		GraphName:    graphName,
		OriginInput:  input,
		Metadata:     metadata,
		CreatedAt:    now,
		status:       StatusCreated,
		executorData: make(map[string]map[string]any),
		updatedAt:    now,
	}
}

// Status returns the current lifecycle state.
func (in *Instance) Status() Status {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.status
}

func (in *Instance) setStatus(s Status) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.status = s
	in.updatedAt = time.Now()
}

func (in *Instance) fail(err error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.status = StatusFailed
	in.errMsg = err.Error()
	in.updatedAt = time.Now()
}

func (in *Instance) complete() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.status = StatusCompleted
	in.currentStep = ""
	in.updatedAt = time.Now()
}

func (in *Instance) setCurrentStep(step string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.currentStep = step
	in.updatedAt = time.Now()
}

// MarkCompleted appends a step to the completion history and removes it from
// the pending set. Only the loop driving the instance may call it.
func (in *Instance) MarkCompleted(step string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.completedSteps = append(in.completedSteps, step)
	for i, name := range in.pendingSteps {
		if name == step {
			in.pendingSteps = append(in.pendingSteps[:i], in.pendingSteps[i+1:]...)
			break
		}
	}
	in.updatedAt = time.Now()
}

// SetPending replaces the pending-step list. Only the loop driving the
// instance may call it.
func (in *Instance) SetPending(steps []string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.pendingSteps = append([]string(nil), steps...)
	in.updatedAt = time.Now()
}

// CompletedSteps returns the completion history in completion order.
func (in *Instance) CompletedSteps() []string {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]string(nil), in.completedSteps...)
}

// Record stores a single result value for an executor. Executors call this
// from Handle to expose results to downstream steps; writes from parallel
// siblings are serialized internally.
func (in *Instance) Record(executorID, key string, value any) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.recordLocked(executorID, key, value)
}

// RecordAll stores every entry of values for an executor.
func (in *Instance) RecordAll(executorID string, values map[string]any) {
	in.mu.Lock()
	defer in.mu.Unlock()
	for key, value := range values {
		in.recordLocked(executorID, key, value)
	}
}

func (in *Instance) recordLocked(executorID, key string, value any) {
	data, ok := in.executorData[executorID]
	if !ok {
		data = make(map[string]any)
		in.executorData[executorID] = data
	}
	data[key] = value
	in.updatedAt = time.Now()
}

// Result returns a single recorded value for an executor.
func (in *Instance) Result(executorID, key string) (any, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	data, ok := in.executorData[executorID]
	if !ok {
		return nil, false
	}
	value, ok := data[key]
	return value, ok
}

// Results returns a copy of all values recorded for an executor.
func (in *Instance) Results(executorID string) map[string]any {
	in.mu.Lock()
	defer in.mu.Unlock()
	data, ok := in.executorData[executorID]
	if !ok {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}

// StatusView is a point-in-time, caller-owned snapshot of an instance.
type StatusView struct {
	ID             string                    `json:"id"`
	GraphName      string                    `json:"workflow"`
	Status         Status                    `json:"status"`
	CurrentStep    string                    `json:"current_step,omitempty"`
	CompletedSteps []string                  `json:"completed_steps"`
	PendingSteps   []string                  `json:"pending_steps"`
	ExecutorData   map[string]map[string]any `json:"executor_data,omitempty"`
	Error          string                    `json:"error,omitempty"`
	CreatedAt      time.Time                 `json:"created_at"`
	UpdatedAt      time.Time                 `json:"updated_at"`
}

// View builds a snapshot copy of the instance. The copy shares nothing
// mutable with the live instance.
func (in *Instance) View() *StatusView {
	in.mu.Lock()
	defer in.mu.Unlock()

	data := make(map[string]map[string]any, len(in.executorData))
	for executorID, values := range in.executorData {
		copied := make(map[string]any, len(values))
		for k, v := range values {
			copied[k] = v
		}
		data[executorID] = copied
	}

	return &StatusView{
		ID:             in.ID,
		GraphName:      in.GraphName,
		Status:         in.status,
		CurrentStep:    in.currentStep,
		CompletedSteps: append([]string(nil), in.completedSteps...),
		PendingSteps:   append([]string(nil), in.pendingSteps...),
		ExecutorData:   data,
		Error:          in.errMsg,
		CreatedAt:      in.CreatedAt,
		UpdatedAt:      in.updatedAt,
	}
}
