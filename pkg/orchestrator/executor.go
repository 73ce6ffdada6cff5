package orchestrator

import (
	"context"
	"log/slog"
	"sync"
)

// Executor is a polymorphic unit of work. Implementations wrap whatever
// business logic a step delegates to: a commerce API call, a search lookup,
// a notification send.
//
// Handle is the sole entry point and must be safe to invoke concurrently
// from different workflow instances. Executor-owned mutable resources
// (session caches, reservation tables, sequence counters) are shared across
// workflows and must carry their own synchronization; the engine gives no
// serialization guarantee across runs. External calls made by Handle must
// complete, for better or worse, before Handle returns.
type Executor interface {
	// ID returns the registry name of the executor.
	ID() string

	// Capabilities returns the action tags this executor can perform.
	Capabilities() []string

	// CanHandle reports whether the executor can perform the given action.
	CanHandle(action string) bool

	// Handle performs one action. On success it returns the result values,
	// which the engine records on the instance so downstream steps can read
	// them; implementations may also call inst.Record directly for
	// additional keys.
	Handle(ctx context.Context, msg *Message, inst *Instance) (map[string]any, error)
}

// HandlerFunc performs one action on behalf of an executor.
type HandlerFunc func(ctx context.Context, msg *Message, inst *Instance) (map[string]any, error)

// StatusReporter is implemented by executors that expose run-time metrics.
// The engine uses it for ExecutorStatus; executors built on BaseExecutor get
// it for free.
type StatusReporter interface {
	Status() ExecutorStatus
}

// ExecutorStatus is a snapshot of one executor's metrics.
type ExecutorStatus struct {
	ID           string   `json:"id"`
	Capabilities []string `json:"capabilities"`
	Handled      int64    `json:"handled"`
	Failed       int64    `json:"failed"`
	LastError    string   `json:"last_error,omitempty"`
}

// BaseExecutor provides the common executor machinery: an action-to-handler
// map, mutex-guarded executor-local state, and handled/failed counters.
// Concrete executors embed it (or use it directly) and register one handler
// per action.
type BaseExecutor struct {
	id     string
	logger *slog.Logger

	actions  []string
	handlers map[string]HandlerFunc

	stateMu sync.Mutex
	state   map[string]any

	statMu    sync.Mutex
	handled   int64
	failed    int64
	lastError string
}

// NewBaseExecutor creates an executor with no registered actions.
func NewBaseExecutor(id string) *BaseExecutor {
	return &BaseExecutor{
		id:       id,
		logger:   slog.Default(),
		handlers: make(map[string]HandlerFunc),
		state:    make(map[string]any),
	}
}

// WithLogger sets a custom logger for the executor.
func (b *BaseExecutor) WithLogger(logger *slog.Logger) *BaseExecutor {
	b.logger = logger
	return b
}

// RegisterAction binds a handler to an action name. Re-registering an action
// replaces the handler and keeps its original capability position.
func (b *BaseExecutor) RegisterAction(action string, fn HandlerFunc) *BaseExecutor {
	if _, exists := b.handlers[action]; !exists {
		b.actions = append(b.actions, action)
	}
	b.handlers[action] = fn
	return b
}

// ID returns the registry name of the executor.
func (b *BaseExecutor) ID() string {
	return b.id
}

// Capabilities returns the registered action names in registration order.
func (b *BaseExecutor) Capabilities() []string {
	return append([]string(nil), b.actions...)
}

// CanHandle reports whether a handler is registered for the action.
func (b *BaseExecutor) CanHandle(action string) bool {
	_, ok := b.handlers[action]
	return ok
}

// Handle dispatches the message to the handler registered for its action.
func (b *BaseExecutor) Handle(ctx context.Context, msg *Message, inst *Instance) (map[string]any, error) {
	handler, ok := b.handlers[msg.Action]
	if !ok {
		err := &UnknownActionError{Executor: b.id, Action: msg.Action}
		b.recordFailure(err)
		return nil, err
	}

	b.logger.Debug("executor handling action",
		"executor", b.id,
		"action", msg.Action,
		"workflow_id", msg.WorkflowID,
		"message_id", msg.ID,
	)

	out, err := handler(ctx, msg, inst)
	if err != nil {
		b.recordFailure(err)
		return nil, err
	}

	b.statMu.Lock()
	b.handled++
	b.statMu.Unlock()

	return out, nil
}

func (b *BaseExecutor) recordFailure(err error) {
	b.statMu.Lock()
	b.handled++
	b.failed++
	b.lastError = err.Error()
	b.statMu.Unlock()
}

// SetState stores an executor-local value. State is shared across all
// workflows touching this executor and is guarded internally.
func (b *BaseExecutor) SetState(key string, value any) {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	b.state[key] = value
}

// State returns an executor-local value.
func (b *BaseExecutor) State(key string) (any, bool) {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	value, ok := b.state[key]
	return value, ok
}

// MutateState runs fn with exclusive access to the state map. Use it for
// read-modify-write sequences (counters, reservations) that must not
// interleave with other workflows.
func (b *BaseExecutor) MutateState(fn func(state map[string]any)) {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	fn(b.state)
}

// Status returns a snapshot of the executor's metrics.
func (b *BaseExecutor) Status() ExecutorStatus {
	b.statMu.Lock()
	defer b.statMu.Unlock()
	return ExecutorStatus{
		ID:           b.id,
		Capabilities: b.Capabilities(),
		Handled:      b.handled,
		Failed:       b.failed,
		LastError:    b.lastError,
	}
}
