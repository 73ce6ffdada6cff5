package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cadenzahq/cadenza/pkg/errors"
)

// tracingExecutor records the order in which its actions run.
type tracingExecutor struct {
	*BaseExecutor
	mu    sync.Mutex
	trace []string
}

func newTracingExecutor(id string, actions ...string) *tracingExecutor {
	t := &tracingExecutor{BaseExecutor: NewBaseExecutor(id)}
	for _, action := range actions {
		t.RegisterAction(action, func(_ context.Context, msg *Message, _ *Instance) (map[string]any, error) {
			t.mu.Lock()
			t.trace = append(t.trace, msg.Action)
			t.mu.Unlock()
			return map[string]any{msg.Action: "done"}, nil
		})
	}
	return t
}

func (t *tracingExecutor) Trace() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.trace...)
}

func placeOrderGraph() *StepGraph {
	return &StepGraph{
		Name: "place_order",
		Steps: []StepSpec{
			{Name: "search", ExecutorID: "shop", Action: "search"},
			{Name: "auth", ExecutorID: "shop", Action: "auth", Parallel: true},
			{Name: "checkInventory", ExecutorID: "shop", Action: "checkInventory", DependsOn: []string{"search"}},
			{Name: "getAddress", ExecutorID: "shop", Action: "getAddress", DependsOn: []string{"auth"}},
			{Name: "validate", ExecutorID: "shop", Action: "validate", DependsOn: []string{"checkInventory", "getAddress"}},
			{Name: "createOrder", ExecutorID: "shop", Action: "createOrder", DependsOn: []string{"validate"}},
		},
	}
}

// The canonical six-step ordering scenario: one parallel step in the first
// round, then a chain of dependent rounds. The parallel batch joins before
// the round's sequential steps, so auth lands ahead of search even though
// search is defined first.
func TestRunGraphRoundOrdering(t *testing.T) {
	exec := newTracingExecutor("shop",
		"search", "auth", "checkInventory", "getAddress", "validate", "createOrder")

	engine := New()
	engine.RegisterExecutor(exec)
	require.NoError(t, engine.RegisterGraph(placeOrderGraph()))

	id, err := engine.Start(context.Background(), "place_order", nil, nil)
	require.NoError(t, err)

	view, err := engine.Status(id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, view.Status)
	assert.Equal(t,
		[]string{"auth", "search", "checkInventory", "getAddress", "validate", "createOrder"},
		view.CompletedSteps)
	assert.Equal(t, view.CompletedSteps, exec.Trace())
	assert.Empty(t, view.PendingSteps)
}

func TestRunGraphDeadlockOnCycle(t *testing.T) {
	engine := New()
	engine.RegisterExecutor(okExecutor("worker", "work"))
	require.NoError(t, engine.RegisterGraph(&StepGraph{
		Name: "cyclic",
		Steps: []StepSpec{
			{Name: "a", ExecutorID: "worker", Action: "work", DependsOn: []string{"b"}},
			{Name: "b", ExecutorID: "worker", Action: "work", DependsOn: []string{"a"}},
		},
	}))

	id, err := engine.Start(context.Background(), "cyclic", nil, nil)
	require.Error(t, err)

	var deadlock *DeadlockError
	require.ErrorAs(t, err, &deadlock)
	assert.Equal(t, "cyclic", deadlock.Graph)
	assert.ElementsMatch(t, []string{"a", "b"}, deadlock.Remaining)

	view, viewErr := engine.Status(id)
	require.NoError(t, viewErr)
	assert.Equal(t, StatusFailed, view.Status)
	assert.Empty(t, view.CompletedSteps)
}

func TestRunGraphDeadlockOnDanglingDependency(t *testing.T) {
	engine := New()
	engine.RegisterExecutor(okExecutor("worker", "work"))
	require.NoError(t, engine.RegisterGraph(&StepGraph{
		Name: "dangling",
		Steps: []StepSpec{
			{Name: "a", ExecutorID: "worker", Action: "work", DependsOn: []string{"ghost"}},
		},
	}))

	_, err := engine.Start(context.Background(), "dangling", nil, nil)

	var deadlock *DeadlockError
	require.ErrorAs(t, err, &deadlock)
	assert.Equal(t, []string{"a"}, deadlock.Remaining)
}

// The parallel batch of a round must run concurrently and fully join before
// the round's first sequential step. Each parallel handler blocks until both
// have started; if the engine serialized them the test would hang, and if
// the join were missing the sequential handler would observe a count below
// two.
func TestRunGraphParallelBarrier(t *testing.T) {
	var started sync.WaitGroup
	started.Add(2)
	var finished atomic.Int32
	var observedAtSequential atomic.Int32

	exec := NewBaseExecutor("sync")
	parallelHandler := func(_ context.Context, _ *Message, _ *Instance) (map[string]any, error) {
		started.Done()
		started.Wait()
		finished.Add(1)
		return nil, nil
	}
	exec.RegisterAction("left", parallelHandler)
	exec.RegisterAction("right", parallelHandler)
	exec.RegisterAction("after", func(_ context.Context, _ *Message, _ *Instance) (map[string]any, error) {
		observedAtSequential.Store(finished.Load())
		return nil, nil
	})

	engine := New()
	engine.RegisterExecutor(exec)
	require.NoError(t, engine.RegisterGraph(&StepGraph{
		Name: "barrier",
		Steps: []StepSpec{
			{Name: "left", ExecutorID: "sync", Action: "left", Parallel: true},
			{Name: "right", ExecutorID: "sync", Action: "right", Parallel: true},
			{Name: "after", ExecutorID: "sync", Action: "after"},
		},
	}))

	_, err := engine.Start(context.Background(), "barrier", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), observedAtSequential.Load(),
		"sequential step ran before the parallel batch joined")
}

// A failure in a parallel batch aborts the run, but sibling results received
// before the join stay recorded for diagnostics and no later step runs.
func TestRunGraphParallelFailureAborts(t *testing.T) {
	var downstreamRan atomic.Bool

	exec := NewBaseExecutor("mixed")
	exec.RegisterAction("succeed", func(_ context.Context, _ *Message, _ *Instance) (map[string]any, error) {
		return map[string]any{"outcome": "fine"}, nil
	})
	exec.RegisterAction("explode", func(_ context.Context, _ *Message, _ *Instance) (map[string]any, error) {
		return nil, errors.New("payment gateway rejected the charge")
	})
	exec.RegisterAction("downstream", func(_ context.Context, _ *Message, _ *Instance) (map[string]any, error) {
		downstreamRan.Store(true)
		return nil, nil
	})

	engine := New()
	engine.RegisterExecutor(exec)
	require.NoError(t, engine.RegisterGraph(&StepGraph{
		Name: "partial",
		Steps: []StepSpec{
			{Name: "good", ExecutorID: "mixed", Action: "succeed", Parallel: true},
			{Name: "bad", ExecutorID: "mixed", Action: "explode", Parallel: true},
			{Name: "later", ExecutorID: "mixed", Action: "downstream", DependsOn: []string{"good", "bad"}},
		},
	}))

	id, err := engine.Start(context.Background(), "partial", nil, nil)
	require.Error(t, err)

	var failure *StepFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "bad", failure.Step)

	assert.False(t, downstreamRan.Load(), "dependent step must not run after an abort")

	view, viewErr := engine.Status(id)
	require.NoError(t, viewErr)
	assert.Equal(t, StatusFailed, view.Status)
	assert.Equal(t, "fine", view.ExecutorData["mixed"]["outcome"],
		"sibling result should survive the abort")
	assert.Contains(t, view.PendingSteps, "later")
}

func TestRunGraphUnknownExecutor(t *testing.T) {
	engine := New()
	require.NoError(t, engine.RegisterGraph(singleStepGraph("orphan", "ghost", "work")))

	_, err := engine.Start(context.Background(), "orphan", nil, nil)
	require.Error(t, err)

	var unknown *UnknownExecutorError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "ghost", unknown.Executor)
}

func TestStepTimeout(t *testing.T) {
	slow := NewBaseExecutor("slow")
	slow.RegisterAction("hang", func(ctx context.Context, _ *Message, _ *Instance) (map[string]any, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
			return map[string]any{"finished": true}, nil
		}
	})

	engine := New(WithStepTimeout(20 * time.Millisecond))
	engine.RegisterExecutor(slow)
	require.NoError(t, engine.RegisterGraph(singleStepGraph("slowpoke", "slow", "hang")))

	_, err := engine.Start(context.Background(), "slowpoke", nil, nil)
	require.Error(t, err)

	var failure *StepFailure
	require.ErrorAs(t, err, &failure)
	assert.True(t, errors.IsTimeout(err), "timeout should be classified, got %v", err)
}

func TestDispatchOutsideGraph(t *testing.T) {
	exec := NewBaseExecutor("commerce")
	exec.RegisterAction("process_refund", func(_ context.Context, msg *Message, _ *Instance) (map[string]any, error) {
		return map[string]any{"refund_id": "ref-1", "order_id": msg.Payload["order_id"]}, nil
	})

	engine := New()
	engine.RegisterExecutor(exec)

	inst := engine.Begin("manual", map[string]any{"reason": "damaged"}, nil)

	out, err := engine.Dispatch(context.Background(), inst, "commerce", "process_refund",
		map[string]any{"order_id": "order-9"}, "payment")
	require.NoError(t, err)
	assert.Equal(t, "ref-1", out["refund_id"])

	// Recorded under the caller-chosen key, not the executor ID.
	value, ok := inst.Result("payment", "refund_id")
	require.True(t, ok)
	assert.Equal(t, "ref-1", value)
	_, ok = inst.Result("commerce", "refund_id")
	assert.False(t, ok)

	engine.Finish(inst, nil)
	view, err := engine.Status(inst.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, view.Status)
}

func TestDispatchDefaultResultKey(t *testing.T) {
	engine := New()
	engine.RegisterExecutor(okExecutor("notify", "send_notification"))

	inst := engine.Begin("manual", nil, nil)
	_, err := engine.Dispatch(context.Background(), inst, "notify", "send_notification", nil, "")
	require.NoError(t, err)

	_, ok := inst.Result("notify", "ok")
	assert.True(t, ok)
	engine.Finish(inst, nil)
}
