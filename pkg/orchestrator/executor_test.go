package orchestrator

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseExecutorDispatch(t *testing.T) {
	exec := NewBaseExecutor("commerce")
	exec.RegisterAction("cancel_order", func(_ context.Context, msg *Message, _ *Instance) (map[string]any, error) {
		return map[string]any{"order_id": msg.Payload["order_id"], "status": "cancelled"}, nil
	})

	assert.Equal(t, "commerce", exec.ID())
	assert.True(t, exec.CanHandle("cancel_order"))
	assert.False(t, exec.CanHandle("issue_gift_card"))
	assert.Equal(t, []string{"cancel_order"}, exec.Capabilities())

	inst := newInstance("test", nil, nil)
	msg := newMessage(SenderOrchestrator, "commerce", inst.ID, "cancel_order",
		map[string]any{"order_id": "order-7"}, nil)

	out, err := exec.Handle(context.Background(), msg, inst)
	require.NoError(t, err)
	assert.Equal(t, "cancelled", out["status"])
}

func TestBaseExecutorUnknownAction(t *testing.T) {
	exec := NewBaseExecutor("commerce")
	exec.RegisterAction("cancel_order", func(_ context.Context, _ *Message, _ *Instance) (map[string]any, error) {
		return nil, nil
	})

	inst := newInstance("test", nil, nil)
	msg := newMessage(SenderOrchestrator, "commerce", inst.ID, "teleport_order", nil, nil)

	_, err := exec.Handle(context.Background(), msg, inst)
	require.Error(t, err)

	var unknownAction *UnknownActionError
	require.ErrorAs(t, err, &unknownAction)
	assert.Equal(t, "commerce", unknownAction.Executor)
	assert.Equal(t, "teleport_order", unknownAction.Action)
}

func TestBaseExecutorCapabilitiesOrder(t *testing.T) {
	exec := NewBaseExecutor("commerce")
	exec.RegisterAction("create_order", nil)
	exec.RegisterAction("cancel_order", nil)
	exec.RegisterAction("process_refund", nil)
	// Re-registering keeps the original position.
	exec.RegisterAction("create_order", nil)

	assert.Equal(t, []string{"create_order", "cancel_order", "process_refund"}, exec.Capabilities())
}

func TestBaseExecutorStatusCounters(t *testing.T) {
	exec := NewBaseExecutor("flaky")
	exec.RegisterAction("work", func(_ context.Context, msg *Message, _ *Instance) (map[string]any, error) {
		if msg.Payload["boom"] == true {
			return nil, assert.AnError
		}
		return map[string]any{"ok": true}, nil
	})

	inst := newInstance("test", nil, nil)
	ctx := context.Background()

	_, _ = exec.Handle(ctx, newMessage(SenderOrchestrator, "flaky", inst.ID, "work", nil, nil), inst)
	_, _ = exec.Handle(ctx, newMessage(SenderOrchestrator, "flaky", inst.ID, "work", map[string]any{"boom": true}, nil), inst)

	status := exec.Status()
	assert.Equal(t, int64(2), status.Handled)
	assert.Equal(t, int64(1), status.Failed)
	assert.NotEmpty(t, status.LastError)
}

// Executor-local state is shared across concurrently running workflows, so
// read-modify-write sequences must not interleave.
func TestBaseExecutorStateConcurrency(t *testing.T) {
	exec := NewBaseExecutor("counter")
	exec.RegisterAction("next", func(_ context.Context, _ *Message, _ *Instance) (map[string]any, error) {
		exec.MutateState(func(state map[string]any) {
			current, _ := state["sequence"].(int)
			state["sequence"] = current + 1
		})
		return nil, nil
	})

	const workers = 50
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			inst := newInstance("test", nil, nil)
			msg := newMessage(SenderOrchestrator, "counter", inst.ID, "next", nil, nil)
			_, _ = exec.Handle(context.Background(), msg, inst)
		}()
	}
	wg.Wait()

	value, ok := exec.State("sequence")
	require.True(t, ok)
	assert.Equal(t, workers, value)
	assert.Equal(t, int64(workers), exec.Status().Handled)
}
