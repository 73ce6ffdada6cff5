// Package builtin provides small self-contained executors for the CLI and
// for trying out graphs without writing Go. They double as worked examples
// of building executors on orchestrator.BaseExecutor.
package builtin

import (
	"context"
	"fmt"
	"time"

	"github.com/cadenzahq/cadenza/pkg/orchestrator"
)

// Echo returns an executor whose "echo" action reflects its payload back as
// its result.
func Echo() *orchestrator.BaseExecutor {
	exec := orchestrator.NewBaseExecutor("echo")
	exec.RegisterAction("echo", func(_ context.Context, msg *orchestrator.Message, _ *orchestrator.Instance) (map[string]any, error) {
		out := make(map[string]any, len(msg.Payload))
		for k, v := range msg.Payload {
			out[k] = v
		}
		return out, nil
	})
	return exec
}

// Sleep returns an executor whose "sleep" action blocks for the payload's
// "duration" (a Go duration string, default 100ms). It respects context
// cancellation, so it exercises per-step timeouts.
func Sleep() *orchestrator.BaseExecutor {
	exec := orchestrator.NewBaseExecutor("sleep")
	exec.RegisterAction("sleep", func(ctx context.Context, msg *orchestrator.Message, _ *orchestrator.Instance) (map[string]any, error) {
		duration := 100 * time.Millisecond
		if raw, ok := msg.Payload["duration"].(string); ok {
			parsed, err := time.ParseDuration(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid duration %q: %w", raw, err)
			}
			duration = parsed
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(duration):
		}
		return map[string]any{"slept": duration.String()}, nil
	})
	return exec
}

// Counter returns an executor whose "next" action yields a monotonically
// increasing sequence number. The counter is executor-local state shared
// across every workflow touching it, guarded by BaseExecutor's state mutex.
func Counter() *orchestrator.BaseExecutor {
	exec := orchestrator.NewBaseExecutor("counter")
	exec.RegisterAction("next", func(_ context.Context, _ *orchestrator.Message, _ *orchestrator.Instance) (map[string]any, error) {
		var next int64
		exec.MutateState(func(state map[string]any) {
			current, _ := state["sequence"].(int64)
			next = current + 1
			state["sequence"] = next
		})
		return map[string]any{"sequence": next}, nil
	})
	return exec
}

// Fail returns an executor whose "fail" action always errors with the
// payload's "reason". Useful for demonstrating abort semantics.
func Fail() *orchestrator.BaseExecutor {
	exec := orchestrator.NewBaseExecutor("fail")
	exec.RegisterAction("fail", func(_ context.Context, msg *orchestrator.Message, _ *orchestrator.Instance) (map[string]any, error) {
		reason, _ := msg.Payload["reason"].(string)
		if reason == "" {
			reason = "fail executor invoked"
		}
		return nil, fmt.Errorf("%s", reason)
	})
	return exec
}

// All returns every builtin executor.
func All() []orchestrator.Executor {
	return []orchestrator.Executor{Echo(), Sleep(), Counter(), Fail()}
}
