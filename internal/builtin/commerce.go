package builtin

import (
	"context"
	"fmt"

	"github.com/cadenzahq/cadenza/pkg/orchestrator"
	"github.com/cadenzahq/cadenza/pkg/strategy"
)

// Commerce returns a demo consolidated commerce executor covering the order
// and payment actions the default strategy rules compile to. Orders are
// simulated: an executor-local sequence issues IDs and a reservation map
// tracks them, both behind BaseExecutor's state mutex since every workflow
// shares this executor.
func Commerce() *orchestrator.BaseExecutor {
	exec := orchestrator.NewBaseExecutor(strategy.ExecutorCommerce)

	exec.RegisterAction("create_order", func(_ context.Context, msg *orchestrator.Message, _ *orchestrator.Instance) (map[string]any, error) {
		var orderID string
		exec.MutateState(func(state map[string]any) {
			sequence, _ := state["order_sequence"].(int64)
			sequence++
			state["order_sequence"] = sequence
			orderID = fmt.Sprintf("order-%d", sequence)

			orders, _ := state["orders"].(map[string]any)
			if orders == nil {
				orders = make(map[string]any)
				state["orders"] = orders
			}
			orders[orderID] = msg.Payload["items"]
		})
		return map[string]any{
			"order_id": orderID,
			"status":   "created",
		}, nil
	})

	exec.RegisterAction("cancel_order", func(_ context.Context, msg *orchestrator.Message, _ *orchestrator.Instance) (map[string]any, error) {
		orderID := msg.Payload["order_id"]
		if orderID == nil {
			return nil, fmt.Errorf("cancel_order requires an order_id")
		}
		return map[string]any{
			"order_id": orderID,
			"status":   "cancelled",
		}, nil
	})

	exec.RegisterAction("update_shipping_address", func(_ context.Context, msg *orchestrator.Message, _ *orchestrator.Instance) (map[string]any, error) {
		return map[string]any{
			"order_id": msg.Payload["order_id"],
			"address":  msg.Payload["address"],
			"status":   "address_updated",
		}, nil
	})

	exec.RegisterAction("issue_gift_card", func(_ context.Context, msg *orchestrator.Message, _ *orchestrator.Instance) (map[string]any, error) {
		amount := msg.Payload["amount"]
		if amount == nil {
			amount = 10.0
		}
		return map[string]any{
			"customer_id": msg.Payload["customer_id"],
			"amount":      amount,
			"status":      "gift_card_issued",
		}, nil
	})

	exec.RegisterAction("process_refund", func(_ context.Context, msg *orchestrator.Message, _ *orchestrator.Instance) (map[string]any, error) {
		return map[string]any{
			"order_id": msg.Payload["order_id"],
			"status":   "refunded",
		}, nil
	})

	return exec
}

// CatalogSearch returns a demo product-search executor.
func CatalogSearch() *orchestrator.BaseExecutor {
	exec := orchestrator.NewBaseExecutor(strategy.ExecutorCatalog)
	exec.RegisterAction("search_products", func(_ context.Context, msg *orchestrator.Message, _ *orchestrator.Instance) (map[string]any, error) {
		query, _ := msg.Payload["query"].(string)
		return map[string]any{
			"query":   query,
			"results": []any{},
		}, nil
	})
	return exec
}

// Notify returns a demo notification executor.
func Notify() *orchestrator.BaseExecutor {
	exec := orchestrator.NewBaseExecutor(strategy.ExecutorNotify)
	exec.RegisterAction("send_notification", func(_ context.Context, msg *orchestrator.Message, _ *orchestrator.Instance) (map[string]any, error) {
		return map[string]any{
			"customer_id": msg.Payload["customer_id"],
			"message":     msg.Payload["message"],
			"status":      "sent",
		}, nil
	})
	return exec
}

// Rules returns a demo executor for generic custom actions compiled by the
// fallback rule.
func Rules() *orchestrator.BaseExecutor {
	exec := orchestrator.NewBaseExecutor(strategy.ExecutorRules)
	exec.RegisterAction("execute_custom_action", func(_ context.Context, msg *orchestrator.Message, _ *orchestrator.Instance) (map[string]any, error) {
		return map[string]any{
			"description": msg.Payload["description"],
			"status":      "executed",
		}, nil
	})
	return exec
}

// Demo returns the executor set the default strategy rules compile to.
func Demo() []orchestrator.Executor {
	return []orchestrator.Executor{Commerce(), CatalogSearch(), Notify(), Rules()}
}
