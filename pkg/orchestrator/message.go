package orchestrator

import (
	"time"

	"github.com/google/uuid"
)

// SenderOrchestrator is the From value for messages dispatched by the engine
// itself rather than by another executor.
const SenderOrchestrator = "orchestrator"

// Message is the envelope for one executor dispatch. A fresh message is
// created for every dispatch and never reused.
type Message struct {
	// ID uniquely identifies this dispatch.
	ID string

	// From names the sender: SenderOrchestrator or an executor ID.
	From string

	// To names the target executor.
	To string

	// WorkflowID is the instance this dispatch belongs to.
	WorkflowID string

	// Action is the operation the target executor should perform.
	Action string

	// Payload is the step input.
	Payload map[string]any

	// Context is a read-only snapshot passed along for reference, typically
	// the originating workflow input. Executors must not mutate it.
	Context map[string]any

	// Priority orders competing messages; lower is more urgent. The engine
	// itself dispatches in dependency order, so this is informational.
	Priority int

	// RequiresResponse indicates the sender blocks on the result. Engine
	// dispatches are always synchronous.
	RequiresResponse bool

	// CreatedAt is when the message was built.
	CreatedAt time.Time
}

func newMessage(from, to, workflowID, action string, payload, snapshot map[string]any) *Message {
	if payload == nil {
		payload = make(map[string]any)
	}
	return &Message{
		ID:               uuid.NewString(),
		From:             from,
		To:               to,
		WorkflowID:       workflowID,
		Action:           action,
		Payload:          payload,
		Context:          snapshot,
		RequiresResponse: true,
		CreatedAt:        time.Now(),
	}
}
