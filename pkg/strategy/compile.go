package strategy

import (
	"strings"
)

// Default executor IDs targeted by the built-in compile rules. The commerce
// executor consolidates what used to be separate order and payment
// executors; instructions retargeted to it keep recording results under the
// legacy names via ResultKey so downstream readers see a stable key space.
const (
	ExecutorCommerce = "commerce"
	ExecutorCatalog  = "catalog"
	ExecutorNotify   = "notify"
	ExecutorRules    = "rules"
)

// Legacy result keys preserved for downstream readers.
const (
	KeyOrder        = "order"
	KeyPayment      = "payment"
	KeySearch       = "search"
	KeyNotification = "notification"
)

// Instruction is one compiled executor call.
type Instruction struct {
	// ExecutorID names the executor to dispatch to.
	ExecutorID string `json:"executor"`

	// Action is the operation the executor should perform.
	Action string `json:"action"`

	// Params is the payload compiled from the situation.
	Params map[string]any `json:"params,omitempty"`

	// ResultKey is the executor-data key the result is recorded under.
	// It carries the legacy executor name when the instruction has been
	// retargeted to a consolidated executor.
	ResultKey string `json:"result_key"`
}

// Rule classifies one declarative action phrase into an instruction.
type Rule struct {
	// Name identifies the rule in logs.
	Name string

	// Match reports whether the rule applies to the action phrase.
	Match func(action string) bool

	// Compile builds the instruction from the phrase and the situation.
	Compile func(action string, s *Situation) Instruction
}

// Compiler turns a strategy's declarative actions into instructions through
// an ordered rule table. The first matching rule wins; the final default
// rule compiles anything unrecognized into a generic custom action, so
// Compile always produces exactly one instruction per action.
type Compiler struct {
	rules []Rule
}

// NewCompiler creates a compiler with the given rules, or the default rule
// table when none are given.
func NewCompiler(rules ...Rule) *Compiler {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Compiler{rules: rules}
}

// Compile compiles each declarative action independently, in order.
func (c *Compiler) Compile(st *Strategy, s *Situation) []Instruction {
	instructions := make([]Instruction, 0, len(st.Actions))
	for _, action := range st.Actions {
		instructions = append(instructions, c.compileOne(action, s))
	}
	return instructions
}

func (c *Compiler) compileOne(action string, s *Situation) Instruction {
	for _, rule := range c.rules {
		if rule.Match(action) {
			return rule.Compile(action, s)
		}
	}
	// DefaultRules ends with a catch-all, so this only runs with a custom
	// rule table that matched nothing.
	return customActionInstruction(action)
}

// phrases builds a matcher that requires every given word to appear in the
// action, case-insensitively.
func phrases(words ...string) func(string) bool {
	return func(action string) bool {
		lower := strings.ToLower(action)
		for _, word := range words {
			if !strings.Contains(lower, word) {
				return false
			}
		}
		return true
	}
}

// DefaultRules returns the built-in phrase-matching rule table. Order
// matters: more specific phrasings come first, and the final rule matches
// everything.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:  "cancel-order",
			Match: phrases("cancel", "order"),
			Compile: func(_ string, s *Situation) Instruction {
				return Instruction{
					ExecutorID: ExecutorCommerce,
					Action:     "cancel_order",
					Params:     map[string]any{"order_id": orderID(s)},
					ResultKey:  KeyOrder,
				}
			},
		},
		{
			Name:  "create-order",
			Match: phrases("create", "order"),
			Compile: func(_ string, s *Situation) Instruction {
				return Instruction{
					ExecutorID: ExecutorCommerce,
					Action:     "create_order",
					Params: map[string]any{
						"customer_id": customerID(s),
						"items":       changed(s, "items"),
					},
					ResultKey: KeyOrder,
				}
			},
		},
		{
			Name:  "update-address",
			Match: phrases("address"),
			Compile: func(_ string, s *Situation) Instruction {
				return Instruction{
					ExecutorID: ExecutorCommerce,
					Action:     "update_shipping_address",
					Params: map[string]any{
						"order_id": orderID(s),
						"address":  changed(s, "address"),
					},
					ResultKey: KeyOrder,
				}
			},
		},
		{
			Name:  "issue-gift-card",
			Match: phrases("gift card", "issue"),
			Compile: func(_ string, s *Situation) Instruction {
				return Instruction{
					ExecutorID: ExecutorCommerce,
					Action:     "issue_gift_card",
					Params: map[string]any{
						"customer_id": customerID(s),
						"amount":      changed(s, "gift_card_amount"),
					},
					ResultKey: KeyPayment,
				}
			},
		},
		{
			Name:  "refund",
			Match: phrases("refund"),
			Compile: func(_ string, s *Situation) Instruction {
				return Instruction{
					ExecutorID: ExecutorCommerce,
					Action:     "process_refund",
					Params:     map[string]any{"order_id": orderID(s)},
					ResultKey:  KeyPayment,
				}
			},
		},
		{
			Name:  "search-products",
			Match: phrases("search"),
			Compile: func(_ string, s *Situation) Instruction {
				return Instruction{
					ExecutorID: ExecutorCatalog,
					Action:     "search_products",
					Params:     map[string]any{"query": s.Query},
					ResultKey:  KeySearch,
				}
			},
		},
		{
			Name:  "notify-customer",
			Match: phrases("notify"),
			Compile: func(action string, s *Situation) Instruction {
				return Instruction{
					ExecutorID: ExecutorNotify,
					Action:     "send_notification",
					Params: map[string]any{
						"customer_id": customerID(s),
						"message":     action,
					},
					ResultKey: KeyNotification,
				}
			},
		},
		{
			Name:  "custom-action",
			Match: func(string) bool { return true },
			Compile: func(action string, _ *Situation) Instruction {
				return customActionInstruction(action)
			},
		},
	}
}

func customActionInstruction(action string) Instruction {
	return Instruction{
		ExecutorID: ExecutorRules,
		Action:     "execute_custom_action",
		Params:     map[string]any{"description": action},
		ResultKey:  ExecutorRules,
	}
}

func orderID(s *Situation) any {
	if s.Order == nil {
		return nil
	}
	return s.Order["id"]
}

func customerID(s *Situation) any {
	if s.Customer == nil {
		return nil
	}
	return s.Customer["id"]
}

func changed(s *Situation, key string) any {
	if s.RequestedChanges == nil {
		return nil
	}
	return s.RequestedChanges[key]
}
