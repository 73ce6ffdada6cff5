package strategy

import (
	"fmt"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/cadenzahq/cadenza/pkg/errors"
)

// matcher decides whether one condition holds against a situation.
type matcher func(ev *Evaluator, c Condition, s *Situation) (bool, error)

// matcherRule pairs a condition type with its matcher. The evaluator scans
// its rules in order, so custom rules can shadow the defaults.
type matcherRule struct {
	conditionType string
	match         matcher
}

// Evaluator evaluates strategy conditions through an ordered rule table.
// Expression conditions are compiled once and cached.
type Evaluator struct {
	rules []matcherRule

	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// NewEvaluator creates an evaluator with the default matcher rules.
func NewEvaluator() *Evaluator {
	return &Evaluator{
		rules: []matcherRule{
			{"status", matchStatus},
			{"elapsed", matchElapsed},
			{"address", matchAddress},
			{"expr", matchExpr},
		},
		cache: make(map[string]*vm.Program),
	}
}

// Holds reports whether a single condition is satisfied by the situation.
func (ev *Evaluator) Holds(c Condition, s *Situation) (bool, error) {
	for _, rule := range ev.rules {
		if rule.conditionType == c.Type {
			return rule.match(ev, c, s)
		}
	}
	return false, &errors.ValidationError{
		Field:      "type",
		Message:    fmt.Sprintf("unknown condition type %q", c.Type),
		Suggestion: "use one of: status, elapsed, address, expr",
	}
}

// Applicable reports whether every condition of the strategy holds.
func (ev *Evaluator) Applicable(st *Strategy, s *Situation) (bool, error) {
	for _, c := range st.Conditions {
		ok, err := ev.Holds(c, s)
		if err != nil {
			return false, errors.Wrapf(err, "strategy %s", st.ID)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// matchStatus checks an exact-value match on a situation field.
// Defaults to order.status.
func matchStatus(_ *Evaluator, c Condition, s *Situation) (bool, error) {
	field := c.Field
	if field == "" {
		field = "order.status"
	}
	value, ok := lookupField(s, field)
	if !ok || value == nil {
		return false, nil
	}
	// YAML and JSON decode numbers into different Go types, so compare the
	// printed forms rather than the values directly.
	return fmt.Sprint(value) == fmt.Sprint(c.Equals), nil
}

// matchElapsed compares a numeric situation field against a minute
// threshold. Defaults to current.elapsed_minutes, compared with lte.
func matchElapsed(_ *Evaluator, c Condition, s *Situation) (bool, error) {
	field := c.Field
	if field == "" {
		field = "current.elapsed_minutes"
	}
	value, ok := lookupField(s, field)
	if !ok {
		return false, nil
	}
	elapsed, ok := toFloat(value)
	if !ok {
		return false, &errors.ValidationError{
			Field:   field,
			Message: fmt.Sprintf("elapsed condition needs a numeric field, got %T", value),
		}
	}

	switch c.Op {
	case "lt":
		return elapsed < c.Minutes, nil
	case "", "lte":
		return elapsed <= c.Minutes, nil
	case "gt":
		return elapsed > c.Minutes, nil
	case "gte":
		return elapsed >= c.Minutes, nil
	default:
		return false, &errors.ValidationError{
			Field:      "op",
			Message:    fmt.Sprintf("unknown elapsed comparison %q", c.Op),
			Suggestion: "use one of: lt, lte, gt, gte",
		}
	}
}

// matchAddress checks for a valid structured address. Without an explicit
// field it accepts one from the requested changes or, failing that, the
// order's shipping address.
func matchAddress(_ *Evaluator, c Condition, s *Situation) (bool, error) {
	if c.Field != "" {
		value, ok := lookupField(s, c.Field)
		if !ok {
			return false, nil
		}
		return validAddress(value), nil
	}

	if value, ok := lookupField(s, "changes.address"); ok && validAddress(value) {
		return true, nil
	}
	value, ok := lookupField(s, "order.shipping_address")
	return ok && validAddress(value), nil
}

func validAddress(value any) bool {
	addr, ok := value.(map[string]any)
	if !ok {
		return false
	}
	street, _ := addr["street"].(string)
	city, _ := addr["city"].(string)
	return street != "" && city != ""
}

// matchExpr evaluates a boolean expression over the situation.
func matchExpr(ev *Evaluator, c Condition, s *Situation) (bool, error) {
	if c.Expr == "" {
		return false, &errors.ValidationError{
			Field:   "expr",
			Message: "expr condition has no expression",
		}
	}

	program, err := ev.compile(c.Expr)
	if err != nil {
		return false, &errors.ValidationError{
			Field:      "expr",
			Message:    fmt.Sprintf("failed to compile expression: %s", err.Error()),
			Suggestion: "check expression syntax; available roots: query, order, customer, current, changes",
		}
	}

	result, err := expr.Run(program, s.exprEnv())
	if err != nil {
		return false, &errors.ValidationError{
			Field:   "expr",
			Message: fmt.Sprintf("expression evaluation failed: %s", err.Error()),
		}
	}

	boolResult, ok := result.(bool)
	if !ok {
		return false, &errors.ValidationError{
			Field:   "expr",
			Message: fmt.Sprintf("expression must return boolean, got %T", result),
		}
	}
	return boolResult, nil
}

// compile compiles an expression and caches the program.
func (ev *Evaluator) compile(expression string) (*vm.Program, error) {
	ev.mu.RLock()
	if prog, ok := ev.cache[expression]; ok {
		ev.mu.RUnlock()
		return prog, nil
	}
	ev.mu.RUnlock()

	prog, err := expr.Compile(expression,
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
	)
	if err != nil {
		return nil, err
	}

	ev.mu.Lock()
	ev.cache[expression] = prog
	ev.mu.Unlock()

	return prog, nil
}

// lookupField resolves a dotted path like "order.status" against the
// situation. The first element selects the root collection; the rest walk
// nested maps.
func lookupField(s *Situation, path string) (any, bool) {
	parts := strings.Split(path, ".")
	value, ok := s.root(parts[0])
	if !ok {
		return nil, false
	}

	for _, part := range parts[1:] {
		m, isMap := value.(map[string]any)
		if !isMap {
			return nil, false
		}
		value, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return value, true
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
