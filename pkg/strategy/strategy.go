// Package strategy replaces a hard-coded workflow with a priority-ranked
// catalog of condition-gated strategies. Given a run-time situation snapshot,
// the engine selects the best-matching strategy and compiles its declarative
// action list into concrete executor instructions, which are then driven
// imperatively through the orchestrator's dispatch primitive.
package strategy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cadenzahq/cadenza/pkg/errors"
)

// Condition is one predicate a situation must satisfy for a strategy to
// apply. The Type field selects the matcher; the remaining fields are
// matcher-specific.
type Condition struct {
	// Type selects the matcher: status, elapsed, address, or expr.
	Type string `yaml:"type" json:"type"`

	// Field is a dotted path into the situation (e.g. "order.status",
	// "current.has_existing_order"). Matchers fall back to a sensible
	// default when empty.
	Field string `yaml:"field,omitempty" json:"field,omitempty"`

	// Equals is the value a status condition must match exactly.
	Equals any `yaml:"equals,omitempty" json:"equals,omitempty"`

	// Minutes is the threshold for an elapsed condition.
	Minutes float64 `yaml:"minutes,omitempty" json:"minutes,omitempty"`

	// Op is the comparison for an elapsed condition: lt, lte, gt, or gte.
	// Defaults to lte.
	Op string `yaml:"op,omitempty" json:"op,omitempty"`

	// Expr is a boolean expression over the situation for an expr condition.
	Expr string `yaml:"expr,omitempty" json:"expr,omitempty"`
}

// Strategy is a condition-gated, prioritized, declarative execution plan.
// Lower priority numbers are preferred. All conditions must hold for the
// strategy to be applicable.
type Strategy struct {
	ID          string      `yaml:"id" json:"id"`
	Name        string      `yaml:"name" json:"name"`
	Description string      `yaml:"description,omitempty" json:"description,omitempty"`
	Priority    int         `yaml:"priority" json:"priority"`
	Conditions  []Condition `yaml:"conditions,omitempty" json:"conditions,omitempty"`
	Actions     []string    `yaml:"actions" json:"actions"`
}

// Catalog is an ordered collection of strategies plus an optional fallback
// used when no strategy applies. Catalogs are loaded once and treated as
// immutable; catalog order is the tie-break between equal priorities.
type Catalog struct {
	Strategies []Strategy `yaml:"strategies" json:"strategies"`
	Fallback   *Strategy  `yaml:"fallback,omitempty" json:"fallback,omitempty"`
}

// Validate checks that every strategy has a unique non-empty ID and at least
// one action.
func (c *Catalog) Validate() error {
	seen := make(map[string]bool, len(c.Strategies))
	for i, st := range c.Strategies {
		if err := validateStrategy(&st, fmt.Sprintf("strategies[%d]", i), seen); err != nil {
			return err
		}
	}
	if c.Fallback != nil {
		if err := validateStrategy(c.Fallback, "fallback", seen); err != nil {
			return err
		}
	}
	return nil
}

func validateStrategy(st *Strategy, field string, seen map[string]bool) error {
	if st.ID == "" {
		return &errors.ValidationError{
			Field:   field + ".id",
			Message: "strategy ID cannot be empty",
		}
	}
	if seen[st.ID] {
		return &errors.ValidationError{
			Field:      field + ".id",
			Message:    fmt.Sprintf("duplicate strategy ID %q", st.ID),
			Suggestion: "strategy IDs must be unique within a catalog",
		}
	}
	seen[st.ID] = true

	if len(st.Actions) == 0 {
		return &errors.ValidationError{
			Field:      field + ".actions",
			Message:    fmt.Sprintf("strategy %q has no actions", st.ID),
			Suggestion: "declare at least one action",
		}
	}
	return nil
}

// ParseCatalog parses and validates a YAML strategy catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, &errors.ConfigError{
			Key:    "catalog",
			Reason: "invalid catalog YAML",
			Cause:  err,
		}
	}
	if err := catalog.Validate(); err != nil {
		return nil, err
	}
	return &catalog, nil
}

// LoadCatalog reads, parses, and validates a YAML strategy catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &errors.ConfigError{
			Key:    path,
			Reason: "cannot read catalog file",
			Cause:  err,
		}
	}
	return ParseCatalog(data)
}

// Situation is the snapshot a strategy is evaluated and compiled against.
// It is built fresh per evaluation and never persisted.
type Situation struct {
	// Query is the triggering request text.
	Query string `yaml:"query,omitempty" json:"query,omitempty"`

	// Order is the current order-like data, if any.
	Order map[string]any `yaml:"order,omitempty" json:"order,omitempty"`

	// Customer is the current customer-like data, if any.
	Customer map[string]any `yaml:"customer,omitempty" json:"customer,omitempty"`

	// Current holds free-form situation facts, such as elapsed_minutes
	// since order creation or a has_existing_order flag.
	Current map[string]any `yaml:"current,omitempty" json:"current,omitempty"`

	// RequestedChanges holds what the caller wants changed.
	RequestedChanges map[string]any `yaml:"requested_changes,omitempty" json:"requested_changes,omitempty"`
}

// Root resolves the first element of a condition field path.
func (s *Situation) root(name string) (any, bool) {
	switch name {
	case "query":
		return s.Query, true
	case "order":
		return s.Order, true
	case "customer":
		return s.Customer, true
	case "current":
		return s.Current, true
	case "changes", "requested_changes":
		return s.RequestedChanges, true
	default:
		return nil, false
	}
}

// exprEnv builds the evaluation environment for expression conditions.
func (s *Situation) exprEnv() map[string]any {
	return map[string]any{
		"query":    s.Query,
		"order":    orEmpty(s.Order),
		"customer": orEmpty(s.Customer),
		"current":  orEmpty(s.Current),
		"changes":  orEmpty(s.RequestedChanges),
	}
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// ToInput flattens the situation into a workflow origin input map.
func (s *Situation) ToInput() map[string]any {
	return map[string]any{
		"query":             s.Query,
		"order":             orEmpty(s.Order),
		"customer":          orEmpty(s.Customer),
		"current":           orEmpty(s.Current),
		"requested_changes": orEmpty(s.RequestedChanges),
	}
}
