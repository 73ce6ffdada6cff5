package orchestrator

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cadenzahq/cadenza/pkg/errors"
)

// StepSpec describes a single step of a workflow graph.
type StepSpec struct {
	// Name uniquely identifies the step within its graph.
	Name string `yaml:"name" json:"name"`

	// ExecutorID names the registered executor that performs this step.
	ExecutorID string `yaml:"executor" json:"executor"`

	// Action is the operation the executor should perform.
	Action string `yaml:"action" json:"action"`

	// Input is the static payload passed to the executor.
	Input map[string]any `yaml:"input,omitempty" json:"input,omitempty"`

	// DependsOn lists step names that must complete before this step runs.
	DependsOn []string `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`

	// Parallel marks the step eligible for concurrent dispatch with other
	// parallel-eligible steps of the same scheduling round.
	Parallel bool `yaml:"parallel,omitempty" json:"parallel,omitempty"`
}

// StepGraph is a named, ordered collection of steps. It is immutable once
// registered and may be shared by concurrently running workflow instances.
type StepGraph struct {
	Name  string     `yaml:"name" json:"name"`
	Steps []StepSpec `yaml:"steps" json:"steps"`
}

// Validate checks the structural invariants of the graph: a non-empty name,
// at least one step, unique step names, and an executor and action per step.
// Dependency targets are deliberately not resolved here; a reference to a
// missing step (or a cycle) surfaces as a DeadlockError at run time.
func (g *StepGraph) Validate() error {
	if g.Name == "" {
		return &errors.ValidationError{
			Field:   "name",
			Message: "graph name cannot be empty",
		}
	}
	if len(g.Steps) == 0 {
		return &errors.ValidationError{
			Field:      "steps",
			Message:    fmt.Sprintf("graph %q has no steps", g.Name),
			Suggestion: "define at least one step",
		}
	}

	seen := make(map[string]bool, len(g.Steps))
	for i, step := range g.Steps {
		if step.Name == "" {
			return &errors.ValidationError{
				Field:   fmt.Sprintf("steps[%d].name", i),
				Message: "step name cannot be empty",
			}
		}
		if seen[step.Name] {
			return &errors.ValidationError{
				Field:      fmt.Sprintf("steps[%d].name", i),
				Message:    fmt.Sprintf("duplicate step name %q", step.Name),
				Suggestion: "step names must be unique within a graph",
			}
		}
		seen[step.Name] = true

		if step.ExecutorID == "" {
			return &errors.ValidationError{
				Field:   fmt.Sprintf("steps[%d].executor", i),
				Message: fmt.Sprintf("step %q names no executor", step.Name),
			}
		}
		if step.Action == "" {
			return &errors.ValidationError{
				Field:   fmt.Sprintf("steps[%d].action", i),
				Message: fmt.Sprintf("step %q names no action", step.Name),
			}
		}
	}

	return nil
}

// StepNames returns the step names in definition order.
func (g *StepGraph) StepNames() []string {
	names := make([]string, len(g.Steps))
	for i, step := range g.Steps {
		names[i] = step.Name
	}
	return names
}

// ParseGraph parses and validates a YAML step graph.
func ParseGraph(data []byte) (*StepGraph, error) {
	var graph StepGraph
	if err := yaml.Unmarshal(data, &graph); err != nil {
		return nil, &errors.ConfigError{
			Key:    "graph",
			Reason: "invalid graph YAML",
			Cause:  err,
		}
	}
	if err := graph.Validate(); err != nil {
		return nil, err
	}
	return &graph, nil
}

// LoadGraph reads, parses, and validates a YAML step graph file.
func LoadGraph(path string) (*StepGraph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &errors.ConfigError{
			Key:    path,
			Reason: "cannot read graph file",
			Cause:  err,
		}
	}
	return ParseGraph(data)
}
