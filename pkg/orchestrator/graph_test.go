package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cadenzahq/cadenza/pkg/errors"
)

func TestStepGraphValidate(t *testing.T) {
	tests := []struct {
		name    string
		graph   *StepGraph
		wantErr bool
	}{
		{
			name: "valid graph",
			graph: &StepGraph{
				Name: "place_order",
				Steps: []StepSpec{
					{Name: "search", ExecutorID: "catalog", Action: "search_products"},
					{Name: "validate", ExecutorID: "rules", Action: "validate", DependsOn: []string{"search"}},
				},
			},
		},
		{
			name:    "empty name",
			graph:   &StepGraph{Steps: []StepSpec{{Name: "a", ExecutorID: "x", Action: "y"}}},
			wantErr: true,
		},
		{
			name:    "no steps",
			graph:   &StepGraph{Name: "empty"},
			wantErr: true,
		},
		{
			name: "duplicate step name",
			graph: &StepGraph{
				Name: "dup",
				Steps: []StepSpec{
					{Name: "a", ExecutorID: "x", Action: "y"},
					{Name: "a", ExecutorID: "x", Action: "z"},
				},
			},
			wantErr: true,
		},
		{
			name: "missing executor",
			graph: &StepGraph{
				Name:  "noexec",
				Steps: []StepSpec{{Name: "a", Action: "y"}},
			},
			wantErr: true,
		},
		{
			name: "missing action",
			graph: &StepGraph{
				Name:  "noaction",
				Steps: []StepSpec{{Name: "a", ExecutorID: "x"}},
			},
			wantErr: true,
		},
		{
			name: "dependency on missing step passes validation",
			graph: &StepGraph{
				Name:  "dangling",
				Steps: []StepSpec{{Name: "a", ExecutorID: "x", Action: "y", DependsOn: []string{"ghost"}}},
			},
			// Detected as a deadlock at run time, not here.
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.graph.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsValidation(err), "expected a validation error, got %v", err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestParseGraph(t *testing.T) {
	data := []byte(`
name: place_order
steps:
  - name: search
    executor: catalog
    action: search_products
    input:
      query: espresso machine
  - name: auth
    executor: identity
    action: authenticate
    parallel: true
  - name: validate
    executor: rules
    action: validate
    depends_on: [search, auth]
`)

	graph, err := ParseGraph(data)
	require.NoError(t, err)

	assert.Equal(t, "place_order", graph.Name)
	require.Len(t, graph.Steps, 3)
	assert.Equal(t, []string{"search", "auth", "validate"}, graph.StepNames())
	assert.True(t, graph.Steps[1].Parallel)
	assert.Equal(t, []string{"search", "auth"}, graph.Steps[2].DependsOn)
	assert.Equal(t, "espresso machine", graph.Steps[0].Input["query"])
}

func TestParseGraphInvalidYAML(t *testing.T) {
	_, err := ParseGraph([]byte("name: [unclosed"))
	require.Error(t, err)

	var configErr *errors.ConfigError
	assert.True(t, errors.As(err, &configErr))
}

func TestLoadGraphMissingFile(t *testing.T) {
	_, err := LoadGraph("testdata/does-not-exist.yaml")
	require.Error(t, err)
}
