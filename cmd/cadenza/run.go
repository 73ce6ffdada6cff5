package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cadenzahq/cadenza/internal/builtin"
	"github.com/cadenzahq/cadenza/pkg/orchestrator"
)

func newRunCommand(logger *slog.Logger) *cobra.Command {
	var inputPath string
	var stepTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "run <graph.yaml>",
		Short: "Execute a workflow graph with the builtin executors",
		Long: `Execute a workflow graph file. Steps must target the builtin executors
(echo, sleep, counter, fail); embed the library to run graphs against your
own executors. The final status view is printed as JSON.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			graph, err := orchestrator.LoadGraph(args[0])
			if err != nil {
				return err
			}

			input, err := loadInput(inputPath)
			if err != nil {
				return err
			}

			opts := []orchestrator.Option{orchestrator.WithLogger(logger)}
			if stepTimeout > 0 {
				opts = append(opts, orchestrator.WithStepTimeout(stepTimeout))
			}
			engine := orchestrator.New(opts...)
			for _, exec := range builtin.All() {
				engine.RegisterExecutor(exec)
			}
			if err := engine.RegisterGraph(graph); err != nil {
				return err
			}

			id, runErr := engine.Start(cmd.Context(), graph.Name, input, nil)
			if id != "" {
				if printErr := printStatus(cmd, engine, id); printErr != nil {
					return printErr
				}
			}
			return runErr
		},
	}

	cmd.Flags().StringVarP(&inputPath, "input", "i", "", "YAML file with the workflow input")
	cmd.Flags().DurationVar(&stepTimeout, "step-timeout", 0, "per-step timeout (default: wait forever)")
	return cmd
}

func loadInput(path string) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading input file: %w", err)
	}
	var input map[string]any
	if err := yaml.Unmarshal(data, &input); err != nil {
		return nil, fmt.Errorf("parsing input file: %w", err)
	}
	return input, nil
}

func printStatus(cmd *cobra.Command, engine *orchestrator.Engine, id string) error {
	view, err := engine.Status(id)
	if err != nil {
		return err
	}
	encoded, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
	return nil
}
