package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cadenzahq/cadenza/internal/builtin"
	"github.com/cadenzahq/cadenza/pkg/orchestrator"
	"github.com/cadenzahq/cadenza/pkg/strategy"
)

func newStrategyCommand(logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "strategy",
		Short: "Evaluate and run strategy catalogs",
	}
	cmd.AddCommand(newStrategyEvalCommand(logger), newStrategyRunCommand(logger))
	return cmd
}

func newStrategyEvalCommand(logger *slog.Logger) *cobra.Command {
	var situationPath string

	cmd := &cobra.Command{
		Use:   "eval <catalog.yaml>",
		Short: "Select a strategy for a situation and show its compiled instructions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, situation, err := loadStrategyEngine(args[0], situationPath, logger)
			if err != nil {
				return err
			}

			selected, err := engine.Evaluate(situation)
			if err != nil {
				return err
			}

			out := map[string]any{
				"strategy":     selected,
				"instructions": engine.Compile(selected, situation),
			}
			encoded, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
			return nil
		},
	}

	cmd.Flags().StringVarP(&situationPath, "situation", "s", "", "YAML file with the situation snapshot (required)")
	_ = cmd.MarkFlagRequired("situation")
	return cmd
}

func newStrategyRunCommand(logger *slog.Logger) *cobra.Command {
	var situationPath string

	cmd := &cobra.Command{
		Use:   "run <catalog.yaml>",
		Short: "Select a strategy for a situation and execute it with the demo executors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, situation, err := loadStrategyEngine(args[0], situationPath, logger)
			if err != nil {
				return err
			}

			orch := orchestrator.New(orchestrator.WithLogger(logger))
			for _, exec := range builtin.Demo() {
				orch.RegisterExecutor(exec)
			}

			id, runErr := engine.Run(cmd.Context(), orch, situation, nil)
			if id != "" {
				if printErr := printStatus(cmd, orch, id); printErr != nil {
					return printErr
				}
			}
			return runErr
		},
	}

	cmd.Flags().StringVarP(&situationPath, "situation", "s", "", "YAML file with the situation snapshot (required)")
	_ = cmd.MarkFlagRequired("situation")
	return cmd
}

func loadStrategyEngine(catalogPath, situationPath string, logger *slog.Logger) (*strategy.Engine, *strategy.Situation, error) {
	catalog, err := strategy.LoadCatalog(catalogPath)
	if err != nil {
		return nil, nil, err
	}

	data, err := os.ReadFile(situationPath)
	if err != nil {
		return nil, nil, fmt.Errorf("reading situation file: %w", err)
	}
	var situation strategy.Situation
	if err := yaml.Unmarshal(data, &situation); err != nil {
		return nil, nil, fmt.Errorf("parsing situation file: %w", err)
	}

	return strategy.New(catalog, strategy.WithLogger(logger)), &situation, nil
}
