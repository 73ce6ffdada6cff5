package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cadenzahq/cadenza/pkg/orchestrator"
	"github.com/cadenzahq/cadenza/pkg/strategy"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate workflow graph and strategy catalog files",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "graph <graph.yaml>",
			Short: "Validate a workflow graph file",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				graph, err := orchestrator.LoadGraph(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "graph %q is valid (%d steps)\n",
					graph.Name, len(graph.Steps))
				return nil
			},
		},
		&cobra.Command{
			Use:   "catalog <catalog.yaml>",
			Short: "Validate a strategy catalog file",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				catalog, err := strategy.LoadCatalog(args[0])
				if err != nil {
					return err
				}
				fallback := "no"
				if catalog.Fallback != nil {
					fallback = catalog.Fallback.ID
				}
				fmt.Fprintf(cmd.OutOrStdout(), "catalog is valid (%d strategies, fallback: %s)\n",
					len(catalog.Strategies), fallback)
				return nil
			},
		},
	)

	return cmd
}
