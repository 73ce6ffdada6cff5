package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cadenzahq/cadenza/internal/log"
)

// Version information (injected via ldflags at build time)
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	logger := log.New(log.FromEnv())
	slog.SetDefault(logger)

	root := &cobra.Command{
		Use:           "cadenza",
		Short:         "Run and inspect cadenza workflow graphs and strategy catalogs",
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newRunCommand(logger),
		newValidateCommand(),
		newStrategyCommand(logger),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
