// Package main provides the CLI entry point for the Loom agent
// runtime.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRootCmd()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "loom",
		Short: "Loom multi-agent runtime",
		Long: `Loom runs teams of LLM agents over a shared task board.

Each agent runs a single-goroutine event loop over prioritized input
queues, with a phase state machine, a tool approval protocol, and
provider-aware tool-call parsing.`,
		SilenceUsage: true,
	}
	root.AddCommand(buildRunCmd())
	root.AddCommand(buildValidateCmd())
	return root
}
