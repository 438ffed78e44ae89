package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/PolarWolf314/pantry/cmd"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "pantry",
	Short: "Pantry - keep a node's cookbooks in step with its policy server.",
	Long: `Pantry reads a knife.rb, authenticates against the policy server and
mirrors the server's cookbook catalog into a local integrity cache.

Features:
  - Registers the client with the validation key on first run
  - Fetches only what changed, verifying every download
  - Keeps a history of every sync in the cache directory

Usage:
  pantry <command> [flags]

Run 'pantry help <command>' for more details on a specific command.
`,
	SilenceErrors: true,
	SilenceUsage:  true,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("Run 'pantry --help' to see available commands.")
	},
}

func init() {
	rootCmd.AddCommand(cmd.Commands()...)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cmd.Exit(rootCmd.ExecuteContext(ctx))
	stop()
	os.Exit(code)
}
