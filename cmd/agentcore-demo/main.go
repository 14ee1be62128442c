// Package main provides a small CLI host that exercises the agentcore
// runtime end-to-end: it loads a YAML config, wires a Runner against a
// runtime HTTP endpoint, optionally connects configured MCP servers, and
// drives turns from the terminal. It exists for manual smoke-testing, not
// as a production gateway — grounded on the teacher's cmd/nexus command
// tree (main.go's buildRootCmd + subcommand-per-file layout), scoped down
// to what a single embeddable runtime needs.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "agentcore-demo",
		Short:        "agentcore-demo - smoke-test host for the agentcore runtime",
		Version:      fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage: true,
	}
	root.PersistentFlags().StringP("config", "c", "agentcore.yaml", "path to YAML configuration file")

	root.AddCommand(
		buildSendCmd(),
		buildChatCmd(),
		buildMcpCmd(),
	)
	return root
}
