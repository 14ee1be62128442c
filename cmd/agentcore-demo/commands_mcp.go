package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// buildMcpCmd mirrors the teacher's "nexus mcp" group at a much smaller
// scale: just enough to list configured servers and their connection
// state for a smoke test, grounded on cmd/nexus/commands_mcp.go's
// buildMcpServersCmd.
func buildMcpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Inspect configured MCP servers",
	}
	cmd.AddCommand(buildMcpServersCmd())
	return cmd
}

func buildMcpServersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "servers",
		Short: "List configured MCP servers and their connection state",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			h, cleanup, err := newHost(cmd.Context(), configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			statuses := h.mcpMgr.Status()
			out := cmd.OutOrStdout()
			if len(statuses) == 0 {
				fmt.Fprintln(out, "No MCP servers configured.")
				return nil
			}
			for _, status := range statuses {
				state := "disconnected"
				if status.Connected {
					state = "connected"
				}
				fmt.Fprintf(out, "  %s (%s) - %s\n", status.ID, status.Name, state)
				if status.Connected {
					fmt.Fprintf(out, "    tools=%d resources=%d prompts=%d\n", status.Tools, status.Resources, status.Prompts)
				}
			}
			return nil
		},
	}
}
