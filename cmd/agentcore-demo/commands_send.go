package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/relaykit/agentcore/internal/agent"
)

// buildSendCmd sends a single message and prints the resulting TurnResult,
// useful for scripted smoke tests against a runtime endpoint.
func buildSendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send [message]",
		Short: "Send one message and print the turn result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			h, cleanup, err := newHost(cmd.Context(), configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			result := h.runner.Send(cmd.Context(), args[0], nil)
			printTurnResult(cmd, result)
			return nil
		},
	}
	return cmd
}

// buildChatCmd runs an interactive REPL against the runtime, prompting for
// approval on any tool call that parks the turn in Approving.
func buildChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session against the runtime",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			h, cleanup, err := newHost(cmd.Context(), configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			return runChatLoop(cmd.Context(), cmd, h.runner)
		},
	}
	return cmd
}

func runChatLoop(ctx context.Context, cmd *cobra.Command, runner *agent.Runner) error {
	in := bufio.NewScanner(cmd.InOrStdin())
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "agentcore-demo chat — type a message, or /quit to exit")
	for {
		fmt.Fprint(out, "> ")
		if !in.Scan() {
			return nil
		}
		line := strings.TrimSpace(in.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			return nil
		}

		result := runner.Send(ctx, line, nil)
		for result.Status == agent.StatusAwaitingApproval {
			result = resolveApprovalsInteractively(in, out, runner, result)
		}
		printTurnResult(cmd, result)
	}
}

func resolveApprovalsInteractively(in *bufio.Scanner, out io.Writer, runner *agent.Runner, result agent.TurnResult) agent.TurnResult {
	for _, pending := range result.Pending {
		fmt.Fprintf(out, "Approve %s(%s)? %s [y/N, or type a reason to deny] ", pending.ToolName, pending.Arguments, pending.ApprovalMessage)
		if !in.Scan() {
			return runner.Reject(pending.ToolCallID, "no response from host", nil)
		}
		raw := strings.TrimSpace(in.Text())
		if answer := strings.ToLower(raw); answer == "y" || answer == "yes" {
			result = runner.Approve(pending.ToolCallID, nil)
			continue
		}
		reason := raw
		if reason == "" {
			reason = "denied by user"
		}
		result = runner.Reject(pending.ToolCallID, reason, nil)
	}
	return result
}

func printTurnResult(cmd *cobra.Command, result agent.TurnResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "status: %s (run=%s thread=%s)\n", result.Status, result.RunID, result.ThreadID)
	if result.Err != nil {
		fmt.Fprintf(out, "error: %v\n", result.Err)
	}
	for _, p := range result.Pending {
		fmt.Fprintf(out, "pending approval: %s %s\n", p.ToolName, p.Arguments)
	}
	fmt.Fprintf(out, "stats: %+v\n", result.Stats)
}
