package observability

import (
	"context"
	"log/slog"
)

type ctxKey int

const loggerCtxKey ctxKey = iota

// WithLogger returns a context carrying logger, retrievable with Logger.
// Grounded on the teacher's pattern of annotating loggers with correlation
// fields (internal/mcp/client.go's logger.With("mcp_server", cfg.ID)) and
// threading them through context rather than passing *slog.Logger
// positionally everywhere.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey, logger)
}

// Logger retrieves the context's logger, defaulting to slog.Default().
func Logger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerCtxKey).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

// RunLogger annotates logger with the run_id and thread_id correlation
// fields of one turn.
func RunLogger(logger *slog.Logger, runID, threadID string) *slog.Logger {
	return logger.With("run_id", runID, "thread_id", threadID)
}

// ToolLogger annotates logger with tool_call_id and tool name.
func ToolLogger(logger *slog.Logger, toolCallID, toolName string) *slog.Logger {
	return logger.With("tool_call_id", toolCallID, "tool", toolName)
}

// MCPLogger annotates logger with the owning MCP server id.
func MCPLogger(logger *slog.Logger, serverID string) *slog.Logger {
	return logger.With("mcp_server", serverID)
}
