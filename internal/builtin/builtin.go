// Package builtin implements the three client-located tools the host
// environment is expected to provide out of the box (spec §4.J.1):
// capturing a screenshot of the current view, reading browser console
// logs, and inspecting recent network requests. Grounded on the teacher's
// pattern of a tool-as-struct with a Definition() constructor
// (internal/tools/*.go), adapted to internal/tool.Definition's Handler
// signature. All three delegate the actual browser/DOM access to a small
// host-supplied Inspector interface, since the runtime itself has no
// rendering surface to inspect.
package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/relaykit/agentcore/internal/tool"
	"github.com/relaykit/agentcore/pkg/wire"
)

// ConsoleLogEntry is one captured browser console line.
type ConsoleLogEntry struct {
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// NetworkRequestEntry is one observed network request/response pair.
type NetworkRequestEntry struct {
	Method     string `json:"method"`
	URL        string `json:"url"`
	StatusCode int    `json:"statusCode"`
	DurationMS int64  `json:"durationMs"`
}

// Inspector is the host-supplied bridge into whatever rendering surface
// the embedding application provides (a browser tab, a webview, a
// recorded session). The runtime has no opinion on how these are
// gathered; it only normalizes the results into ToolResponse shapes.
type Inspector interface {
	Screenshot(ctx context.Context) (wire.Attachment, error)
	ConsoleLogs(ctx context.Context, limit int) ([]ConsoleLogEntry, error)
	NetworkRequests(ctx context.Context, limit int) ([]NetworkRequestEntry, error)
}

// ScreenshotTool returns the capture_screenshot Definition. Its result is
// staged as an attachment-as-user-message (spec §9's design note): the
// model sees the screenshot as if the user had just sent it, rather than
// as inline tool-result JSON.
func ScreenshotTool(insp Inspector) tool.Definition {
	return tool.Definition{
		Name:        "capture_screenshot",
		Description: "Capture a screenshot of the current view and show it to the assistant as a fresh image.",
		Location:    tool.LocationClient,
		InputSchema: json.RawMessage(`{"type":"object","properties":{}}`),
		Handler: func(ctx context.Context, params json.RawMessage, tc tool.Context) (wire.ToolResponse, error) {
			att, err := insp.Screenshot(ctx)
			if err != nil {
				return wire.ToolResponse{Success: false, Error: err.Error()}, nil
			}
			return wire.ToolResponse{
				Success:    true,
				Kind:       "attachment-as-user",
				Caption:    "Here is the current screenshot.",
				Attachment: &att,
				AckMessage: "Screenshot captured.",
			}, nil
		},
	}
}

type consoleLogsArgs struct {
	Limit int `json:"limit"`
}

// ConsoleLogsTool returns the get_console_logs Definition.
func ConsoleLogsTool(insp Inspector) tool.Definition {
	return tool.Definition{
		Name:        "get_console_logs",
		Description: "Retrieve recent browser console log entries.",
		Location:    tool.LocationClient,
		InputSchema: json.RawMessage(`{"type":"object","properties":{"limit":{"type":"integer","minimum":1,"maximum":500}}}`),
		Handler: func(ctx context.Context, params json.RawMessage, tc tool.Context) (wire.ToolResponse, error) {
			var args consoleLogsArgs
			if len(params) > 0 {
				if err := json.Unmarshal(params, &args); err != nil {
					return wire.ToolResponse{}, fmt.Errorf("get_console_logs: invalid arguments: %w", err)
				}
			}
			limit := args.Limit
			if limit <= 0 {
				limit = 100
			}
			logs, err := insp.ConsoleLogs(ctx, limit)
			if err != nil {
				return wire.ToolResponse{Success: false, Error: err.Error()}, nil
			}
			return wire.ToolResponse{Success: true, Data: logs}, nil
		},
	}
}

type networkRequestsArgs struct {
	Limit int `json:"limit"`
}

// NetworkRequestsTool returns the get_network_requests Definition.
func NetworkRequestsTool(insp Inspector) tool.Definition {
	return tool.Definition{
		Name:        "get_network_requests",
		Description: "Retrieve recent network requests observed in the current view.",
		Location:    tool.LocationClient,
		InputSchema: json.RawMessage(`{"type":"object","properties":{"limit":{"type":"integer","minimum":1,"maximum":500}}}`),
		Handler: func(ctx context.Context, params json.RawMessage, tc tool.Context) (wire.ToolResponse, error) {
			var args networkRequestsArgs
			if len(params) > 0 {
				if err := json.Unmarshal(params, &args); err != nil {
					return wire.ToolResponse{}, fmt.Errorf("get_network_requests: invalid arguments: %w", err)
				}
			}
			limit := args.Limit
			if limit <= 0 {
				limit = 50
			}
			reqs, err := insp.NetworkRequests(ctx, limit)
			if err != nil {
				return wire.ToolResponse{Success: false, Error: err.Error()}, nil
			}
			return wire.ToolResponse{Success: true, Data: reqs}, nil
		},
	}
}

// RegisterAll registers all three builtin tools against reg, backed by insp.
func RegisterAll(reg *tool.Registry, insp Inspector) {
	reg.Register(ScreenshotTool(insp))
	reg.Register(ConsoleLogsTool(insp))
	reg.Register(NetworkRequestsTool(insp))
}
