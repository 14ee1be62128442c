package mcp

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/relaykit/agentcore/internal/tool"
	"github.com/relaykit/agentcore/internal/toolschema"
	"github.com/relaykit/agentcore/pkg/wire"
)

const maxToolNameLen = 64

// RegisterTools adapts every tool currently cached across mgr's connected
// servers into reg as a tool.Definition (spec §4.M, the MCP Tool
// Adapter): one Definition per remote tool, name-mangled to a safe,
// deduplicated identifier and backed by a Handler that calls through
// mgr.CallTool. Returns the registered names so a host can surface them
// (e.g. to a policy registrar) without re-deriving the mangling.
func RegisterTools(reg *tool.Registry, mgr *Manager, schema *toolschema.Bridge) []string {
	if reg == nil || mgr == nil {
		return nil
	}

	entries := listToolsSorted(mgr)
	used := make(map[string]struct{})
	registered := make([]string, 0, len(entries))

	for _, entry := range entries {
		name := safeToolName(entry.serverID, entry.tool.Name, used)
		reg.Register(bridgeDefinition(mgr, schema, entry.serverID, entry.tool, name))
		registered = append(registered, name)
	}
	return registered
}

// bridgeDefinition builds the tool.Definition for one remote MCP tool.
// MCP tools are treated as approval-free by default: the approval model
// this runtime enforces is about the in-process tools a host chooses to
// gate, and MCP servers are assumed to have been vetted at connect time via
// ServerConfig.Validate.
func bridgeDefinition(mgr *Manager, schema *toolschema.Bridge, serverID string, t *MCPTool, safeName string) tool.Definition {
	normalized, err := normalizedSchema(schema, t.InputSchema)
	if err != nil {
		normalized = json.RawMessage(`{"type":"object"}`)
	}

	return tool.Definition{
		Name:        safeName,
		Description: describeTool(serverID, t),
		Location:    tool.LocationClient,
		InputSchema: normalized,
		Handler: func(ctx context.Context, params json.RawMessage, tc tool.Context) (wire.ToolResponse, error) {
			var arguments map[string]any
			if len(params) > 0 {
				if err := json.Unmarshal(params, &arguments); err != nil {
					return wire.ToolResponse{}, fmt.Errorf("mcp: invalid arguments for %s: %w", safeName, err)
				}
			}
			result, err := mgr.CallTool(ctx, serverID, t.Name, arguments)
			if err != nil {
				return wire.ToolResponse{Success: false, Error: err.Error()}, nil
			}
			content, isError := formatToolCallResult(result)
			if isError {
				return wire.ToolResponse{Success: false, Error: content}, nil
			}
			return wire.ToolResponse{Success: true, Data: content}, nil
		},
	}
}

// normalizedSchema runs the MCP tool's input schema through the shared
// toolschema.Normalize pass (collapsing `"type":["string","null"]`-style
// arrays) before the schema Bridge ever tries to compile it.
func normalizedSchema(schema *toolschema.Bridge, raw json.RawMessage) (json.RawMessage, error) {
	if len(raw) == 0 {
		return json.RawMessage(`{"type":"object"}`), nil
	}
	normalized, err := toolschema.Normalize(raw)
	if err != nil {
		return nil, err
	}
	if schema != nil {
		if _, err := schema.Compile(normalized); err != nil {
			return nil, err
		}
	}
	return normalized, nil
}

func describeTool(serverID string, t *MCPTool) string {
	desc := strings.TrimSpace(t.Description)
	if desc == "" {
		return fmt.Sprintf("MCP tool %s.%s", serverID, t.Name)
	}
	return fmt.Sprintf("MCP tool %s.%s: %s", serverID, t.Name, desc)
}

func formatToolCallResult(result *ToolCallResult) (string, bool) {
	if result == nil {
		return "", false
	}
	if len(result.Content) == 0 {
		return "", result.IsError
	}

	allText := true
	var combined strings.Builder
	for _, item := range result.Content {
		if item.Type != "text" {
			allText = false
			break
		}
		if item.Text == "" {
			continue
		}
		if combined.Len() > 0 {
			combined.WriteString("\n")
		}
		combined.WriteString(item.Text)
	}
	if allText && combined.Len() > 0 {
		return combined.String(), result.IsError
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return "", result.IsError
	}
	return string(payload), result.IsError
}

type toolEntry struct {
	serverID string
	tool     *MCPTool
}

func listToolsSorted(mgr *Manager) []toolEntry {
	all := mgr.AllTools()
	if len(all) == 0 {
		return nil
	}
	serverIDs := make([]string, 0, len(all))
	for id := range all {
		serverIDs = append(serverIDs, id)
	}
	sort.Strings(serverIDs)

	var entries []toolEntry
	for _, serverID := range serverIDs {
		tools := all[serverID]
		sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
		for _, t := range tools {
			entries = append(entries, toolEntry{serverID: serverID, tool: t})
		}
	}
	return entries
}

// safeToolName derives a tool name safe for any model's function-name
// charset from a server id + remote tool name pair, falling back to a
// content hash when the sanitized form is too long or collides with one
// already used in this registration pass.
func safeToolName(serverID, toolName string, used map[string]struct{}) string {
	base := "mcp_" + sanitizeToolPart(serverID) + "_" + sanitizeToolPart(toolName)
	name := base
	if len(name) > maxToolNameLen {
		name = truncateWithHash(base, serverID, toolName)
	}
	if _, exists := used[name]; exists {
		name = dedupeWithHash(name, serverID, toolName)
	}
	used[name] = struct{}{}
	return name
}

func sanitizeToolPart(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	underscore := false
	for _, r := range value {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
			underscore = false
		default:
			if !underscore {
				b.WriteByte('_')
				underscore = true
			}
		}
	}
	clean := strings.Trim(b.String(), "_")
	if clean == "" {
		return "tool"
	}
	return clean
}

func toolNameHash(serverID, toolName string) string {
	sum := sha1.Sum([]byte(serverID + ":" + toolName))
	return hex.EncodeToString(sum[:])[:8]
}

func truncateWithHash(base, serverID, toolName string) string {
	suffix := "_" + toolNameHash(serverID, toolName)
	if maxToolNameLen <= len(suffix) {
		return suffix[len(suffix)-maxToolNameLen:]
	}
	trimLen := maxToolNameLen - len(suffix)
	if trimLen > len(base) {
		trimLen = len(base)
	}
	return base[:trimLen] + suffix
}

func dedupeWithHash(base, serverID, toolName string) string {
	suffix := "_" + toolNameHash(serverID, toolName)
	name := base + suffix
	if len(name) <= maxToolNameLen {
		return name
	}
	return truncateWithHash(base, serverID, toolName)
}
