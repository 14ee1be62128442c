package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/relaykit/agentcore/internal/tool"
	"github.com/relaykit/agentcore/internal/toolschema"
)

func managerWithFakeClient(t *testing.T, serverID string, tools []*MCPTool, callResult ToolCallResult) *Manager {
	t.Helper()
	ft := newFakeTransport()
	ft.calls["initialize"], _ = json.Marshal(InitializeResult{ServerInfo: ServerInfo{Name: serverID}})
	raw, _ := json.Marshal(callResult)
	ft.calls["tools/call"] = raw

	c := newTestClientWithTransport(t, ft)
	c.tools = tools

	mgr := NewManager(&Config{Enabled: true}, nil)
	mgr.clients[serverID] = c
	return mgr
}

func TestRegisterTools_AdaptsOneToolPerServer(t *testing.T) {
	tools := []*MCPTool{{Name: "search", Description: "search the web", InputSchema: json.RawMessage(`{"type":"object"}`)}}
	mgr := managerWithFakeClient(t, "web", tools, ToolCallResult{Content: []ToolResultContent{{Type: "text", Text: "results"}}})

	reg := tool.NewRegistry()
	names := RegisterTools(reg, mgr, toolschema.New())
	if len(names) != 1 {
		t.Fatalf("expected 1 registered tool, got %d (%v)", len(names), names)
	}

	def, ok := reg.Get(names[0])
	if !ok {
		t.Fatalf("expected %q to be registered", names[0])
	}
	resp, err := def.Handler(context.Background(), json.RawMessage(`{}`), tool.Context{})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !resp.Success || resp.Data != "results" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestRegisterTools_NormalizesTypeArraySchema(t *testing.T) {
	tools := []*MCPTool{{Name: "fetch", InputSchema: json.RawMessage(`{"type":["string","null"],"properties":{}}`)}}
	mgr := managerWithFakeClient(t, "web", tools, ToolCallResult{})

	reg := tool.NewRegistry()
	names := RegisterTools(reg, mgr, toolschema.New())
	def, _ := reg.Get(names[0])

	var schema map[string]any
	if err := json.Unmarshal(def.InputSchema, &schema); err != nil {
		t.Fatalf("unmarshal schema: %v", err)
	}
	if schema["type"] != "string" {
		t.Fatalf("expected normalized type \"string\", got %v", schema["type"])
	}
}

func TestRegisterTools_DedupesCollidingNames(t *testing.T) {
	tools := []*MCPTool{{Name: "a!"}, {Name: "a?"}}
	mgr := managerWithFakeClient(t, "srv", tools, ToolCallResult{})

	reg := tool.NewRegistry()
	names := RegisterTools(reg, mgr, toolschema.New())
	if len(names) != 2 {
		t.Fatalf("expected 2 registered tools, got %d", len(names))
	}
	if names[0] == names[1] {
		t.Fatalf("expected distinct names, got %q twice", names[0])
	}
}

func TestRegisterTools_PropagatesToolCallError(t *testing.T) {
	tools := []*MCPTool{{Name: "flaky"}}
	mgr := managerWithFakeClient(t, "srv", tools, ToolCallResult{IsError: true, Content: []ToolResultContent{{Type: "text", Text: "boom"}}})

	reg := tool.NewRegistry()
	names := RegisterTools(reg, mgr, toolschema.New())
	def, _ := reg.Get(names[0])

	resp, err := def.Handler(context.Background(), nil, tool.Context{})
	if err != nil {
		t.Fatalf("handler itself should not error: %v", err)
	}
	if resp.Success || resp.Error != "boom" {
		t.Fatalf("expected a failed response carrying the remote error, got %+v", resp)
	}
}

func TestSafeToolName_TruncatesOverlongNames(t *testing.T) {
	used := make(map[string]struct{})
	name := safeToolName("a-very-long-server-identifier-indeed", "an-extremely-long-tool-name-that-does-not-fit", used)
	if len(name) > maxToolNameLen {
		t.Fatalf("expected name within %d chars, got %d: %q", maxToolNameLen, len(name), name)
	}
}
