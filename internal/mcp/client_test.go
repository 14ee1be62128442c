package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
)

// fakeTransport answers Call by method name from a scripted table, so
// Client/Manager/adapter tests never spawn a real process or dial a real
// URL.
type fakeTransport struct {
	connected bool
	calls     map[string]json.RawMessage
	events    chan *JSONRPCNotification
	requests  chan *JSONRPCRequest
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		calls:    make(map[string]json.RawMessage),
		events:   make(chan *JSONRPCNotification, 4),
		requests: make(chan *JSONRPCRequest, 4),
	}
}

func (f *fakeTransport) Connect(ctx context.Context) error { f.connected = true; return nil }
func (f *fakeTransport) Close() error                       { f.connected = false; close(f.requests); return nil }
func (f *fakeTransport) Connected() bool                    { return f.connected }

func (f *fakeTransport) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if raw, ok := f.calls[method]; ok {
		return raw, nil
	}
	return json.RawMessage(`{}`), nil
}

func (f *fakeTransport) Notify(ctx context.Context, method string, params any) error { return nil }
func (f *fakeTransport) Events() <-chan *JSONRPCNotification                          { return f.events }
func (f *fakeTransport) Requests() <-chan *JSONRPCRequest                             { return f.requests }
func (f *fakeTransport) Respond(ctx context.Context, id any, result any, rpcErr *JSONRPCError) error {
	return nil
}

func newTestClientWithTransport(t *testing.T, ft *fakeTransport) *Client {
	t.Helper()
	c := &Client{config: &ServerConfig{ID: "srv"}, transport: ft}
	c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return c
}

func TestClient_ConnectCachesServerInfoAndTools(t *testing.T) {
	ft := newFakeTransport()
	init, _ := json.Marshal(InitializeResult{
		ProtocolVersion: protocolVersion,
		ServerInfo:      ServerInfo{Name: "demo-server", Version: "0.1.0"},
	})
	ft.calls["initialize"] = init
	toolsList, _ := json.Marshal(ListToolsResult{Tools: []*MCPTool{{Name: "search", InputSchema: json.RawMessage(`{"type":"object"}`)}}})
	ft.calls["tools/list"] = toolsList

	c := newTestClientWithTransport(t, ft)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if c.ServerInfo().Name != "demo-server" {
		t.Fatalf("expected server info to be cached, got %+v", c.ServerInfo())
	}
	if len(c.Tools()) != 1 || c.Tools()[0].Name != "search" {
		t.Fatalf("expected one cached tool, got %+v", c.Tools())
	}
}

// cursorTransport answers tools/list with the page keyed by the request's
// cursor, so a pagination loop can walk more than one page.
type cursorTransport struct {
	*fakeTransport
	pages map[string]json.RawMessage
}

func (c *cursorTransport) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if method != "tools/list" {
		return c.fakeTransport.Call(ctx, method, params)
	}
	cursor := ""
	if p, ok := params.(ListParams); ok {
		cursor = p.Cursor
	}
	return c.pages[cursor], nil
}

func TestClient_ListAllToolsFollowsCursor(t *testing.T) {
	ft := newFakeTransport()
	ft.calls["initialize"], _ = json.Marshal(InitializeResult{ServerInfo: ServerInfo{Name: "s"}})

	page1, _ := json.Marshal(ListToolsResult{Tools: []*MCPTool{{Name: "a"}}, NextCursor: "p2"})
	page2, _ := json.Marshal(ListToolsResult{Tools: []*MCPTool{{Name: "b"}}})
	ct := &cursorTransport{fakeTransport: ft, pages: map[string]json.RawMessage{"": page1, "p2": page2}}

	c := newTestClientWithTransport(t, ft)
	c.transport = ct
	tools, err := c.listAllTools(context.Background())
	if err != nil {
		t.Fatalf("listAllTools: %v", err)
	}
	if len(tools) != 2 || tools[0].Name != "a" || tools[1].Name != "b" {
		t.Fatalf("expected tools a and b from both pages, got %+v", tools)
	}
}

func TestClient_CallToolParsesResult(t *testing.T) {
	ft := newFakeTransport()
	result, _ := json.Marshal(ToolCallResult{Content: []ToolResultContent{{Type: "text", Text: "42"}}})
	ft.calls["tools/call"] = result

	c := newTestClientWithTransport(t, ft)
	res, err := c.CallTool(context.Background(), "add", map[string]any{"a": 1, "b": 2})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if len(res.Content) != 1 || res.Content[0].Text != "42" {
		t.Fatalf("unexpected result: %+v", res)
	}
}
