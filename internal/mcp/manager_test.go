package mcp

import (
	"context"
	"testing"
)

func TestNewManager_NilConfigAndLogger(t *testing.T) {
	mgr := NewManager(nil, nil)
	if mgr == nil {
		t.Fatal("expected non-nil manager")
	}
}

func TestManager_StartDisabledIsNoop(t *testing.T) {
	mgr := NewManager(&Config{Enabled: false}, nil)
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v, expected nil for disabled manager", err)
	}
}

func TestManager_ConnectUnknownServer(t *testing.T) {
	mgr := NewManager(&Config{Enabled: true}, nil)
	if err := mgr.Connect(context.Background(), "nonexistent"); err == nil {
		t.Fatal("expected error for unknown server id")
	}
}

func TestManager_ConnectRejectsInvalidConfig(t *testing.T) {
	mgr := NewManager(&Config{
		Enabled: true,
		Servers: []*ServerConfig{{ID: "bad", Transport: TransportStdio}}, // missing Command
	}, nil)
	if err := mgr.Connect(context.Background(), "bad"); err == nil {
		t.Fatal("expected validation error for server missing a command")
	}
}

func TestManager_DisconnectUnknownServerIsNoop(t *testing.T) {
	mgr := NewManager(&Config{Enabled: true}, nil)
	if err := mgr.Disconnect("never-connected"); err != nil {
		t.Fatalf("Disconnect() error = %v, expected nil", err)
	}
}

func TestManager_AllToolsAggregatesAcrossServers(t *testing.T) {
	ft1 := newFakeTransport()
	c1 := newTestClientWithTransport(t, ft1)
	c1.tools = []*MCPTool{{Name: "a"}}

	ft2 := newFakeTransport()
	c2 := newTestClientWithTransport(t, ft2)
	c2.tools = []*MCPTool{{Name: "b"}, {Name: "c"}}

	mgr := NewManager(&Config{Enabled: true}, nil)
	mgr.clients["one"] = c1
	mgr.clients["two"] = c2

	all := mgr.AllTools()
	if len(all["one"]) != 1 || len(all["two"]) != 2 {
		t.Fatalf("unexpected aggregate tools: %+v", all)
	}
}

func TestManager_StatusReflectsConnectionState(t *testing.T) {
	mgr := NewManager(&Config{
		Enabled: true,
		Servers: []*ServerConfig{{ID: "s1", Name: "Server One"}},
	}, nil)

	statuses := mgr.Status()
	if len(statuses) != 1 || statuses[0].Connected {
		t.Fatalf("expected one disconnected server status, got %+v", statuses)
	}
}
