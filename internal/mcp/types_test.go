package mcp

import "testing"

func TestServerConfigValidate_RequiresID(t *testing.T) {
	cfg := &ServerConfig{Transport: TransportStdio, Command: "echo"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing id")
	}
}

func TestServerConfigValidate_StdioRequiresCommand(t *testing.T) {
	cfg := &ServerConfig{ID: "s1", Transport: TransportStdio}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing command")
	}
}

func TestServerConfigValidate_RejectsPathTraversal(t *testing.T) {
	cfg := &ServerConfig{ID: "s1", Transport: TransportStdio, Command: "../../bin/sh"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for path traversal in command")
	}
}

func TestServerConfigValidate_RejectsShellMetacharsInArgs(t *testing.T) {
	cfg := &ServerConfig{ID: "s1", Transport: TransportStdio, Command: "tool", Args: []string{"safe", "a && rm -rf /"}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for shell metacharacters in args")
	}
}

func TestServerConfigValidate_AllowsOrdinaryArgs(t *testing.T) {
	cfg := &ServerConfig{ID: "s1", Transport: TransportStdio, Command: "tool", Args: []string{"--flag", "a value with spaces"}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestServerConfigValidate_HTTPRequiresURLScheme(t *testing.T) {
	cfg := &ServerConfig{ID: "s1", Transport: TransportHTTP, URL: "ftp://example.com"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-http(s) url")
	}
}

func TestServerConfigValidate_HTTPAcceptsHTTPS(t *testing.T) {
	cfg := &ServerConfig{ID: "s1", Transport: TransportHTTP, URL: "https://example.com/mcp"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestServerConfigValidate_UnknownTransport(t *testing.T) {
	cfg := &ServerConfig{ID: "s1", Transport: "carrier-pigeon"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown transport")
	}
}
