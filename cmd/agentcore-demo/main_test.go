package main

import "testing"

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	required := []string{"send", "chat", "mcp"}
	for _, name := range required {
		if !names[name] {
			t.Fatalf("expected subcommand %q to be registered", name)
		}
	}
}

func TestBuildMcpCmdIncludesServers(t *testing.T) {
	cmd := buildMcpCmd()
	for _, sub := range cmd.Commands() {
		if sub.Name() == "servers" {
			return
		}
	}
	t.Fatal("expected mcp servers subcommand to be registered")
}
