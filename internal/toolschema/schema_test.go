package toolschema

import (
	"encoding/json"
	"testing"
)

func TestNormalize_ReducesTypeArray(t *testing.T) {
	raw := json.RawMessage(`{"type":["string","null"],"properties":{"x":{"type":["integer","null"]}}}`)
	out, err := Normalize(raw)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(out, &doc); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if doc["type"] != "string" {
		t.Fatalf("expected top-level type string, got %v", doc["type"])
	}
	props := doc["properties"].(map[string]any)
	x := props["x"].(map[string]any)
	if x["type"] != "integer" {
		t.Fatalf("expected nested type integer, got %v", x["type"])
	}
}

func TestBridge_ValidateRejectsBadArguments(t *testing.T) {
	b := New()
	schema := json.RawMessage(`{
		"type": "object",
		"properties": {"name": {"type": "string"}},
		"required": ["name"]
	}`)
	if err := b.Validate(schema, json.RawMessage(`{"name":"alice"}`)); err != nil {
		t.Fatalf("expected valid arguments to pass, got %v", err)
	}
	if err := b.Validate(schema, json.RawMessage(`{}`)); err == nil {
		t.Fatal("expected missing required field to fail validation")
	}
}

func TestBridge_CompileCachesByContentHash(t *testing.T) {
	b := New()
	schema := json.RawMessage(`{"type":"object"}`)
	s1, err := b.Compile(schema)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	s2, err := b.Compile(schema)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if s1 != s2 {
		t.Fatal("expected identical schema pointer from cache on second compile")
	}
}

func TestBridge_ValidateNoSchemaAcceptsAnything(t *testing.T) {
	b := New()
	if err := b.Validate(nil, json.RawMessage(`{"anything":true}`)); err != nil {
		t.Fatalf("expected no-schema tool to accept any arguments, got %v", err)
	}
}
